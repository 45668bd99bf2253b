package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

func (c *Coordinator) onLocalCandidate(peer domain.PeerID, cand webrtc.ICECandidateInit) {
	if err := c.Signal.SendCandidate(peer, cand); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("peer", string(peer)).Msg("send candidate")
	}
}

// onRemoteTrack binds the incoming track to the peer's sink. The sink is
// created on the first track of any kind, so audio renders even when video
// never arrives, and the roster entry's capability flags follow the stream.
func (c *Coordinator) onRemoteTrack(trackCtx context.Context, peer domain.PeerID, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	sink := c.Sinks.Attach(trackCtx, peer, track)
	hasAudio, hasVideo := sink.Flags()
	c.Roster.SetMediaFlags(peer, hasAudio, hasVideo)
	c.notify(Notice{Level: "info", Message: "media ready", Peer: string(peer)})
}

// onConnectionFailed surfaces a dismissible warning; the peer's tile may go
// stale but the session continues for everyone else.
func (c *Coordinator) onConnectionFailed(peer domain.PeerID) {
	name := string(peer)
	if p, ok := c.Roster.Get(peer); ok {
		name = p.Name
	}
	c.notify(Notice{Level: "warning", Message: "connection to " + name + " failed", Peer: string(peer)})
}

// ToggleMute flips the local mute state, pauses or resumes the outbound
// audio senders on every live connection, and tells the room the voice went
// quiet when muting.
func (c *Coordinator) ToggleMute() bool {
	muted := c.Media.ToggleMute()
	c.Registry.SetSendEnabled(webrtc.RTPCodecTypeAudio, !muted)
	if muted {
		if err := c.Signal.SendVoiceActivity(false); err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("send voice activity")
		}
	}
	return muted
}

// ToggleVideo flips the local video state and pauses or resumes the outbound
// video senders on every live connection.
func (c *Coordinator) ToggleVideo() bool {
	off := c.Media.ToggleVideo()
	c.Registry.SetSendEnabled(webrtc.RTPCodecTypeVideo, !off)
	return off
}

func (c *Coordinator) RaiseHand(raised bool) error {
	return c.Signal.SendHandRaised(raised)
}

func (c *Coordinator) SetVoiceActive(active bool) error {
	return c.Signal.SendVoiceActivity(active)
}

func (c *Coordinator) ChangeName(name string) error {
	if len(name) == 0 {
		return domain.ErrNameEmpty
	}
	if len(name) > domain.MaxDisplayNameLen {
		return domain.ErrNameTooLong
	}
	if err := c.Signal.SendNameChange(name); err != nil {
		return err
	}
	c.Identity.Name = name
	return nil
}

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

// outboundTrack pairs a local track with the sender it was attached through,
// so the send direction can be paused without renegotiation.
type outboundTrack struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	peer   domain.PeerID
	cancel context.CancelFunc

	mu       sync.Mutex
	outbound []outboundTrack

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onFailed func()
}

func ConfigFor(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, u := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

func NewWebRTCConnection(cfg webrtc.Configuration, peer domain.PeerID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, peer: peer}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			if c.onFailed != nil {
				c.onFailed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(c.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	return nil
}

// CreateAndSetOffer builds the initiator-side offer. Recvonly transceivers are
// added for any kind we do not send ourselves so the offer always requests
// both audio and video reception. Candidates trickle via OnICECandidate.
func (c *WebRTCConnection) CreateAndSetOffer() (webrtc.SessionDescription, error) {
	if err := c.ensureRecvTransceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

func (c *WebRTCConnection) ensureRecvTransceivers() error {
	var hasAudio, hasVideo bool
	for _, t := range c.pc.GetTransceivers() {
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			hasAudio = true
		case webrtc.RTPCodecTypeVideo:
			hasVideo = true
		}
	}
	recv := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if !hasAudio {
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recv); err != nil {
			return err
		}
	}
	if !hasVideo {
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recv); err != nil {
			return err
		}
	}
	return nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("peer", string(c.peer)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Msg("closed")
		}
	}
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.outbound = append(c.outbound, outboundTrack{sender: sender, track: track})
	c.mu.Unlock()
	return nil
}

// SetSendEnabled pauses or resumes every outbound sender of the given kind.
// Pausing swaps the sender's track for nil so the peer stops receiving
// packets; the local track keeps capturing and resuming needs no
// renegotiation.
func (c *WebRTCConnection) SetSendEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ot := range c.outbound {
		if ot.track.Kind() != kind {
			continue
		}
		var next webrtc.TrackLocal
		if enabled {
			next = ot.track
		}
		if err := ot.sender.ReplaceTrack(next); err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
	}
	log.Debug().Str("module", "webrtc").Str("peer", string(c.peer)).Str("kind", kind.String()).Bool("enabled", enabled).Msg("send toggled")
	return nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnFailed sets application-level callback for transport failure.
func (c *WebRTCConnection) OnFailed(fn func()) { c.onFailed = fn }

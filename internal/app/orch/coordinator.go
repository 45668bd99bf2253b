// Package orch coordinates one call session: it owns the event loop that
// drains the signaling channel and routes each message kind to exactly one
// handler.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/app/peers"
	"github.com/lectern/meshcall/internal/app/roster"
	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
	"github.com/lectern/meshcall/internal/media"
)

// SignalChannel is the session-control channel plus the self-id feedback the
// coordinator learns from the roster.
type SignalChannel interface {
	core.SignalClient
	SetSelfPeer(domain.PeerID)
}

// Notice is a user-visible, non-fatal notification.
type Notice struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Peer      string `json:"peer,omitempty"`
	Countdown int    `json:"countdown,omitempty"`
}

// ClassAPI is the REST collaborator consumed when a moderator ends a class.
type ClassAPI interface {
	EndClass(ctx context.Context, code domain.RoomCode)
}

// Coordinator wires media, signaling, registry, negotiation and presence into
// one session. Handlers run to completion on the single event loop goroutine;
// only the staggered mesh initiation runs aside, so inbound messages keep
// flowing while offers are in flight.
type Coordinator struct {
	Identity domain.Identity
	Room     domain.RoomCode

	Media      *media.LocalMedia
	Sinks      *media.SinkSet
	Signal     SignalChannel
	Registry   *peers.Registry
	Negotiator *peers.Negotiator
	Roster     *roster.Tracker
	API        ClassAPI

	Notify func(Notice)

	mu         sync.Mutex
	cancelMesh context.CancelFunc
	leaveOnce  sync.Once
	wg         sync.WaitGroup
}

// Options carry the tunables the coordinator does not own.
type Options struct {
	SettleDelay time.Duration
	OfferGap    time.Duration
}

// New assembles a coordinator around an acquired local stream and a connected
// signaling channel. The registry hooks are installed here so every remote
// track, local candidate and transport failure flows through this session.
func New(id domain.Identity, room domain.RoomCode, lm *media.LocalMedia, sig SignalChannel, factory peers.ConnFactory, recordAudio bool, opts Options) *Coordinator {
	c := &Coordinator{
		Identity: id,
		Room:     room,
		Media:    lm,
		Sinks:    media.NewSinkSet(recordAudio),
		Signal:   sig,
		Roster:   roster.NewTracker(id.UserID),
	}
	c.Registry = peers.NewRegistry(factory, lm, peers.Hooks{
		OnLocalCandidate:   c.onLocalCandidate,
		OnRemoteTrack:      c.onRemoteTrack,
		OnConnectionFailed: c.onConnectionFailed,
	})
	c.Negotiator = peers.NewNegotiator(c.Registry, sig, opts.SettleDelay, opts.OfferGap)
	return c
}

// Run drains signaling events until the channel terminates or ctx is
// canceled, then leaves the session. It blocks the calling goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelMesh = cancel
	c.mu.Unlock()

	defer c.Leave()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Signal.Events():
			if !ok {
				log.Info().Str("module", "orch").Msg("signal channel closed")
				return
			}
			c.dispatch(ctx, ev)
		}
	}
}

// dispatch routes one inbound message to its single owning handler. Per-peer
// negotiation errors are logged and never disturb other peers.
func (c *Coordinator) dispatch(ctx context.Context, ev core.Event) {
	switch ev.Kind {
	case core.EventRoster:
		ids, selfPeer := c.Roster.Replace(ev.Roster)
		if selfPeer != "" {
			c.Signal.SetSelfPeer(selfPeer)
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Negotiator.InitiateAll(ctx, ids)
		}()

	case core.EventPeerJoined:
		// The newcomer offers to us once it has the roster; merging the
		// delta is all that happens here.
		c.Roster.Join(ev.Peer)

	case core.EventPeerDisconnected:
		c.handlePeerGone(ev.From)

	case core.EventNameChanged:
		c.Roster.SetName(ev.From, ev.Name)

	case core.EventHandRaised:
		c.Roster.SetHandRaised(ev.From, ev.Raised)
		if ev.Raised {
			c.notify(Notice{Level: "info", Message: ev.Name + " raised a hand", Peer: string(ev.From)})
		}

	case core.EventVoiceActivity:
		c.Roster.SetVoiceActive(ev.From, ev.Active)

	case core.EventOffer:
		if err := c.Negotiator.HandleOffer(ctx, ev.From, ev.SDP); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("peer", string(ev.From)).Msg("offer handling failed")
		}

	case core.EventAnswer:
		if err := c.Negotiator.HandleAnswer(ev.From, ev.SDP); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("peer", string(ev.From)).Msg("answer handling failed")
		}

	case core.EventCandidate:
		if err := c.Negotiator.HandleCandidate(ev.From, ev.Candidate); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("peer", string(ev.From)).Msg("candidate handling failed")
		}

	case core.EventModeratorLeft:
		c.notify(Notice{Level: "warning", Message: ev.Message, Countdown: ev.Countdown})

	case core.EventModeratorReturned:
		c.notify(Notice{Level: "info", Message: ev.Message})

	case core.EventRoomClosed, core.EventClassEnded:
		c.notify(Notice{Level: "warning", Message: ev.Reason})
		c.Leave()

	default:
		log.Warn().Str("module", "orch").Str("kind", ev.Kind.String()).Msg("unhandled event")
	}
}

// handlePeerGone releases everything the peer owned. Teardown runs even when
// the peer never made the roster: an offer can arrive before its join event,
// leaving a connection with no roster entry.
func (c *Coordinator) handlePeerGone(peer domain.PeerID) {
	c.Roster.Leave(peer)
	c.Sinks.Close(peer)
	c.Registry.Teardown(peer)
}

func (c *Coordinator) notify(n Notice) {
	if c.Notify != nil {
		c.Notify(n)
	}
}

package peers

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
)

// Negotiator drives the offer/answer/ICE state machine per peer connection.
// A failure while negotiating with one peer never disrupts the others.
type Negotiator struct {
	reg    *Registry
	sender core.SignalSender

	// Backpressure for mesh initiation: settle after roster receipt, then a
	// fixed gap between consecutive outbound offers.
	settle time.Duration
	gap    time.Duration
}

func NewNegotiator(reg *Registry, sender core.SignalSender, settle, gap time.Duration) *Negotiator {
	return &Negotiator{reg: reg, sender: sender, settle: settle, gap: gap}
}

// InitiateAll establishes outbound connections to every listed peer,
// staggered so a busy room does not get a burst of simultaneous offers.
// Errors are per-peer: logged and skipped.
func (n *Negotiator) InitiateAll(ctx context.Context, ids []domain.PeerID) {
	if len(ids) == 0 {
		return
	}
	if !sleepCtx(ctx, n.settle) {
		return
	}
	for i, id := range ids {
		if i > 0 && !sleepCtx(ctx, n.gap) {
			return
		}
		if err := n.Initiate(ctx, id); err != nil {
			log.Error().Err(err).Str("module", "peers").Str("peer", string(id)).Msg("initiate failed")
		}
	}
}

// Initiate runs the initiator flow for one peer: fresh entry, local offer,
// offer sent via signaling.
func (n *Negotiator) Initiate(ctx context.Context, peer domain.PeerID) error {
	e, err := n.reg.Ensure(ctx, peer, true)
	if err != nil {
		return err
	}
	offer, err := e.Conn.CreateAndSetOffer()
	if err != nil {
		n.fail(e)
		return fmt.Errorf("offer for %s: %w", peer, err)
	}
	e.setState(StateHaveLocalOffer)
	if err := n.sender.SendOffer(peer, offer); err != nil {
		n.fail(e)
		return fmt.Errorf("send offer to %s: %w", peer, err)
	}
	log.Info().Str("module", "peers").Str("peer", string(peer)).Msg("offer sent")
	return nil
}

// HandleOffer runs the responder flow for an inbound offer.
func (n *Negotiator) HandleOffer(ctx context.Context, from domain.PeerID, offer webrtc.SessionDescription) error {
	e, err := n.reg.Ensure(ctx, from, false)
	if err != nil {
		return err
	}
	answer, err := e.Conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		n.fail(e)
		return fmt.Errorf("answer for %s: %w", from, err)
	}
	e.setState(StateHaveRemoteOffer)
	if err := e.markRemoteDescSet(); err != nil {
		n.fail(e)
		return err
	}
	if err := n.sender.SendAnswer(from, answer); err != nil {
		n.fail(e)
		return fmt.Errorf("send answer to %s: %w", from, err)
	}
	e.transition(StateHaveRemoteOffer, StateConnected)
	log.Info().Str("module", "peers").Str("peer", string(from)).Msg("answer sent")
	return nil
}

// HandleAnswer completes the initiator flow. An answer for a connection that
// is not awaiting one is stale or duplicate: it must not mutate the
// connection and is dropped silently.
func (n *Negotiator) HandleAnswer(from domain.PeerID, answer webrtc.SessionDescription) error {
	e, ok := n.reg.Get(from)
	if !ok {
		log.Debug().Str("module", "peers").Str("peer", string(from)).Msg("answer for unknown peer, dropped")
		return nil
	}
	if e.State() != StateHaveLocalOffer {
		log.Debug().Str("module", "peers").Str("peer", string(from)).Str("state", e.State().String()).Msg("stale answer, dropped")
		return nil
	}
	if err := e.Conn.ApplyAnswer(answer); err != nil {
		n.fail(e)
		return fmt.Errorf("apply answer from %s: %w", from, err)
	}
	if err := e.markRemoteDescSet(); err != nil {
		n.fail(e)
		return err
	}
	e.transition(StateHaveLocalOffer, StateConnected)
	log.Info().Str("module", "peers").Str("peer", string(from)).Msg("answer applied")
	return nil
}

// HandleCandidate applies or buffers a remote ICE candidate. A candidate for
// an unknown peer is dropped: the peer likely already disconnected.
func (n *Negotiator) HandleCandidate(from domain.PeerID, cand webrtc.ICECandidateInit) error {
	e, ok := n.reg.Get(from)
	if !ok {
		log.Debug().Str("module", "peers").Str("peer", string(from)).Msg("candidate for unknown peer, dropped")
		return nil
	}
	if err := e.AddCandidate(cand); err != nil {
		return fmt.Errorf("candidate from %s: %w", from, err)
	}
	return nil
}

// fail marks the entry failed and removes it, leaving the peer without a live
// connection until the next roster or join-triggered attempt.
func (n *Negotiator) fail(e *Entry) {
	e.setState(StateFailed)
	n.reg.Teardown(e.Peer)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

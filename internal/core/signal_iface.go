package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/lectern/meshcall/internal/domain"
)

// Frame is a raw binary payload.
type Frame []byte

// SignalSender is the outbound half of the signaling channel used by
// negotiation: all three messages are addressed to a single peer.
type SignalSender interface {
	SendOffer(to domain.PeerID, sdp webrtc.SessionDescription) error
	SendAnswer(to domain.PeerID, sdp webrtc.SessionDescription) error
	SendCandidate(to domain.PeerID, cand webrtc.ICECandidateInit) error
}

// SignalClient is the full session-control channel to the signaling server.
// Owned by the adapter; the adapter must Close() it. Close is idempotent.
type SignalClient interface {
	SignalSender

	SendNameChange(name string) error
	SendHandRaised(raised bool) error
	SendVoiceActivity(active bool) error

	// Events yields inbound messages, one Event per message, in arrival
	// order. The channel is closed when the connection terminates.
	Events() <-chan Event
	Close()
}

package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection wraps a single peer-to-peer media connection.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	// CreateAndSetOffer produces a local offer requesting both audio and
	// video reception and installs it as the local description.
	CreateAndSetOffer() (webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer installs the remote offer, then creates and
	// installs the local answer.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) error
	// SetSendEnabled pauses or resumes the outbound senders of the given
	// kind. No-op when nothing of that kind is sent.
	SetSendEnabled(kind webrtc.RTPCodecType, enabled bool) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnFailed sets a callback fired when the underlying transport reports failure.
	OnFailed(func())
}

// LocalTrack is a locally captured track that can be fed to peer connections
// and must be stoppable on release.
type LocalTrack interface {
	webrtc.TrackLocal
	Close() error
}

// LocalSource exposes the shared local media tracks and their toggle state.
// Every peer connection receives references to the same tracks, never a copy.
type LocalSource interface {
	Tracks() []LocalTrack
	Muted() bool
	VideoOff() bool
}

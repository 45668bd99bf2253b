package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/lectern/meshcall/internal/domain"
)

// EventKind tags inbound signaling messages. Every message kind is routed to
// exactly one handler by the session coordinator's dispatch function.
type EventKind int

const (
	EventRoster EventKind = iota
	EventPeerJoined
	EventPeerDisconnected
	EventNameChanged
	EventHandRaised
	EventVoiceActivity
	EventOffer
	EventAnswer
	EventCandidate
	EventModeratorLeft
	EventModeratorReturned
	EventRoomClosed
	EventClassEnded
)

func (k EventKind) String() string {
	switch k {
	case EventRoster:
		return "user-list"
	case EventPeerJoined:
		return "user-joined"
	case EventPeerDisconnected:
		return "user-disconnected"
	case EventNameChanged:
		return "user-name-changed"
	case EventHandRaised:
		return "user-hand-raised"
	case EventVoiceActivity:
		return "user-voice-activity"
	case EventOffer:
		return "offer"
	case EventAnswer:
		return "answer"
	case EventCandidate:
		return "ice-candidate"
	case EventModeratorLeft:
		return "moderator-left"
	case EventModeratorReturned:
		return "moderator-returned"
	case EventRoomClosed:
		return "room-closed"
	case EventClassEnded:
		return "class-ended"
	}
	return "unknown"
}

// Event is the tagged union of all inbound signaling messages. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventRoster
	Roster []domain.Participant
	// EventPeerJoined
	Peer domain.Participant
	// Sender or subject peer for all peer-scoped kinds.
	From domain.PeerID

	// EventNameChanged / EventHandRaised
	Name string
	// EventHandRaised
	Raised bool
	// EventVoiceActivity
	Active bool

	// EventOffer / EventAnswer
	SDP webrtc.SessionDescription
	// EventCandidate
	Candidate webrtc.ICECandidateInit

	// Room lifecycle kinds.
	Message   string
	Countdown int
	Reason    string
}

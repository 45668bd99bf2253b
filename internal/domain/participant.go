package domain

// PeerID is the signaling-connection-scoped identifier of a room occupant.
// It is assigned by the signaling server per connection and is not durable
// across reconnects.
type PeerID string

// Participant represents a remote occupant of the room.
// No transport or lifecycle logic here.
type Participant struct {
	ID     PeerID `json:"socketId"`
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`

	HandRaised  bool `json:"handRaised"`
	VoiceActive bool `json:"voiceActive"`

	// Capability flags derived from the received media, not from signaling.
	HasAudio bool `json:"hasAudio"`
	HasVideo bool `json:"hasVideo"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id PeerID, userID UserID, name string, role Role) Participant {
	return Participant{ID: id, UserID: userID, Name: name, Role: role}
}

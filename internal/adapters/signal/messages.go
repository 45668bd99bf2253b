package signal

import (
	"github.com/pion/webrtc/v4"

	"github.com/lectern/meshcall/internal/domain"
)

// Wire shapes for the signaling channel. Every frame is a flat JSON object
// tagged by "type"; only the fields of the given kind are present.

type envelope struct {
	Type string `json:"type"`
}

type joinRoomMsg struct {
	Type   string          `json:"type"`
	UserID domain.UserID   `json:"userId"`
	RoomID domain.RoomCode `json:"roomId"`
	Name   string          `json:"name"`
	Role   domain.Role     `json:"role"`
}

type sdpMsg struct {
	Type   string                     `json:"type"`
	Offer  *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer *webrtc.SessionDescription `json:"answer,omitempty"`
	To     domain.PeerID              `json:"to"`
	From   domain.PeerID              `json:"from"`
}

type candidateMsg struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	To        domain.PeerID           `json:"to"`
	From      domain.PeerID           `json:"from"`
}

type nameChangedMsg struct {
	Type    string          `json:"type"`
	RoomID  domain.RoomCode `json:"roomId"`
	NewName string          `json:"newName"`
}

type handRaisedMsg struct {
	Type     string          `json:"type"`
	RoomID   domain.RoomCode `json:"roomId"`
	IsRaised bool            `json:"isRaised"`
	UserName string          `json:"userName"`
}

type voiceActivityMsg struct {
	Type     string          `json:"type"`
	RoomID   domain.RoomCode `json:"roomId"`
	IsActive bool            `json:"isActive"`
}

// Inbound payloads.

type userEntry struct {
	UserID   domain.UserID `json:"userId"`
	SocketID domain.PeerID `json:"socketId"`
	Name     string        `json:"name"`
	Role     domain.Role   `json:"role"`
}

func (u userEntry) participant() domain.Participant {
	return domain.NewParticipant(u.SocketID, u.UserID, u.Name, u.Role)
}

type userListMsg struct {
	Type  string      `json:"type"`
	Users []userEntry `json:"users"`
}

type userDisconnectedMsg struct {
	Type     string        `json:"type"`
	SocketID domain.PeerID `json:"socketId"`
}

type userNameChangedMsg struct {
	Type     string        `json:"type"`
	SocketID domain.PeerID `json:"socketId"`
	NewName  string        `json:"newName"`
}

type userHandRaisedMsg struct {
	Type     string        `json:"type"`
	SocketID domain.PeerID `json:"socketId"`
	IsRaised bool          `json:"isRaised"`
	UserName string        `json:"userName"`
}

type userVoiceActivityMsg struct {
	Type     string        `json:"type"`
	SocketID domain.PeerID `json:"socketId"`
	IsActive bool          `json:"isActive"`
}

type moderatorLeftMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Countdown int    `json:"countdown"`
}

type moderatorReturnedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type roomLifecycleMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

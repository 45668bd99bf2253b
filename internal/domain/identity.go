// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")

	// ErrNoDeviceAccess means neither camera nor microphone could be
	// acquired; the session must not proceed to signaling.
	ErrNoDeviceAccess = errors.New("no device access")
)

type Role string

const (
	RoleModerator Role = "moderator"
	RoleStudent   Role = "student"
)

type UserID string

// Identity is the local participant as announced to the signaling server.
type Identity struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(name string, role Role) (Identity, error) {
	if len(name) == 0 {
		return Identity{}, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return Identity{}, ErrNameTooLong
	}
	if role != RoleModerator {
		role = RoleStudent
	}
	return Identity{UserID: UserID(uuid.NewString()), Name: name, Role: role}, nil
}

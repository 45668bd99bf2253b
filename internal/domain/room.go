package domain

import "errors"

const MaxRoomCodeLen = 36

var ErrRoomCodeEmpty = errors.New("room code empty")

// RoomCode is the class access code that identifies a call room.
type RoomCode string

type Room struct {
	Code RoomCode
}

func NewRoomCode(raw string) (RoomCode, error) {
	if raw == "" {
		return "", ErrRoomCodeEmpty
	}
	if len(raw) > MaxRoomCodeLen {
		raw = raw[:MaxRoomCodeLen]
	}
	return RoomCode(raw), nil
}

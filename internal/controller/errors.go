package controller

import "errors"

var (
	ErrNotInRoom       = errors.New("controller: not in a room")
	ErrInvalidRoomCode = errors.New("controller: invalid room code")
)

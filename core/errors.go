package core

import "errors"

var (
	// ErrRoomExists is returned when a create-intent join targets a room id
	// that is already taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomNotFound is returned when a join-intent targets an absent room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUnauthorized is returned when the supplied room password does not
	// exactly match the room's password.
	ErrUnauthorized = errors.New("invalid password")
	// ErrLastPage is returned when deleting the only remaining page of a room.
	ErrLastPage = errors.New("cannot delete the last page")
	// ErrInvalidActionType is returned when a committed action's type is not
	// in the known variant set.
	ErrInvalidActionType = errors.New("invalid action type")
)

package domain

import "errors"

var (
	// ErrDuplicateLike means the like-edge already exists remotely.
	ErrDuplicateLike = errors.New("like already exists")

	// ErrListingNotFound means the referenced listing no longer exists.
	ErrListingNotFound = errors.New("listing not found")

	// ErrRoomNotFound means the chat room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNoSession means an operation was attempted without a viewer.
	ErrNoSession = errors.New("no authenticated viewer")
)

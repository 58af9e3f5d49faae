package domain

import "errors"

var (
	// ErrNoPersonality is returned when an operation needs an active personality
	// and none is selected.
	ErrNoPersonality = errors.New("no personality selected")

	// ErrDiscussionNotFound is returned by stores for unknown discussion ids.
	ErrDiscussionNotFound = errors.New("discussion not found")
)

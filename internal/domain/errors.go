package domain

import "errors"

var (
	// ErrTransient marks network failures and 5xx responses that adapters retry.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks unknown players, matches or participants.
	ErrNotFound = errors.New("not found")
	// ErrCompletion marks a failed or empty AI completion.
	ErrCompletion = errors.New("completion failed")
	// ErrDelivery marks an outbound chat message the platform rejected.
	ErrDelivery = errors.New("delivery failed")

	ErrInvalidEvent = errors.New("invalid event")
)

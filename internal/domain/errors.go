package domain

import "errors"

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInvalidParticipant  = errors.New("invalid participant")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimited         = errors.New("rate limited")

	// delivery
	ErrNotConnected = errors.New("not connected")
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

package core

//go:generate mockgen -source=interfaces.go -destination=mocks/deliverer_mock.go -package=mocks

import "github.com/dkeye/meetsignal/internal/domain"

// Deliverer is the out-of-band push channel to connected users.
// Deliver must never block: a missing or saturated target is reported
// as an error and the event is dropped.
type Deliverer interface {
	Deliver(userID domain.UserID, ev domain.Event) error
}

// Frame is one encoded event as written to the wire.
type Frame []byte

// EventStream is a user's live push connection. TrySend never blocks;
// the adapter that opened the stream closes it.
type EventStream interface {
	TrySend(Frame) error
	Close()
}

// HostDirectory knows meeting creators recorded outside the coordinator.
type HostDirectory interface {
	HostOf(meeting domain.MeetingID) (domain.UserID, bool)
}

// MediaChange is the media flag a host command sets on its target.
type MediaChange struct {
	Flag  domain.MediaFlag
	Value bool
}

// JoinResult describes the room right after a join.
type JoinResult struct {
	Self    domain.Presence
	Others  []domain.Presence
	HostID  domain.UserID
	Created bool
	// Rejoined is set when the user was already present.
	Rejoined bool
}

// Departure describes a presence removal.
type Departure struct {
	MeetingID domain.MeetingID
	UserID    domain.UserID
	Remaining []domain.Presence
	// NewHost is non-empty when the departing user was host and
	// someone else got promoted.
	NewHost   domain.UserID
	Destroyed bool
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOffer             EventType = "offer"
	EventAnswer            EventType = "answer"
	EventICECandidate      EventType = "ice-candidate"
	EventMute              EventType = "mute-participant"
	EventUnmute            EventType = "unmute-participant"
	EventToggleVideo       EventType = "toggle-video"
	EventRemoved           EventType = "removed"
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventHostChanged       EventType = "host-changed"
)

// Event is what gets pushed to a user's outbound channel.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	MeetingID MeetingID       `json:"meetingId"`
	From      UserID          `json:"from,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	At        int64           `json:"at"`
}

func NewEvent(t EventType, meeting MeetingID, from UserID, data json.RawMessage) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		MeetingID: meeting,
		From:      from,
		Data:      data,
		At:        time.Now().UnixMilli(),
	}
}

// MustData marshals v for Event.Data. Only used with plain structs and maps.
func MustData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

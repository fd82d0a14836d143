package domain

import (
	"encoding/json"
	"time"
)

type MediaFlag string

const (
	FlagAudio MediaFlag = "audio"
	FlagVideo MediaFlag = "video"
)

// Presence is one participant's membership in a room.
// Values are snapshots; the room owns the live record.
type Presence struct {
	UserID       UserID          `json:"userId"`
	DisplayName  string          `json:"displayName,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Role         Role            `json:"role"`
	JoinedAt     time.Time       `json:"joinedAt"`
	AudioEnabled bool            `json:"audioEnabled"`
	VideoEnabled bool            `json:"videoEnabled"`
	LastSeen     time.Time       `json:"-"`
}

// JoinMeta is what a joiner tells about itself.
type JoinMeta struct {
	DisplayName string
	Metadata    json.RawMessage
}

func IDsOf(ps []Presence) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p.UserID))
	}
	return out
}

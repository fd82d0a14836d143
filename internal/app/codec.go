package app

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
)

// Codec turns events into wire frames for one connection.
type Codec interface {
	Name() string
	Binary() bool
	Encode(ev domain.Event) (core.Frame, error)
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(ev domain.Event) (core.Frame, error) {
	return json.Marshal(ev)
}

// MsgpackCodec re-decodes the JSON data blob so msgpack clients get
// native maps instead of an opaque byte string.
type MsgpackCodec struct{}

type msgpackEvent struct {
	ID        string `msgpack:"id"`
	Type      string `msgpack:"type"`
	MeetingID string `msgpack:"meetingId"`
	From      string `msgpack:"from,omitempty"`
	Data      any    `msgpack:"data,omitempty"`
	At        int64  `msgpack:"at"`
}

func (MsgpackCodec) Name() string { return "msgpack" }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(ev domain.Event) (core.Frame, error) {
	w := msgpackEvent{
		ID:        ev.ID,
		Type:      string(ev.Type),
		MeetingID: string(ev.MeetingID),
		From:      string(ev.From),
		At:        ev.At,
	}
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &w.Data); err != nil {
			return nil, fmt.Errorf("event data: %w", err)
		}
	}
	return msgpack.Marshal(w)
}

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

package domain

import "encoding/json"

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// SignalingMessage is never persisted.
type SignalingMessage struct {
	Type     SignalType
	SenderID UserID
	TargetID UserID
	Payload  json.RawMessage
}

type CommandType string

const (
	CommandMute        CommandType = "mute"
	CommandUnmute      CommandType = "unmute"
	CommandRemove      CommandType = "remove"
	CommandToggleVideo CommandType = "toggle-video"
)

// ControlCommand is advisory: the receiving client enforces it on itself.
type ControlCommand struct {
	Type     CommandType
	IssuerID UserID
	TargetID UserID
	Payload  json.RawMessage
}

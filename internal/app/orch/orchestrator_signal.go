package orch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

var signalEvents = map[domain.SignalType]domain.EventType{
	domain.SignalOffer:        domain.EventOffer,
	domain.SignalAnswer:       domain.EventAnswer,
	domain.SignalICECandidate: domain.EventICECandidate,
}

// Relay forwards a negotiation message from sender to target. Delivery is
// fire-and-forget; ErrParticipantNotFound is the normal outcome of a
// leave racing a negotiation and the client recovers via ICE restart.
func (o *Orchestrator) Relay(meeting domain.MeetingID, msg domain.SignalingMessage) error {
	if err := validatePair(meeting, msg.SenderID, msg.TargetID); err != nil {
		return err
	}
	if msg.SenderID == msg.TargetID {
		return fmt.Errorf("%w: cannot signal yourself", domain.ErrInvalidParticipant)
	}
	evType, ok := signalEvents[msg.Type]
	if !ok {
		return fmt.Errorf("%w: signal %q", domain.ErrInvalidAction, msg.Type)
	}
	// presence first: a peer that left gets ParticipantNotFound whatever it sent
	if !o.Rooms.Present(meeting, msg.SenderID, msg.TargetID) {
		log.Debug().Str("module", "orch").Str("meeting", string(meeting)).Str("from", string(msg.SenderID)).
			Str("to", string(msg.TargetID)).Str("type", string(msg.Type)).Msg("relay party absent")
		return domain.ErrParticipantNotFound
	}
	if err := ValidateSignalPayload(msg.Type, msg.Payload); err != nil {
		return err
	}

	ev := domain.NewEvent(evType, meeting, msg.SenderID, msg.Payload)
	if err := o.Rooms.Relay(meeting, msg.SenderID, msg.TargetID, ev); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			log.Debug().Str("module", "orch").Str("meeting", string(meeting)).Str("from", string(msg.SenderID)).
				Str("to", string(msg.TargetID)).Str("type", string(msg.Type)).Msg("relay target gone")
		}
		return err
	}
	return nil
}

// ValidateSignalPayload checks the blob is what a browser would produce:
// a typed session description with a parseable SDP, or an ICE candidate.
func ValidateSignalPayload(t domain.SignalType, payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty %s", domain.ErrInvalidPayload, t)
	}
	switch t {
	case domain.SignalOffer, domain.SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, t, err)
		}
		want := webrtc.SDPTypeOffer
		if t == domain.SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if desc.Type != want {
			return fmt.Errorf("%w: %s carries sdp type %q", domain.ErrInvalidPayload, t, desc.Type.String())
		}
		var parsed sdp.SessionDescription
		if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
			return fmt.Errorf("%w: %s sdp: %v", domain.ErrInvalidPayload, t, err)
		}
	case domain.SignalICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &cand); err != nil {
			return fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
		}
	}
	return nil
}

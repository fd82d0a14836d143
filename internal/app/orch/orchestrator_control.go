package orch

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

type removedData struct {
	Reason string        `json:"reason"`
	By     domain.UserID `json:"by"`
}

// IssueCommand runs a host-only control command against target. A caller
// that is not the room's host gets ErrForbidden whatever the target or
// payload; only then are the target and payload looked at. Commands are
// advisory; the presence flags are updated so snapshots reflect what the
// host asked for.
func (o *Orchestrator) IssueCommand(meeting domain.MeetingID, cmd domain.ControlCommand) error {
	if err := validatePair(meeting, cmd.IssuerID, cmd.IssuerID); err != nil {
		return err
	}
	if host, ok := o.Rooms.HostOf(meeting); !ok || host != cmd.IssuerID {
		log.Debug().Str("module", "orch").Str("meeting", string(meeting)).Str("issuer", string(cmd.IssuerID)).
			Str("command", string(cmd.Type)).Msg("command from non-host")
		return domain.ErrForbidden
	}
	if err := domain.ValidateID("user", string(cmd.TargetID)); err != nil {
		return err
	}

	var (
		evType domain.EventType
		change *core.MediaChange
		remove bool
		data   = cmd.Payload
	)
	switch cmd.Type {
	case domain.CommandMute:
		evType = domain.EventMute
		change = &core.MediaChange{Flag: domain.FlagAudio, Value: false}
	case domain.CommandUnmute:
		evType = domain.EventUnmute
		change = &core.MediaChange{Flag: domain.FlagAudio, Value: true}
	case domain.CommandToggleVideo:
		on, err := videoOn(cmd.Payload)
		if err != nil {
			return err
		}
		evType = domain.EventToggleVideo
		change = &core.MediaChange{Flag: domain.FlagVideo, Value: on}
	case domain.CommandRemove:
		evType = domain.EventRemoved
		remove = true
		data = domain.MustData(removedData{Reason: "removed by host", By: cmd.IssuerID})
	default:
		return fmt.Errorf("%w: command %q", domain.ErrInvalidAction, cmd.Type)
	}

	// the room re-checks the host under its lock; a transfer may have raced us
	ev := domain.NewEvent(evType, meeting, cmd.IssuerID, data)
	dep, err := o.Rooms.Command(meeting, cmd.IssuerID, cmd.TargetID, change, remove, ev)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("meeting", string(meeting)).Str("issuer", string(cmd.IssuerID)).
			Str("target", string(cmd.TargetID)).Str("command", string(cmd.Type)).Msg("command rejected")
		return err
	}
	if remove {
		o.announceDeparture(dep, "removed")
	}
	log.Info().Str("module", "orch").Str("meeting", string(meeting)).Str("issuer", string(cmd.IssuerID)).
		Str("target", string(cmd.TargetID)).Str("command", string(cmd.Type)).Msg("command issued")
	return nil
}

func videoOn(payload []byte) (bool, error) {
	var p struct {
		VideoOn *bool `json:"videoOn"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, fmt.Errorf("%w: toggle-video: %v", domain.ErrInvalidPayload, err)
		}
	}
	if p.VideoOn == nil {
		return false, fmt.Errorf("%w: toggle-video needs videoOn", domain.ErrInvalidPayload)
	}
	return *p.VideoOn, nil
}

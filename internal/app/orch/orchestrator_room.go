package orch

import (
	"context"
	"time"

	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinedData struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`
	Role        domain.Role   `json:"role"`
}

// Join puts user into the meeting and announces it to the others.
// Repeating a join changes nothing but metadata.
func (o *Orchestrator) Join(meeting domain.MeetingID, user domain.UserID, meta domain.JoinMeta) (core.JoinResult, error) {
	res, err := o.Rooms.Join(meeting, user, meta, o.designatedHost(meeting))
	if err != nil {
		return core.JoinResult{}, err
	}
	if !res.Rejoined {
		ev := domain.NewEvent(domain.EventParticipantJoined, meeting, user,
			domain.MustData(joinedData{UserID: user, DisplayName: res.Self.DisplayName, Role: res.Self.Role}))
		o.Rooms.Broadcast(meeting, user, ev)
	}
	log.Info().Str("module", "orch").Str("meeting", string(meeting)).Str("user", string(user)).
		Int("others", len(res.Others)).Msg("joined")
	return res, nil
}

// Leave is idempotent.
func (o *Orchestrator) Leave(meeting domain.MeetingID, user domain.UserID) error {
	if err := validatePair(meeting, user, user); err != nil {
		return err
	}
	dep, ok := o.Rooms.Leave(meeting, user)
	if !ok {
		log.Debug().Str("module", "orch").Str("meeting", string(meeting)).Str("user", string(user)).Msg("leave: not present")
		return nil
	}
	o.announceDeparture(dep, "left")
	log.Info().Str("module", "orch").Str("meeting", string(meeting)).Str("user", string(user)).
		Bool("destroyed", dep.Destroyed).Msg("left")
	return nil
}

// TransferHost hands host authority to another present participant.
func (o *Orchestrator) TransferHost(meeting domain.MeetingID, issuer, target domain.UserID) error {
	if err := validatePair(meeting, issuer, target); err != nil {
		return err
	}
	if err := o.Rooms.TransferHost(meeting, issuer, target); err != nil {
		return err
	}
	ev := domain.NewEvent(domain.EventHostChanged, meeting, issuer, domain.MustData(hostData{HostID: target}))
	o.Rooms.Broadcast(meeting, "", ev)
	return nil
}

func (o *Orchestrator) Participants(meeting domain.MeetingID) []domain.Presence {
	return o.Rooms.List(meeting)
}

func (o *Orchestrator) Meetings() []domain.RoomInfo {
	return o.Rooms.Rooms()
}

// Touch marks user as alive in meeting.
func (o *Orchestrator) Touch(meeting domain.MeetingID, user domain.UserID) {
	o.Rooms.Touch(meeting, user)
}

// TouchUser marks user as alive in every meeting they are in.
func (o *Orchestrator) TouchUser(user domain.UserID) {
	o.Rooms.TouchUser(user)
}

// Sweep reaps presences idle for longer than ttl.
func (o *Orchestrator) Sweep(ttl time.Duration) int {
	deps := o.Rooms.Sweep(ttl)
	for _, dep := range deps {
		o.announceDeparture(dep, "expired")
		log.Info().Str("module", "orch").Str("meeting", string(dep.MeetingID)).Str("user", string(dep.UserID)).Msg("presence expired")
	}
	return len(deps)
}

// RunJanitor sweeps every interval until ctx is done. A zero ttl disables it.
func (o *Orchestrator) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		log.Info().Str("module", "orch").Msg("presence ttl disabled")
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Str("module", "orch").Dur("ttl", ttl).Dur("interval", interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("janitor stopped")
			return
		case <-ticker.C:
			o.Sweep(ttl)
		}
	}
}

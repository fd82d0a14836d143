package orch

import (
	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the meeting coordinator: presence, signaling relay and
// host control on top of the room manager. Events go out through the
// rooms' Deliverer; nothing here blocks on peers.
type Orchestrator struct {
	Rooms *core.RoomManager
	Hosts core.HostDirectory
}

func (o *Orchestrator) designatedHost(meeting domain.MeetingID) domain.UserID {
	if o.Hosts == nil {
		return ""
	}
	if h, ok := o.Hosts.HostOf(meeting); ok {
		return h
	}
	return ""
}

func validatePair(meeting domain.MeetingID, a, b domain.UserID) error {
	if err := domain.ValidateID("meeting", string(meeting)); err != nil {
		return err
	}
	if err := domain.ValidateID("user", string(a)); err != nil {
		return err
	}
	return domain.ValidateID("user", string(b))
}

type departureData struct {
	UserID domain.UserID `json:"userId"`
	Reason string        `json:"reason"`
}

type hostData struct {
	HostID domain.UserID `json:"hostId"`
}

// announceDeparture tells the remaining members who left and, if the
// host changed on the way out, who is in charge now.
func (o *Orchestrator) announceDeparture(dep core.Departure, reason string) {
	if dep.Destroyed {
		return
	}
	left := domain.NewEvent(domain.EventParticipantLeft, dep.MeetingID, dep.UserID,
		domain.MustData(departureData{UserID: dep.UserID, Reason: reason}))
	sent := o.Rooms.Broadcast(dep.MeetingID, dep.UserID, left)

	if dep.NewHost != "" {
		changed := domain.NewEvent(domain.EventHostChanged, dep.MeetingID, "", domain.MustData(hostData{HostID: dep.NewHost}))
		o.Rooms.Broadcast(dep.MeetingID, "", changed)
	}
	log.Debug().Str("module", "orch").Str("meeting", string(dep.MeetingID)).Str("user", string(dep.UserID)).
		Str("reason", reason).Int("notified", sent).Msg("departure announced")
}

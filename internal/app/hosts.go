package app

import "github.com/dkeye/meetsignal/internal/domain"

// StaticHosts is a HostDirectory fed from configuration. The platform's
// meeting store would sit here in a full deployment.
type StaticHosts map[domain.MeetingID]domain.UserID

func NewStaticHosts(raw map[string]string) StaticHosts {
	h := make(StaticHosts, len(raw))
	for m, u := range raw {
		h[domain.MeetingID(m)] = domain.UserID(u)
	}
	return h
}

func (h StaticHosts) HostOf(meeting domain.MeetingID) (domain.UserID, bool) {
	u, ok := h[meeting]
	return u, ok
}

package app

import (
	"fmt"

	"github.com/dkeye/meetsignal/internal/domain"
)

type BackpressureAction int

const (
	// DropEvent silently loses the event; WebRTC renegotiation recovers.
	DropEvent BackpressureAction = iota
	// DisconnectSlow closes the saturated stream so the client reconnects.
	DisconnectSlow
)

type Policy interface {
	OnBackPressure(user domain.UserID) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.UserID) BackpressureAction { return DropEvent }

type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackPressure(domain.UserID) BackpressureAction { return DisconnectSlow }

// PolicyByName maps the slow_consumer config value.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "disconnect":
		return DisconnectPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow_consumer policy %q", name)
	}
}

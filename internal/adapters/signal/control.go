package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetsignal/internal/domain"
)

// The stream is push-only apart from keepalives. Actions go through
// POST /api/signaling so they get the gate's auth and status codes.
func (ctl *EventStreamController) handleSignal(user domain.UserID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(user)).Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.touch(user)
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "signal").Str("user", string(user)).Str("type", env.Type).Msg("unknown stream message")
		ctl.sendJSON(c, map[string]string{
			"type":  "error",
			"error": "use POST /api/signaling for actions",
		})
	}
}

func (ctl *EventStreamController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetsignal/internal/app"
	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
)

type StreamConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	SendBuffer int
}

// EventStreamController serves the per-user push channel. Each user has
// at most one live stream; events are queued by app.Registry and written
// by writePump. Clients only send pings here, everything else goes
// through the HTTP dispatch gate.
type EventStreamController struct {
	Registry *app.Registry
	// Touch refreshes the user's presence; nil when presence TTL is off.
	Touch func(user domain.UserID)
	Cfg   StreamConfig
}

type WsSignalConn struct {
	conn   *websocket.Conn
	send   chan core.Frame
	binary bool

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return domain.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// same-origin is enforced by the session cookie; the platform UI is served elsewhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleEvents upgrades the request of an authenticated caller into its
// event stream. ?codec=msgpack switches to binary frames.
func (ctl *EventStreamController) HandleEvents(ctx context.Context, c *gin.Context, user domain.UserID) {
	codec, err := app.CodecByName(c.Query("codec"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "InvalidCodec", "message": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user)).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, ctl.Cfg.SendBuffer),
		binary: codec.Binary(),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(user, conn, codec, cancel)
	log.Info().Str("module", "signal").Str("user", string(user)).Str("codec", codec.Name()).Msg("event stream opened")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, user, conn)
}

func (ctl *EventStreamController) touch(user domain.UserID) {
	if ctl.Touch != nil {
		ctl.Touch(user)
	}
}

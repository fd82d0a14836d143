package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn   core.EventStream
	Codec  Codec
	Cancel context.CancelFunc
}

// Registry maps connected users to their event stream. It is the
// core.Deliverer used by rooms: at most one live stream per user, the
// newest connection wins.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.UserID]*connEntry
	policy Policy
}

func NewRegistry(policy Policy) *Registry {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Registry{
		conns:  make(map[domain.UserID]*connEntry),
		policy: policy,
	}
}

// Bind registers conn for user and cancels any previous stream.
func (r *Registry) Bind(user domain.UserID, conn core.EventStream, codec Codec, cancel context.CancelFunc) {
	if codec == nil {
		codec = JSONCodec{}
	}
	r.mu.Lock()
	old := r.conns[user]
	r.conns[user] = &connEntry{Conn: conn, Codec: codec, Cancel: cancel}
	r.mu.Unlock()

	if old != nil {
		if old.Cancel != nil {
			old.Cancel()
		}
		old.Conn.Close()
		log.Info().Str("module", "app.registry").Str("user", string(user)).Msg("replaced stream")
	}
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("codec", codec.Name()).Msg("bound stream")
}

// Unbind removes conn only if it is still the user's current stream.
func (r *Registry) Unbind(user domain.UserID, conn core.EventStream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[user]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.conns, user)
	log.Info().Str("module", "app.registry").Str("user", string(user)).Msg("unbind stream")
	return true
}

func (r *Registry) Connected(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[user]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Deliver encodes ev and enqueues it without blocking.
func (r *Registry) Deliver(user domain.UserID, ev domain.Event) error {
	r.mu.RLock()
	e, ok := r.conns[user]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotConnected
	}

	frame, err := e.Codec.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("user", string(user)).Msg("encode event")
		return err
	}
	if err := e.Conn.TrySend(frame); err != nil {
		if errors.Is(err, domain.ErrBackpressure) && r.policy.OnBackPressure(user) == DisconnectSlow {
			log.Warn().Str("module", "app.registry").Str("user", string(user)).Msg("slow consumer disconnected")
			if e.Cancel != nil {
				e.Cancel()
			}
		}
		return err
	}
	return nil
}

// CloseAll cancels every stream; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*connEntry, 0, len(r.conns))
	for user, e := range r.conns {
		entries = append(entries, e)
		delete(r.conns, user)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Conn.Close()
	}
	log.Info().Str("module", "app.registry").Int("closed", len(entries)).Msg("closed all streams")
}

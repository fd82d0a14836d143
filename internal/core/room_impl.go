package core

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// room is a threadsafe in-memory meeting room.
// Once closed it never reopens; the manager swaps in a fresh room instead.
type room struct {
	id      domain.MeetingID
	out     Deliverer
	mu      sync.RWMutex
	host    domain.UserID
	members map[domain.UserID]*domain.Presence
	closed  atomic.Bool
}

func newRoom(id domain.MeetingID, out Deliverer) *room {
	return &room{
		id:      id,
		out:     out,
		members: make(map[domain.UserID]*domain.Presence),
	}
}

func (r *room) isClosed() bool { return r.closed.Load() }

// join returns false if the room closed before we got the lock.
func (r *room) join(user domain.UserID, meta domain.JoinMeta, designated domain.UserID, now time.Time) (JoinResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed() {
		return JoinResult{}, false
	}

	res := JoinResult{}
	if len(r.members) == 0 {
		res.Created = true
		r.host = user
		if designated != "" {
			r.host = designated
		}
	}

	p, ok := r.members[user]
	if ok {
		res.Rejoined = true
		if meta.DisplayName != "" {
			p.DisplayName = meta.DisplayName
		}
		if len(meta.Metadata) > 0 {
			p.Metadata = meta.Metadata
		}
		p.LastSeen = now
	} else {
		p = &domain.Presence{
			UserID:       user,
			DisplayName:  meta.DisplayName,
			Metadata:     meta.Metadata,
			Role:         domain.RoleParticipant,
			JoinedAt:     now,
			LastSeen:     now,
			AudioEnabled: true,
			VideoEnabled: true,
		}
		if user == r.host {
			p.Role = domain.RoleHost
		}
		r.members[user] = p
	}

	res.Self = *p
	res.HostID = r.host
	res.Others = r.snapshotLocked(user)
	log.Info().Str("module", "core.room").Str("meeting", string(r.id)).Str("user", string(user)).
		Bool("created", res.Created).Bool("rejoined", res.Rejoined).Msg("member joined")
	return res, true
}

// remove drops user if present and cond (when given) still holds.
func (r *room) remove(user domain.UserID, cond func(p *domain.Presence) bool) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(user, cond)
}

func (r *room) removeLocked(user domain.UserID, cond func(p *domain.Presence) bool) (Departure, bool) {
	dep := Departure{MeetingID: r.id, UserID: user}
	if r.isClosed() {
		return dep, false
	}
	p, ok := r.members[user]
	if !ok || (cond != nil && !cond(p)) {
		return dep, false
	}
	delete(r.members, user)

	if len(r.members) == 0 {
		r.closed.Store(true)
		dep.Destroyed = true
		log.Info().Str("module", "core.room").Str("meeting", string(r.id)).Str("user", string(user)).Msg("last member left, room closed")
		return dep, true
	}

	if user == r.host {
		next := r.earliestLocked()
		r.host = next.UserID
		next.Role = domain.RoleHost
		dep.NewHost = next.UserID
		log.Info().Str("module", "core.room").Str("meeting", string(r.id)).Str("host", string(next.UserID)).Msg("host promoted")
	}
	dep.Remaining = r.snapshotLocked("")
	log.Info().Str("module", "core.room").Str("meeting", string(r.id)).Str("user", string(user)).Int("remaining", len(r.members)).Msg("member removed")
	return dep, true
}

func (r *room) earliestLocked() *domain.Presence {
	var first *domain.Presence
	for _, p := range r.members {
		if first == nil || p.JoinedAt.Before(first.JoinedAt) ||
			(p.JoinedAt.Equal(first.JoinedAt) && p.UserID < first.UserID) {
			first = p
		}
	}
	return first
}

// snapshotLocked copies members ordered by join time, skipping except.
func (r *room) snapshotLocked(except domain.UserID) []domain.Presence {
	out := make([]domain.Presence, 0, len(r.members))
	for id, p := range r.members {
		if id == except {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *room) snapshot() []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isClosed() {
		return nil
	}
	return r.snapshotLocked("")
}

func (r *room) info() (domain.RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isClosed() {
		return domain.RoomInfo{}, false
	}
	return domain.RoomInfo{MeetingID: r.id, HostID: r.host, Participants: len(r.members)}, true
}

func (r *room) hostID() (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isClosed() {
		return "", false
	}
	return r.host, true
}

func (r *room) touch(user domain.UserID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[user]
	if !ok || r.isClosed() {
		return false
	}
	p.LastSeen = now
	return true
}

func (r *room) setMediaFlag(user domain.UserID, flag domain.MediaFlag, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[user]
	if !ok || r.isClosed() {
		return domain.ErrParticipantNotFound
	}
	applyFlag(p, flag, value)
	return nil
}

func applyFlag(p *domain.Presence, flag domain.MediaFlag, value bool) {
	switch flag {
	case domain.FlagAudio:
		p.AudioEnabled = value
	case domain.FlagVideo:
		p.VideoEnabled = value
	}
}

func (r *room) present(ids ...domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presentLocked(ids...)
}

func (r *room) presentLocked(ids ...domain.UserID) bool {
	if r.isClosed() {
		return false
	}
	for _, id := range ids {
		if _, ok := r.members[id]; !ok {
			return false
		}
	}
	return true
}

// relay delivers ev to target while holding the read lock, so the
// presence check and the enqueue happen at the same instant.
func (r *room) relay(sender, target domain.UserID, ev domain.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.presentLocked(sender, target) {
		return domain.ErrParticipantNotFound
	}
	r.deliverLocked(target, ev)
	return nil
}

// command runs a host-only mutation on target and notifies it.
// change may be nil; remove drops the target from the room first.
func (r *room) command(issuer, target domain.UserID, change *MediaChange, remove bool, ev domain.Event) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed() || issuer != r.host {
		return Departure{}, domain.ErrForbidden
	}
	if !r.presentLocked(issuer, target) {
		return Departure{}, domain.ErrParticipantNotFound
	}
	if change != nil {
		applyFlag(r.members[target], change.Flag, change.Value)
	}
	if !remove {
		r.deliverLocked(target, ev)
		return Departure{}, nil
	}
	dep, _ := r.removeLocked(target, nil)
	r.deliverLocked(target, ev)
	return dep, nil
}

func (r *room) transferHost(issuer, target domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed() || issuer != r.host {
		return domain.ErrForbidden
	}
	if !r.presentLocked(issuer, target) {
		return domain.ErrParticipantNotFound
	}
	if issuer == target {
		return nil
	}
	r.members[issuer].Role = domain.RoleParticipant
	r.members[target].Role = domain.RoleHost
	r.host = target
	log.Info().Str("module", "core.room").Str("meeting", string(r.id)).Str("from", string(issuer)).Str("to", string(target)).Msg("host transferred")
	return nil
}

// broadcast fans ev out to every member except one.
func (r *room) broadcast(except domain.UserID, ev domain.Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isClosed() {
		return 0
	}
	sent := 0
	for id := range r.members {
		if id == except {
			continue
		}
		if r.deliverLocked(id, ev) {
			sent++
		}
	}
	return sent
}

func (r *room) deliverLocked(target domain.UserID, ev domain.Event) bool {
	if r.out == nil {
		return false
	}
	if err := r.out.Deliver(target, ev); err != nil {
		log.Debug().Err(err).Str("module", "core.room").Str("meeting", string(r.id)).
			Str("target", string(target)).Str("event", string(ev.Type)).Msg("event dropped")
		return false
	}
	return true
}

func (r *room) stale(cutoff time.Time) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.UserID
	for id, p := range r.members {
		if p.LastSeen.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/meetsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager is the presence registry. It owns every live room and
// their lifecycle: a room is created by the first join and removed by the
// last departure. A departing room is first closed under its own lock and
// only then unlinked from the map, and only if the map still points at it,
// so a concurrent join either lands in a fresh room or in the old one
// before it closed.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[domain.MeetingID]*room
	out   Deliverer
	now   func() time.Time
}

func NewRoomManager(out Deliverer) *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.MeetingID]*room),
		out:   out,
		now:   time.Now,
	}
}

// SetClock replaces the time source; tests only.
func (m *RoomManager) SetClock(now func() time.Time) { m.now = now }

// acquire returns the live room for id, replacing a closed one.
func (m *RoomManager) acquire(id domain.MeetingID) *room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok || r.isClosed() {
		r = newRoom(id, m.out)
		m.rooms[id] = r
		log.Debug().Str("module", "core.manager").Str("meeting", string(id)).Msg("room allocated")
	}
	return r
}

func (m *RoomManager) get(id domain.MeetingID) (*room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok || r.isClosed() {
		return nil, false
	}
	return r, true
}

// unlink removes r only if it is still the registered room for its id.
func (m *RoomManager) unlink(r *room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.id]; ok && cur == r {
		delete(m.rooms, r.id)
		log.Info().Str("module", "core.manager").Str("meeting", string(r.id)).Msg("room destroyed")
	}
}

// Join adds user to the meeting, creating the room if needed. designated,
// when set, becomes host of a newly created room instead of the joiner.
func (m *RoomManager) Join(id domain.MeetingID, user domain.UserID, meta domain.JoinMeta, designated domain.UserID) (JoinResult, error) {
	if err := domain.ValidateID("meeting", string(id)); err != nil {
		return JoinResult{}, err
	}
	if err := domain.ValidateID("user", string(user)); err != nil {
		return JoinResult{}, err
	}
	for {
		r := m.acquire(id)
		if res, ok := r.join(user, meta, designated, m.now()); ok {
			return res, nil
		}
		// lost the race against the last leave; the next acquire allocates a new room
	}
}

// Leave is a no-op when user is not present.
func (m *RoomManager) Leave(id domain.MeetingID, user domain.UserID) (Departure, bool) {
	r, ok := m.get(id)
	if !ok {
		return Departure{MeetingID: id, UserID: user}, false
	}
	dep, ok := r.remove(user, nil)
	if dep.Destroyed {
		m.unlink(r)
	}
	return dep, ok
}

// List returns the presence snapshot, empty if the room does not exist.
func (m *RoomManager) List(id domain.MeetingID) []domain.Presence {
	r, ok := m.get(id)
	if !ok {
		return []domain.Presence{}
	}
	if s := r.snapshot(); s != nil {
		return s
	}
	return []domain.Presence{}
}

func (m *RoomManager) Exists(id domain.MeetingID) bool {
	_, ok := m.get(id)
	return ok
}

// Present reports whether every user in ids is in the meeting.
func (m *RoomManager) Present(id domain.MeetingID, ids ...domain.UserID) bool {
	r, ok := m.get(id)
	if !ok {
		return false
	}
	return r.present(ids...)
}

func (m *RoomManager) HostOf(id domain.MeetingID) (domain.UserID, bool) {
	r, ok := m.get(id)
	if !ok {
		return "", false
	}
	return r.hostID()
}

func (m *RoomManager) SetMediaFlag(id domain.MeetingID, user domain.UserID, flag domain.MediaFlag, value bool) error {
	r, ok := m.get(id)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	return r.setMediaFlag(user, flag, value)
}

// Touch refreshes the user's last-seen mark; false if not present.
func (m *RoomManager) Touch(id domain.MeetingID, user domain.UserID) bool {
	r, ok := m.get(id)
	if !ok {
		return false
	}
	return r.touch(user, m.now())
}

// TouchUser refreshes user in every meeting they are in and returns how
// many matched. The event stream heartbeat is per user, not per meeting.
func (m *RoomManager) TouchUser(user domain.UserID) int {
	m.mu.Lock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	now := m.now()
	n := 0
	for _, r := range rooms {
		if r.touch(user, now) {
			n++
		}
	}
	return n
}

// Relay delivers ev to target iff sender and target are both present.
func (m *RoomManager) Relay(id domain.MeetingID, sender, target domain.UserID, ev domain.Event) error {
	r, ok := m.get(id)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	return r.relay(sender, target, ev)
}

// Command authorizes issuer as host, checks both parties, applies the
// mutation and notifies target. remove also retracts target's presence.
func (m *RoomManager) Command(id domain.MeetingID, issuer, target domain.UserID, change *MediaChange, remove bool, ev domain.Event) (Departure, error) {
	r, ok := m.get(id)
	if !ok {
		return Departure{}, domain.ErrForbidden
	}
	dep, err := r.command(issuer, target, change, remove, ev)
	if dep.Destroyed {
		m.unlink(r)
	}
	return dep, err
}

func (m *RoomManager) TransferHost(id domain.MeetingID, issuer, target domain.UserID) error {
	r, ok := m.get(id)
	if !ok {
		return domain.ErrForbidden
	}
	return r.transferHost(issuer, target)
}

// Broadcast sends ev to every member of the room but except.
func (m *RoomManager) Broadcast(id domain.MeetingID, except domain.UserID, ev domain.Event) int {
	r, ok := m.get(id)
	if !ok {
		return 0
	}
	return r.broadcast(except, ev)
}

// Rooms lists live rooms ordered by meeting id.
func (m *RoomManager) Rooms() []domain.RoomInfo {
	m.mu.Lock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		if info, ok := r.info(); ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeetingID < out[j].MeetingID })
	return out
}

// Sweep removes presences not seen for ttl.
func (m *RoomManager) Sweep(ttl time.Duration) []Departure {
	if ttl <= 0 {
		return nil
	}
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	var out []Departure
	for _, r := range rooms {
		for _, user := range r.stale(cutoff) {
			dep, ok := r.remove(user, func(p *domain.Presence) bool { return p.LastSeen.Before(cutoff) })
			if !ok {
				continue
			}
			if dep.Destroyed {
				m.unlink(r)
			}
			out = append(out, dep)
		}
	}
	return out
}

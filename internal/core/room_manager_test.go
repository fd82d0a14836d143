package core_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetsignal/internal/core"
	"github.com/dkeye/meetsignal/internal/domain"
)

type sink struct {
	mu  sync.Mutex
	got map[domain.UserID][]domain.Event
}

func newSink() *sink { return &sink{got: make(map[domain.UserID][]domain.Event)} }

func (s *sink) Deliver(userID domain.UserID, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got[userID] = append(s.got[userID], ev)
	return nil
}

func (s *sink) events(u domain.UserID) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.got[u]...)
}

func ev(t domain.EventType) domain.Event { return domain.NewEvent(t, "m1", "", nil) }

func TestJoinReturnsOthers(t *testing.T) {
	m := core.NewRoomManager(newSink())

	res, err := m.Join("m1", "u1", domain.JoinMeta{}, "")
	require.NoError(t, err)
	assert.Empty(t, res.Others)
	assert.True(t, res.Created)
	assert.Equal(t, domain.UserID("u1"), res.HostID)
	assert.Equal(t, domain.RoleHost, res.Self.Role)

	res, err = m.Join("m1", "u2", domain.JoinMeta{DisplayName: "Bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, domain.IDsOf(res.Others))
	assert.False(t, res.Created)
	assert.Equal(t, domain.RoleParticipant, res.Self.Role)
	assert.Equal(t, "Bob", res.Self.DisplayName)
}

func TestJoinIsIdempotent(t *testing.T) {
	m := core.NewRoomManager(newSink())

	_, err := m.Join("m1", "u1", domain.JoinMeta{}, "")
	require.NoError(t, err)
	res, err := m.Join("m1", "u1", domain.JoinMeta{DisplayName: "again"}, "")
	require.NoError(t, err)

	assert.True(t, res.Rejoined)
	list := m.List("m1")
	require.Len(t, list, 1)
	assert.Equal(t, "again", list[0].DisplayName)
}

func TestJoinRejectsInvalidIDs(t *testing.T) {
	m := core.NewRoomManager(newSink())

	_, err := m.Join("m1", "", domain.JoinMeta{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)

	_, err = m.Join("", "u1", domain.JoinMeta{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)

	_, err = m.Join("m1", domain.UserID("bad\nid"), domain.JoinMeta{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)
	assert.False(t, m.Exists("m1"))
}

func TestLeaveDestroysRoomOnLastMember(t *testing.T) {
	m := core.NewRoomManager(newSink())
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	dep, ok := m.Leave("m1", "u1")
	require.True(t, ok)
	assert.False(t, dep.Destroyed)
	assert.True(t, m.Exists("m1"))

	dep, ok = m.Leave("m1", "u2")
	require.True(t, ok)
	assert.True(t, dep.Destroyed)
	assert.False(t, m.Exists("m1"))
	assert.Empty(t, m.List("m1"))
	assert.Empty(t, m.Rooms())

	_, ok = m.Leave("m1", "u2")
	assert.False(t, ok, "leave of an absent participant is a no-op")
}

func TestRelayRequiresBothPresent(t *testing.T) {
	out := newSink()
	m := core.NewRoomManager(out)
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	require.NoError(t, m.Relay("m1", "u1", "u2", ev(domain.EventOffer)))
	require.Len(t, out.events("u2"), 1)

	m.Leave("m1", "u1")
	err := m.Relay("m1", "u1", "u2", ev(domain.EventOffer))
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	err = m.Relay("m1", "u2", "ghost", ev(domain.EventOffer))
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	err = m.Relay("nope", "u1", "u2", ev(domain.EventOffer))
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	assert.Len(t, out.events("u2"), 1)
}

func TestRelayPreservesPairOrder(t *testing.T) {
	out := newSink()
	m := core.NewRoomManager(out)
	_, _ = m.Join("m1", "a", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "b", domain.JoinMeta{}, "")

	var want []string
	for i := 0; i < 50; i++ {
		e := domain.NewEvent(domain.EventICECandidate, "m1", "a", domain.MustData(i))
		want = append(want, e.ID)
		require.NoError(t, m.Relay("m1", "a", "b", e))
	}
	var got []string
	for _, e := range out.events("b") {
		got = append(got, e.ID)
	}
	assert.Equal(t, want, got)
}

func TestCommandForbiddenForNonHost(t *testing.T) {
	out := newSink()
	m := core.NewRoomManager(out)
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	for _, target := range []domain.UserID{"u1", "u2", "ghost", ""} {
		_, err := m.Command("m1", "u2", target, nil, false, ev(domain.EventMute))
		assert.ErrorIs(t, err, domain.ErrForbidden, "target %q", target)
	}
	_, err := m.Command("none", "u1", "u2", nil, false, ev(domain.EventMute))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, out.events("u1"))
}

func TestCommandAppliesMediaFlag(t *testing.T) {
	out := newSink()
	m := core.NewRoomManager(out)
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	mute := &core.MediaChange{Flag: domain.FlagAudio, Value: false}
	_, err := m.Command("m1", "u1", "u2", mute, false, ev(domain.EventMute))
	require.NoError(t, err)

	list := m.List("m1")
	require.Len(t, list, 2)
	assert.False(t, list[1].AudioEnabled)
	assert.True(t, list[1].VideoEnabled)
	assert.Len(t, out.events("u2"), 1)

	_, err = m.Command("m1", "u1", "ghost", mute, false, ev(domain.EventMute))
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	_, err = m.Command("m1", "u1", "u2", &core.MediaChange{Flag: domain.FlagVideo, Value: false}, false, ev(domain.EventToggleVideo))
	require.NoError(t, err)
	assert.False(t, m.List("m1")[1].VideoEnabled)
}

func TestPresent(t *testing.T) {
	m := core.NewRoomManager(newSink())
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	assert.True(t, m.Present("m1", "u1", "u2"))
	assert.False(t, m.Present("m1", "u1", "ghost"))
	assert.False(t, m.Present("none", "u1"))

	_, _ = m.Leave("m1", "u2")
	assert.False(t, m.Present("m1", "u2"))
}

func TestCommandRemoveRetractsPresence(t *testing.T) {
	out := newSink()
	m := core.NewRoomManager(out)
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	dep, err := m.Command("m1", "u1", "u2", nil, true, ev(domain.EventRemoved))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, domain.IDsOf(dep.Remaining))

	got := out.events("u2")
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventRemoved, got[0].Type)

	err = m.Relay("m1", "u1", "u2", ev(domain.EventOffer))
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestSetMediaFlag(t *testing.T) {
	m := core.NewRoomManager(newSink())
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")

	require.NoError(t, m.SetMediaFlag("m1", "u1", domain.FlagVideo, false))
	assert.False(t, m.List("m1")[0].VideoEnabled)
	assert.ErrorIs(t, m.SetMediaFlag("m1", "u9", domain.FlagVideo, false), domain.ErrParticipantNotFound)
	assert.ErrorIs(t, m.SetMediaFlag("m9", "u1", domain.FlagVideo, false), domain.ErrParticipantNotFound)
}

func TestHostPromotedWhenHostLeaves(t *testing.T) {
	now := time.Unix(1000, 0)
	m := core.NewRoomManager(newSink())
	m.SetClock(func() time.Time { return now })

	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	now = now.Add(time.Second)
	_, _ = m.Join("m1", "u3", domain.JoinMeta{}, "")
	now = now.Add(time.Second)
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	dep, ok := m.Leave("m1", "u1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u3"), dep.NewHost)

	host, ok := m.HostOf("m1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u3"), host)
	assert.Equal(t, domain.RoleHost, m.List("m1")[0].Role)
}

func TestDesignatedHost(t *testing.T) {
	m := core.NewRoomManager(newSink())

	res, err := m.Join("m1", "u2", domain.JoinMeta{}, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), res.HostID)
	assert.Equal(t, domain.RoleParticipant, res.Self.Role)

	res, err = m.Join("m1", "u1", domain.JoinMeta{}, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, res.Self.Role)
}

func TestTransferHost(t *testing.T) {
	m := core.NewRoomManager(newSink())
	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")

	assert.ErrorIs(t, m.TransferHost("m1", "u2", "u1"), domain.ErrForbidden)
	assert.ErrorIs(t, m.TransferHost("m1", "u1", "ghost"), domain.ErrParticipantNotFound)
	require.NoError(t, m.TransferHost("m1", "u1", "u2"))

	host, _ := m.HostOf("m1")
	assert.Equal(t, domain.UserID("u2"), host)
	_, err := m.Command("m1", "u1", "u2", nil, false, ev(domain.EventMute))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSweepRemovesStalePresence(t *testing.T) {
	now := time.Unix(1000, 0)
	m := core.NewRoomManager(newSink())
	m.SetClock(func() time.Time { return now })

	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m1", "u2", domain.JoinMeta{}, "")
	_, _ = m.Join("m2", "u3", domain.JoinMeta{}, "")

	now = now.Add(20 * time.Second)
	require.True(t, m.Touch("m1", "u2"))
	now = now.Add(20 * time.Second)

	assert.Nil(t, m.Sweep(0))
	deps := m.Sweep(30 * time.Second)
	require.Len(t, deps, 2)

	assert.Equal(t, []string{"u2"}, domain.IDsOf(m.List("m1")))
	assert.False(t, m.Exists("m2"))
	host, _ := m.HostOf("m1")
	assert.Equal(t, domain.UserID("u2"), host)
}

func TestTouchUserRefreshesEveryMeeting(t *testing.T) {
	now := time.Unix(1000, 0)
	m := core.NewRoomManager(newSink())
	m.SetClock(func() time.Time { return now })

	_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m2", "u1", domain.JoinMeta{}, "")
	_, _ = m.Join("m2", "u2", domain.JoinMeta{}, "")

	now = now.Add(40 * time.Second)
	assert.Equal(t, 2, m.TouchUser("u1"))
	assert.Zero(t, m.TouchUser("ghost"))

	deps := m.Sweep(30 * time.Second)
	require.Len(t, deps, 1)
	assert.Equal(t, domain.UserID("u2"), deps[0].UserID)
	assert.True(t, m.Exists("m1"))
}

func TestRoomExistsIffPresenceNonEmpty(t *testing.T) {
	m := core.NewRoomManager(newSink())
	users := []domain.UserID{"a", "b", "c"}
	ops := []struct {
		join bool
		user int
	}{
		{true, 0}, {true, 1}, {false, 0}, {true, 0}, {false, 1}, {false, 0},
		{false, 2}, {true, 2}, {true, 2}, {false, 2}, {true, 1}, {false, 1},
	}
	for i, op := range ops {
		if op.join {
			_, err := m.Join("m1", users[op.user], domain.JoinMeta{}, "")
			require.NoError(t, err)
		} else {
			m.Leave("m1", users[op.user])
		}
		assert.Equal(t, len(m.List("m1")) > 0, m.Exists("m1"), "step %d", i)
	}
}

func TestConcurrentJoinAndLeaveKeepEveryUpdate(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		m := core.NewRoomManager(newSink())
		_, _ = m.Join("m1", "stay", domain.JoinMeta{}, "")
		_, _ = m.Join("m1", "b", domain.JoinMeta{}, "")

		var wg conc.WaitGroup
		wg.Go(func() { _, _ = m.Join("m1", "a", domain.JoinMeta{}, "") })
		wg.Go(func() { m.Leave("m1", "b") })
		wg.Wait()

		assert.ElementsMatch(t, []string{"stay", "a"}, domain.IDsOf(m.List("m1")), "iteration %d", iter)
	}
}

func TestTeardownRacingJoinKeepsRoom(t *testing.T) {
	for iter := 0; iter < 500; iter++ {
		m := core.NewRoomManager(newSink())
		_, _ = m.Join("m1", "u1", domain.JoinMeta{}, "")

		var wg conc.WaitGroup
		wg.Go(func() { m.Leave("m1", "u1") })
		wg.Go(func() { _, _ = m.Join("m1", "u2", domain.JoinMeta{}, "") })
		wg.Wait()

		require.True(t, m.Exists("m1"), "iteration %d", iter)
		require.Equal(t, []string{"u2"}, domain.IDsOf(m.List("m1")), "iteration %d", iter)
		require.Len(t, m.Rooms(), 1)
	}
}

func TestManyRoomsInParallel(t *testing.T) {
	m := core.NewRoomManager(newSink())
	var wg conc.WaitGroup
	for r := 0; r < 16; r++ {
		meeting := domain.MeetingID(fmt.Sprintf("m%d", r))
		wg.Go(func() {
			for u := 0; u < 20; u++ {
				_, _ = m.Join(meeting, domain.UserID(fmt.Sprintf("u%d", u)), domain.JoinMeta{}, "")
			}
			for u := 0; u < 20; u += 2 {
				m.Leave(meeting, domain.UserID(fmt.Sprintf("u%d", u)))
			}
		})
	}
	wg.Wait()

	rooms := m.Rooms()
	require.Len(t, rooms, 16)
	for _, info := range rooms {
		assert.Equal(t, 10, info.Participants)
	}
}

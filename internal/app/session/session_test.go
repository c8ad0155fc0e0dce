package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/pkg/randx"
)

type fakeConn string

func (f fakeConn) ConnID() string { return string(f) }

func TestCreateIssuesUniqueOpaqueTokens(t *testing.T) {
	r := NewRegistry()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		s := r.Create("alice", fakeConn("c1"))

		require.True(t, randx.IsValidSessionToken(s.ID), "token %q is not a valid session token", s.ID)
		_, dup := seen[s.ID]
		require.False(t, dup, "duplicate token issued")
		seen[s.ID] = struct{}{}
	}

	assert.Equal(t, 50, r.Len())
}

func TestCreateStartsWithEmptyActiveRooms(t *testing.T) {
	r := NewRegistry()

	s := r.Create("alice", fakeConn("c1"))

	assert.Empty(t, s.ActiveRooms)
	assert.True(t, s.Connected())
	assert.Equal(t, "alice", s.Username)
}

func TestResumeReturnsStoredIdentity(t *testing.T) {
	r := NewRegistry()

	s := r.Create("alice", fakeConn("c1"))
	s.JoinRoom("general")
	s.JoinRoom("random")
	r.Detach(s.ID, fakeConn("c1"))

	// The username supplied on resume must not overwrite the stored one.
	resumed, err := r.Resume(s.ID, "impostor", fakeConn("c2"))
	require.NoError(t, err)

	assert.Same(t, s, resumed, "resume must update the session in place, not replace it")
	assert.Equal(t, "alice", resumed.Username)
	assert.Contains(t, resumed.ActiveRooms, "general")
	assert.Contains(t, resumed.ActiveRooms, "random")
	assert.True(t, resumed.Connected())
}

func TestResumeUnknownToken(t *testing.T) {
	r := NewRegistry()
	r.Create("alice", fakeConn("c1"))

	s, err := r.Resume("ffffffffffffffffffffffffffffffff", "alice", fakeConn("c2"))

	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, s)
}

func TestDetachKeepsSession(t *testing.T) {
	r := NewRegistry()

	s := r.Create("alice", fakeConn("c1"))
	r.Detach(s.ID, fakeConn("c1"))

	assert.False(t, s.Connected())
	require.NotNil(t, r.Get(s.ID), "detach must not delete the session")
}

func TestDetachIgnoresStaleConnection(t *testing.T) {
	r := NewRegistry()

	s := r.Create("alice", fakeConn("c1"))

	// Session moved to a new connection; the old connection's close arrives late.
	_, err := r.Resume(s.ID, "alice", fakeConn("c2"))
	require.NoError(t, err)

	r.Detach(s.ID, fakeConn("c1"))

	assert.True(t, s.Connected(), "stale detach must not clear the live connection")
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	r := NewRegistry()

	s := r.Create("alice", fakeConn("c1"))
	later := s.LastSeen.Add(time.Hour)

	r.Touch(s.ID, later)

	assert.Equal(t, later, s.LastSeen)
}

func TestReapDeletesOnlyStaleDisconnectedSessions(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	timeout := 24 * time.Hour

	stale := r.Create("stale", fakeConn("c1"))
	r.Detach(stale.ID, fakeConn("c1"))
	stale.LastSeen = now.Add(-25 * time.Hour)

	recent := r.Create("recent", fakeConn("c2"))
	r.Detach(recent.ID, fakeConn("c2"))
	recent.LastSeen = now.Add(-time.Hour)

	connected := r.Create("connected", fakeConn("c3"))
	connected.LastSeen = now.Add(-48 * time.Hour)

	expired := r.Reap(now, timeout)

	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	assert.Nil(t, r.Get(stale.ID))
	assert.NotNil(t, r.Get(recent.ID), "recently seen session must survive")
	assert.NotNil(t, r.Get(connected.ID), "session with a live connection is never reaped")
}

package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyLimit = 100

func TestJoinCreatesRoomLazily(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	rm, created := r.Join("general", "s1", "alice", now)
	require.NotNil(t, rm)
	assert.True(t, created)

	_, created = r.Join("general", "s2", "bob", now)
	assert.False(t, created, "second join must reuse the existing room")

	assert.Equal(t, []string{"alice", "bob"}, rm.Users())
}

func TestJoinIsIdempotentPerSession(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	r.Join("general", "s1", "alice", now)
	rm, _ := r.Join("general", "s1", "alice", now)

	assert.Equal(t, 1, rm.MemberCount())
}

func TestJoinThenLeaveLeavesRoomEmpty(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	r.Join("general", "s1", "alice", now)
	changed := r.Leave("general", "s1", now)

	assert.True(t, changed)
	assert.Equal(t, 0, r.Get("general").MemberCount())
	assert.Empty(t, r.Get("general").Users())
}

func TestLeaveMissingRoomOrMembershipIsNoOp(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	assert.False(t, r.Leave("nowhere", "s1", now))

	r.Join("general", "s1", "alice", now)
	assert.False(t, r.Leave("general", "s2", now))
	assert.Equal(t, 1, r.Get("general").MemberCount())
}

func TestUsersCollapsesDuplicateUsernames(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	r.Join("general", "s1", "alice", now)
	r.Join("general", "s2", "alice", now)
	r.Join("general", "s3", "bob", now)

	rm := r.Get("general")
	assert.Equal(t, []string{"alice", "bob"}, rm.Users())

	// One alice session leaving must not hide the other.
	r.Leave("general", "s1", now)
	assert.Equal(t, []string{"alice", "bob"}, rm.Users())

	r.Leave("general", "s2", now)
	assert.Equal(t, []string{"bob"}, rm.Users())
}

func TestRejoinOnlyForExistingRooms(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	assert.False(t, r.Rejoin("nowhere", "s1", "alice", now))

	r.Join("general", "s1", "alice", now)
	r.Leave("general", "s1", now)

	assert.True(t, r.Rejoin("general", "s1", "alice", now))
	assert.Equal(t, []string{"alice"}, r.Get("general").Users())
}

func TestHistoryIsBounded(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()
	r.Join("general", "s1", "alice", now)

	for i := 0; i < historyLimit+1; i++ {
		msg := Message{Chat: "general", User: "alice", Text: fmt.Sprintf("msg-%d", i), Timestamp: int64(i)}
		_, accepted := r.Append("general", msg, now)
		require.True(t, accepted)
	}

	history := r.Get("general").History()
	require.Len(t, history, historyLimit)

	// Oldest entry evicted, the rest in their original relative order.
	assert.Equal(t, "msg-1", history[0].Text)
	assert.Equal(t, fmt.Sprintf("msg-%d", historyLimit), history[historyLimit-1].Text)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Timestamp, history[i-1].Timestamp)
	}
}

func TestAppendToMissingRoomIsDropped(t *testing.T) {
	r := NewRegistry(historyLimit)

	_, accepted := r.Append("nowhere", Message{Chat: "nowhere", User: "alice", Text: "hi"}, time.Now())

	assert.False(t, accepted)
	assert.Nil(t, r.Get("nowhere"), "a dropped message must not create the room")
}

func TestHistoryReturnsCopy(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()
	r.Join("general", "s1", "alice", now)
	r.Append("general", Message{Chat: "general", User: "alice", Text: "hi", Timestamp: 1}, now)

	history := r.Get("general").History()
	history[0].Text = "tampered"

	assert.Equal(t, "hi", r.Get("general").History()[0].Text)
}

func TestNamesReturnsSortedSnapshot(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()

	r.Ensure("zebra", now)
	r.Ensure("alpha", now)
	r.Ensure("mango", now)

	assert.Equal(t, []string{"alpha", "mango", "zebra"}, r.Names())
}

func TestReapDeletesOnlyEmptyInactiveRooms(t *testing.T) {
	r := NewRegistry(historyLimit)
	now := time.Now()
	timeout := 7 * 24 * time.Hour

	stale, _ := r.Ensure("stale", now)
	stale.LastActivity = now.Add(-8 * 24 * time.Hour)

	occupied, _ := r.Join("occupied", "s1", "alice", now)
	occupied.LastActivity = now.Add(-30 * 24 * time.Hour)

	r.Ensure("fresh", now)

	removed := r.Reap(now, timeout)

	assert.Equal(t, []string{"stale"}, removed)
	assert.Equal(t, []string{"fresh", "occupied"}, r.Names())
}

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReducerTransitions(t *testing.T) {
	t0 := time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)
	sess := &Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: t0.Add(time.Hour)}
	user := &User{ID: "u1", Email: "bidan@akademi.ac.id", Role: "mahasiswa"}

	s := initialState()
	assert.False(t, s.IsActive)

	s = reduce(s, Action{Type: ActionSetSession, Session: sess, User: user, Now: t0})
	assert.True(t, s.IsActive)
	assert.False(t, s.WarningShown)
	assert.Equal(t, t0, s.LastActivity)
	assert.Equal(t, sess, s.Session)
	assert.Equal(t, user, s.User)

	s = reduce(s, Action{Type: ActionShowWarning})
	assert.True(t, s.WarningShown)

	// Activity clears the warning and touches the timestamp.
	s = reduce(s, Action{Type: ActionUpdateActivity, Now: t0.Add(time.Minute)})
	assert.False(t, s.WarningShown)
	assert.Equal(t, t0.Add(time.Minute), s.LastActivity)

	list := []ConcurrentSession{{ID: "a"}, {ID: "b"}}
	s = reduce(s, Action{Type: ActionSetConcurrentSessions, Sessions: list})
	assert.Equal(t, list, s.ConcurrentSessions)

	s = reduce(s, Action{Type: ActionReset})
	assert.Equal(t, initialState(), s)
}

func TestThrottleLeadingEdge(t *testing.T) {
	clock := newFakeClock()
	th := newThrottle(30*time.Second, clock.Now)

	assert.True(t, th.allow(), "leading call passes")
	clock.Advance(10 * time.Millisecond)
	assert.False(t, th.allow())
	clock.Advance(10 * time.Millisecond)
	assert.False(t, th.allow())

	clock.Advance(30 * time.Second)
	assert.True(t, th.allow(), "next window opens after the interval")

	th.reset()
	assert.True(t, th.allow(), "reset reopens the window immediately")
}

package session

import (
	"sync"
	"time"
)

// throttle admits at most one call per interval, on the leading edge: the
// first call in a window passes and the rest of the window is suppressed.
// This is a throttle, not a debounce; a steady stream of events still fires
// once per interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newThrottle(interval time.Duration, now func() time.Time) *throttle {
	if now == nil {
		now = time.Now
	}
	return &throttle{interval: interval, now: now}
}

// allow reports whether this call is the leading call of a window.
func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// reset reopens the window, so the next call passes immediately.
func (t *throttle) reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}

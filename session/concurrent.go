package session

import (
	"context"
	"time"
)

// SessionLister supplies the informational concurrent-session list. There is
// no live multi-device session registry behind this yet; the default
// implementation returns illustrative data.
type SessionLister interface {
	List(ctx context.Context, userID string) ([]ConcurrentSession, error)
}

type staticLister struct{}

var _ SessionLister = staticLister{}

func (staticLister) List(_ context.Context, _ string) ([]ConcurrentSession, error) {
	now := time.Now()
	return []ConcurrentSession{
		{
			ID:           "current",
			Device:       "Chrome di Windows",
			Location:     "Lab Komputer",
			LastActivity: now,
			Current:      true,
		},
		{
			ID:           "mobile",
			Device:       "Safari di iPhone",
			Location:     "Asrama",
			LastActivity: now.Add(-2 * time.Hour),
			Current:      false,
		},
	}, nil
}

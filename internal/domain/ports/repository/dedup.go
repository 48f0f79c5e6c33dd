package repository

import (
	"context"
	"time"
)

// EventDedup is the ephemeral at-most-once reservation for reconciliation
// events. FirstSeen atomically records an event id for the window and reports
// whether this caller was the first to see it. Release undoes a reservation
// when applying the event failed, so a retry can go through.
type EventDedup interface {
	FirstSeen(ctx context.Context, eventID string, window time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}

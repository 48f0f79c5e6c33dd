// File: internal/infra/redis/event_dedup.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"freelancer-dashboard-billing/internal/domain/ports/repository"
)

var _ repository.EventDedup = (*EventDedup)(nil)

// EventDedup records reconciliation event ids for the dedup window.
// SETNX gives the at-most-once guarantee: exactly one concurrent caller per
// event id observes first=true, no matter how the requests interleave.
type EventDedup struct {
	cli    *redis.Client
	prefix string
}

func NewEventDedup(c *Client) *EventDedup {
	return &EventDedup{cli: c.cli, prefix: "billing:event:"}
}

func (d *EventDedup) FirstSeen(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return d.cli.SetNX(ctx, d.prefix+eventID, time.Now().UnixNano(), window).Result()
}

func (d *EventDedup) Release(ctx context.Context, eventID string) error {
	return d.cli.Del(ctx, d.prefix+eventID).Err()
}

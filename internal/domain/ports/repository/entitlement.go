package repository

import (
	"context"
	"time"

	"freelancer-dashboard-billing/internal/domain/model"
)

// EntitlementRepository is the port for the persisted per-user SubscriptionRecord.
//
// UpdateIf is a single-row conditional write: it only applies when the stored
// updated_at still equals expectedUpdatedAt, and returns domain.ErrConflict
// otherwise (domain.ErrNotFound when the row is gone). This is the sole
// synchronization primitive between concurrent writers; callers re-read and
// retry on conflict.
type EntitlementRepository interface {
	Find(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
	FindByEmail(ctx context.Context, email string) (*model.SubscriptionRecord, error)
	Create(ctx context.Context, rec *model.SubscriptionRecord) error
	UpdateIf(ctx context.Context, rec *model.SubscriptionRecord, expectedUpdatedAt time.Time) error

	// FindDueForExpiry lists cancelling records whose grace period lapsed at or
	// before now, for the expiry sweep.
	FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.SubscriptionRecord, error)

	// CountByStatus feeds the subscriptions_total gauge.
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

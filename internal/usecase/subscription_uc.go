// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase implements the two user-facing billing operations.
// Both are synchronous: a failed provider call surfaces immediately and leaves
// local state untouched, retry is the caller's choice.
type SubscriptionUseCase interface {
	Cancel(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
	Reactivate(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
	Get(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
}

type subscriptionUC struct {
	records    repository.EntitlementRepository
	reconciler ReconcilerUseCase
	log        *zerolog.Logger
}

func NewSubscriptionUseCase(records repository.EntitlementRepository, reconciler ReconcilerUseCase, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{records: records, reconciler: reconciler, log: &l}
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	return u.command(ctx, userID, model.EventSourceUserCancel)
}

func (u *subscriptionUC) Reactivate(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	return u.command(ctx, userID, model.EventSourceUserReactivate)
}

func (u *subscriptionUC) Get(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	return u.records.Find(ctx, userID)
}

func (u *subscriptionUC) command(ctx context.Context, userID string, source model.EventSource) (*model.SubscriptionRecord, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := u.records.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.SubscriptionID == nil || *rec.SubscriptionID == "" {
		if source == model.EventSourceUserReactivate {
			return nil, domain.ErrNothingToReactivate
		}
		return nil, domain.ErrNoActiveSubscription
	}
	if source == model.EventSourceUserReactivate &&
		rec.Status != model.SubscriptionStatusCancelling && rec.Status != model.SubscriptionStatusCancelled {
		return nil, domain.ErrNothingToReactivate
	}

	// The nonce is keyed on the record revision the caller saw, so a
	// double-submitted command collapses into one event while a later repeat
	// (after the record moved on) gets a fresh id.
	ev := &model.ReconciliationEvent{
		EventID:        model.CommandNonce(source, *rec.SubscriptionID, rec.UpdatedAt),
		Source:         source,
		SubscriptionID: *rec.SubscriptionID,
		UserID:         userID,
		ReceivedAt:     time.Now(),
	}
	return u.reconciler.Apply(ctx, ev)
}

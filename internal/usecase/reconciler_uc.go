// File: internal/usecase/reconciler_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/domain/ports/adapter"
	"freelancer-dashboard-billing/internal/domain/ports/repository"
	"freelancer-dashboard-billing/internal/infra/metrics"
)

// maxWriteAttempts bounds the read-modify-retry cycle on conditional-write
// conflicts before surfacing ErrReconciliationConflict.
const maxWriteAttempts = 3

// Compile-time check
var _ ReconcilerUseCase = (*reconcilerUC)(nil)

// ReconcilerUseCase is the single writer of SubscriptionRecord state. It folds
// user commands, provider webhooks and expiry sweeps into the record with
// idempotency (durable via LastEventID, ephemeral via the dedup window) and
// optimistic-concurrency conflict handling.
type ReconcilerUseCase interface {
	// Apply runs one ReconciliationEvent against the stored record and returns
	// the resulting record. A duplicate event is a no-op and returns the
	// current record, not an error.
	Apply(ctx context.Context, ev *model.ReconciliationEvent) (*model.SubscriptionRecord, error)
}

type reconcilerUC struct {
	records repository.EntitlementRepository
	dedup   repository.EventDedup
	gateway adapter.BillingGateway
	window  time.Duration
	log     *zerolog.Logger
}

func NewReconcilerUseCase(
	records repository.EntitlementRepository,
	dedup repository.EventDedup,
	gateway adapter.BillingGateway,
	dedupWindow time.Duration,
	logger *zerolog.Logger,
) *reconcilerUC {
	l := logger.With().Str("component", "Reconciler").Logger()
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	return &reconcilerUC{
		records: records,
		dedup:   dedup,
		gateway: gateway,
		window:  dedupWindow,
		log:     &l,
	}
}

func (u *reconcilerUC) Apply(ctx context.Context, ev *model.ReconciliationEvent) (*model.SubscriptionRecord, error) {
	if ev == nil || ev.EventID == "" {
		return nil, domain.ErrInvalidArgument
	}

	rec, err := u.load(ctx, ev)
	if err != nil {
		return nil, err
	}

	// Durable idempotency: the record already carries this event.
	if rec.LastEventID == ev.EventID {
		metrics.IncReconcileDuplicate(string(ev.Source))
		return rec, nil
	}

	// Ephemeral at-most-once reservation. Losing the race to a concurrent
	// delivery of the same event is a no-op, same as the durable check.
	reserved, err := u.dedup.FirstSeen(ctx, ev.EventID, u.window)
	if err != nil {
		// Dedup store down: proceed on the durable check alone rather than
		// dropping provider notifications.
		u.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("event dedup unavailable")
		reserved = false
	} else if !reserved {
		metrics.IncReconcileDuplicate(string(ev.Source))
		return rec, nil
	}

	next, err := u.apply(ctx, rec, ev)
	if err != nil && reserved {
		// Undo the reservation so a retry of the same event can go through.
		if relErr := u.dedup.Release(ctx, ev.EventID); relErr != nil {
			u.log.Warn().Err(relErr).Str("event_id", ev.EventID).Msg("dedup release failed")
		}
	}
	return next, err
}

// apply drives the provider call (user commands only) and the conditional
// write loop. rec is the freshly loaded record.
func (u *reconcilerUC) apply(ctx context.Context, rec *model.SubscriptionRecord, ev *model.ReconciliationEvent) (*model.SubscriptionRecord, error) {
	// User commands hit the provider exactly once, before any local write, and
	// only from a state the transition table allows.
	if ev.Source == model.EventSourceUserCancel || ev.Source == model.EventSourceUserReactivate {
		if err := checkCommandPrecondition(rec, ev.Source); err != nil {
			return nil, err
		}
		if err := u.callProvider(ctx, ev); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		next, applied, err := transition(rec, ev, time.Now())
		if err != nil {
			return nil, err
		}
		if !applied {
			return rec, nil
		}

		err = u.records.UpdateIf(ctx, next, rec.UpdatedAt)
		if err == nil {
			metrics.IncReconcileApplied(string(ev.Source))
			u.log.Info().
				Str("event_id", ev.EventID).
				Str("source", string(ev.Source)).
				Str("user_id", next.UserID).
				Str("status", string(next.Status)).
				Msg("event applied")
			return next, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}

		// Lost the write race: re-read and re-evaluate before retrying.
		metrics.IncReconcileConflict()
		rec, err = u.load(ctx, ev)
		if err != nil {
			return nil, err
		}
		if rec.LastEventID == ev.EventID {
			return rec, nil
		}
		if ev.Source == model.EventSourceUserCancel || ev.Source == model.EventSourceUserReactivate {
			if err := checkCommandPrecondition(rec, ev.Source); err != nil {
				return nil, err
			}
		}
	}
	return nil, domain.ErrReconciliationConflict
}

func (u *reconcilerUC) load(ctx context.Context, ev *model.ReconciliationEvent) (*model.SubscriptionRecord, error) {
	if ev.UserID != "" {
		return u.records.Find(ctx, ev.UserID)
	}
	if ev.UserEmail != "" {
		return u.records.FindByEmail(ctx, ev.UserEmail)
	}
	return nil, domain.ErrMalformedPayload
}

// callProvider executes the billing-provider side of a user command and folds
// the provider's view of the subscription into the event attributes.
func (u *reconcilerUC) callProvider(ctx context.Context, ev *model.ReconciliationEvent) error {
	var (
		ps  adapter.ProviderSubscription
		err error
	)
	switch ev.Source {
	case model.EventSourceUserCancel:
		ps, err = u.gateway.Cancel(ctx, ev.SubscriptionID)
	case model.EventSourceUserReactivate:
		ps, err = u.gateway.Reactivate(ctx, ev.SubscriptionID)
	default:
		return domain.ErrInvalidArgument
	}
	if err != nil {
		return err
	}
	ev.Cancelled = ps.Cancelled
	ev.EndsAt = ps.EndsAt
	ev.RenewsAt = ps.RenewsAt
	return nil
}

func checkCommandPrecondition(rec *model.SubscriptionRecord, source model.EventSource) error {
	switch source {
	case model.EventSourceUserCancel:
		if rec.Status != model.SubscriptionStatusActive {
			return domain.ErrPreconditionFailed
		}
	case model.EventSourceUserReactivate:
		if rec.Status != model.SubscriptionStatusCancelling && rec.Status != model.SubscriptionStatusCancelled {
			return domain.ErrPreconditionFailed
		}
	}
	return nil
}

// transition evaluates the state machine for one event against one record.
// It returns a modified copy and applied=true, or applied=false for a
// recorded no-op (event inapplicable in the current state but not an error).
// The input record is never mutated.
func transition(rec *model.SubscriptionRecord, ev *model.ReconciliationEvent, now time.Time) (*model.SubscriptionRecord, bool, error) {
	n := *rec

	switch ev.Source {
	case model.EventSourceUserCancel:
		if rec.Status != model.SubscriptionStatusActive {
			return nil, false, domain.ErrPreconditionFailed
		}
		n.Status = model.SubscriptionStatusCancelling
		n.CurrentPeriodEnd = ev.EndsAt
		n.RenewsAt = nil

	case model.EventSourceUserReactivate:
		if rec.Status != model.SubscriptionStatusCancelling && rec.Status != model.SubscriptionStatusCancelled {
			return nil, false, domain.ErrPreconditionFailed
		}
		n.Status = model.SubscriptionStatusActive
		n.CurrentPeriodEnd = nil
		n.RenewsAt = ev.RenewsAt

	case model.EventSourceExpirySweep:
		if rec.Status != model.SubscriptionStatusCancelling {
			return rec, false, nil
		}
		n.Status = model.SubscriptionStatusCancelled
		n.RenewsAt = nil

	case model.EventSourceWebhook:
		name := ev.Name
		if name == model.EventSubscriptionUpdated {
			// updated carries the full provider state; route it by its
			// cancelled attribute.
			if ev.Cancelled {
				name = model.EventSubscriptionCancelled
			} else {
				name = model.EventSubscriptionResumed
			}
		}
		switch name {
		case model.EventSubscriptionCreated, model.EventSubscriptionResumed:
			n.Status = model.SubscriptionStatusActive
			n.RenewsAt = ev.RenewsAt
			n.CurrentPeriodEnd = nil
			if ev.SubscriptionID != "" {
				sid := ev.SubscriptionID
				n.SubscriptionID = &sid
			}

		case model.EventSubscriptionCancelled:
			// The provider is authoritative: applied from any state. Access
			// keeps its grace period until EndsAt.
			n.Status = model.SubscriptionStatusCancelling
			if ev.EndsAt != nil && !ev.EndsAt.After(now) {
				n.Status = model.SubscriptionStatusCancelled
			}
			n.CurrentPeriodEnd = ev.EndsAt
			n.RenewsAt = nil
			if ev.SubscriptionID != "" {
				sid := ev.SubscriptionID
				n.SubscriptionID = &sid
			}

		case model.EventSubscriptionExpired:
			// Only a cancelling record expires. An expired notice against an
			// active record means the provider's own cancelled notice never
			// arrived; do not jump active -> cancelled.
			if rec.Status != model.SubscriptionStatusCancelling {
				return rec, false, nil
			}
			n.Status = model.SubscriptionStatusCancelled
			n.RenewsAt = nil

		default:
			return nil, false, domain.ErrUnsupportedEvent
		}

	default:
		return nil, false, domain.ErrInvalidArgument
	}

	n.LastEventID = ev.EventID
	n.Normalize(now)
	n.UpdatedAt = now
	if !now.After(rec.UpdatedAt) {
		// updated_at is the concurrency token and must strictly advance.
		n.UpdatedAt = rec.UpdatedAt.Add(time.Microsecond)
	}
	return &n, true, nil
}

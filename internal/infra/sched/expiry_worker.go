package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/domain/ports/repository"
	"freelancer-dashboard-billing/internal/infra/metrics"
	"freelancer-dashboard-billing/internal/usecase"
)

// ExpiryWorker periodically closes lapsed grace periods: cancelling records
// whose current_period_end has passed get a synthetic expiry event applied
// through the reconciler. This covers a subscription_expired webhook that
// never arrived. Sweep event ids are deterministic, so overlapping runs and
// a racing real webhook deduplicate instead of double-applying.
type ExpiryWorker struct {
	interval   time.Duration
	batch      int
	records    repository.EntitlementRepository
	reconciler usecase.ReconcilerUseCase
	log        *zerolog.Logger
}

func NewExpiryWorker(
	interval time.Duration,
	batch int,
	records repository.EntitlementRepository,
	reconciler usecase.ReconcilerUseCase,
	logger *zerolog.Logger,
) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = 200
	}
	return &ExpiryWorker{
		interval:   interval,
		batch:      batch,
		records:    records,
		reconciler: reconciler,
		log:        &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n := w.sweep(ctx)
			if n > 0 {
				metrics.IncSubscriptionsExpired(n)
				w.log.Info().Int("count", n).Msg("grace periods closed")
			}
			w.refreshGauge(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) int {
	now := time.Now()
	due, err := w.records.FindDueForExpiry(ctx, now, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry scan failed")
		return 0
	}
	expired := 0
	for _, rec := range due {
		if rec.SubscriptionID == nil || rec.CurrentPeriodEnd == nil {
			continue
		}
		ev := &model.ReconciliationEvent{
			EventID:        model.SweepNonce(*rec.SubscriptionID, *rec.CurrentPeriodEnd),
			Source:         model.EventSourceExpirySweep,
			SubscriptionID: *rec.SubscriptionID,
			UserID:         rec.UserID,
			ReceivedAt:     now,
		}
		if _, err := w.reconciler.Apply(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("user_id", rec.UserID).Msg("expiry apply failed")
			continue
		}
		expired++
	}
	return expired
}

func (w *ExpiryWorker) refreshGauge(ctx context.Context) {
	counts, err := w.records.CountByStatus(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("status count failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}

//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/infra/sched"
)

type stubRepo struct {
	mu  sync.Mutex
	due []*model.SubscriptionRecord
}

func (s *stubRepo) Find(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	return nil, domain.ErrNotFound
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*model.SubscriptionRecord, error) {
	return nil, domain.ErrNotFound
}

func (s *stubRepo) Create(ctx context.Context, rec *model.SubscriptionRecord) error { return nil }

func (s *stubRepo) UpdateIf(ctx context.Context, rec *model.SubscriptionRecord, expected time.Time) error {
	return nil
}

func (s *stubRepo) FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.due
	s.due = nil
	return out, nil
}

func (s *stubRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{}, nil
}

type recordingReconciler struct {
	mu     sync.Mutex
	events []*model.ReconciliationEvent
}

func (r *recordingReconciler) Apply(ctx context.Context, ev *model.ReconciliationEvent) (*model.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return &model.SubscriptionRecord{UserID: ev.UserID, Status: model.SubscriptionStatusCancelled}, nil
}

func (r *recordingReconciler) applied() []*model.ReconciliationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.ReconciliationEvent(nil), r.events...)
}

func TestExpiryWorker_Run(t *testing.T) {
	logger := zerolog.New(io.Discard)

	t.Run("should sweep lapsed records through the reconciler", func(t *testing.T) {
		sid := "sub-900"
		ends := time.Now().Add(-time.Hour)
		repo := &stubRepo{due: []*model.SubscriptionRecord{
			{
				UserID:           "user-1",
				Email:            "dana@example.test",
				SubscriptionID:   &sid,
				Status:           model.SubscriptionStatusCancelling,
				CurrentPeriodEnd: &ends,
			},
			// A row without a subscription id cannot be swept and is skipped.
			{
				UserID:           "user-2",
				Email:            "odd@example.test",
				Status:           model.SubscriptionStatusCancelling,
				CurrentPeriodEnd: &ends,
			},
		}}
		rc := &recordingReconciler{}
		w := sched.NewExpiryWorker(10*time.Millisecond, 50, repo, rc, &logger)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := w.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got: %v", err)
		}

		events := rc.applied()
		if len(events) != 1 {
			t.Fatalf("expected 1 sweep event, got %d", len(events))
		}
		ev := events[0]
		if ev.Source != model.EventSourceExpirySweep {
			t.Errorf("expected expiry-sweep source, got %s", ev.Source)
		}
		if ev.UserID != "user-1" || ev.SubscriptionID != "sub-900" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.EventID != model.SweepNonce("sub-900", ends) {
			t.Errorf("sweep event id must be the deterministic nonce, got %q", ev.EventID)
		}
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		w := sched.NewExpiryWorker(time.Hour, 50, &stubRepo{}, &recordingReconciler{}, &logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	})
}

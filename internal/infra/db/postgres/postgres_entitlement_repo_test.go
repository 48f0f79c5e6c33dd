//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
)

func TestEntitlementRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewEntitlementRepo(testPool)

	newRecord := func(t *testing.T, email string) *model.SubscriptionRecord {
		t.Helper()
		rec, err := model.NewSubscriptionRecord(uuid.NewString(), email)
		if err != nil {
			t.Fatalf("new record: %v", err)
		}
		return rec
	}

	t.Run("should create and find a record by id and email", func(t *testing.T) {
		cleanup(t)
		rec := newRecord(t, "Dana@Example.Test")
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}

		found, err := repo.Find(ctx, rec.UserID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.Email != rec.Email || found.Status != model.SubscriptionStatusNone {
			t.Errorf("unexpected record: %+v", found)
		}

		// Email lookup is case insensitive.
		byEmail, err := repo.FindByEmail(ctx, "dana@example.test")
		if err != nil {
			t.Fatalf("find by email: %v", err)
		}
		if byEmail.UserID != rec.UserID {
			t.Error("email lookup returned the wrong record")
		}
	})

	t.Run("should refuse a duplicate user id", func(t *testing.T) {
		cleanup(t)
		rec := newRecord(t, "dana@example.test")
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got: %v", err)
		}
	})

	t.Run("should return ErrNotFound for unknown keys", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.Find(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.FindByEmail(ctx, "ghost@example.test"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("should apply a conditional update only against the expected revision", func(t *testing.T) {
		cleanup(t)
		rec := newRecord(t, "dana@example.test")
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}

		sid := "sub-900"
		next := *rec
		next.SubscriptionID = &sid
		next.Status = model.SubscriptionStatusActive
		next.Plan = model.PlanPro
		next.LastEventID = "evt-1"
		next.UpdatedAt = rec.UpdatedAt.Add(time.Second)

		if err := repo.UpdateIf(ctx, &next, rec.UpdatedAt); err != nil {
			t.Fatalf("conditional update: %v", err)
		}

		// A second writer still holding the old revision must lose.
		stale := next
		stale.Status = model.SubscriptionStatusCancelling
		if err := repo.UpdateIf(ctx, &stale, rec.UpdatedAt); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got: %v", err)
		}

		found, err := repo.Find(ctx, rec.UserID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.Status != model.SubscriptionStatusActive || found.LastEventID != "evt-1" {
			t.Errorf("stale write must not land, got: %+v", found)
		}
	})

	t.Run("should tell a conflict apart from a missing row", func(t *testing.T) {
		cleanup(t)
		ghost := newRecord(t, "ghost@example.test")
		if err := repo.UpdateIf(ctx, ghost, ghost.UpdatedAt); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("should list only lapsed cancelling records for expiry", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)

		lapsed := newRecord(t, "lapsed@example.test")
		sid1 := "sub-1"
		lapsed.SubscriptionID = &sid1
		lapsed.Status = model.SubscriptionStatusCancelling
		lapsed.CurrentPeriodEnd = &past

		running := newRecord(t, "running@example.test")
		sid2 := "sub-2"
		running.SubscriptionID = &sid2
		running.Status = model.SubscriptionStatusCancelling
		running.CurrentPeriodEnd = &future

		active := newRecord(t, "active@example.test")
		sid3 := "sub-3"
		active.SubscriptionID = &sid3
		active.Status = model.SubscriptionStatusActive

		for _, rec := range []*model.SubscriptionRecord{lapsed, running, active} {
			if err := repo.Create(ctx, rec); err != nil {
				t.Fatalf("create %s: %v", rec.Email, err)
			}
		}

		due, err := repo.FindDueForExpiry(ctx, now, 10)
		if err != nil {
			t.Fatalf("find due: %v", err)
		}
		if len(due) != 1 || due[0].UserID != lapsed.UserID {
			t.Errorf("expected only the lapsed record, got %d", len(due))
		}
	})

	t.Run("should count records by status", func(t *testing.T) {
		cleanup(t)
		a := newRecord(t, "a@example.test")
		b := newRecord(t, "b@example.test")
		b.Status = model.SubscriptionStatusActive
		for _, rec := range []*model.SubscriptionRecord{a, b} {
			if err := repo.Create(ctx, rec); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		counts, err := repo.CountByStatus(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if counts[model.SubscriptionStatusNone] != 1 || counts[model.SubscriptionStatusActive] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}

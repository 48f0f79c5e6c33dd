//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/domain/ports/adapter"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// memEntitlementRepo is a small in-memory implementation used by unit tests.
// UpdateIf honors the conditional-write contract, and the Func fields let a
// test override single methods to simulate races and failures.
type memEntitlementRepo struct {
	mu    sync.RWMutex
	store map[string]*model.SubscriptionRecord // by user id

	FindFunc     func(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
	UpdateIfFunc func(ctx context.Context, rec *model.SubscriptionRecord, expected time.Time) error
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{store: make(map[string]*model.SubscriptionRecord)}
}

func (m *memEntitlementRepo) put(rec *model.SubscriptionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.UserID] = &cp
}

func (m *memEntitlementRepo) Find(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memEntitlementRepo) FindByEmail(ctx context.Context, email string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.store {
		if rec.Email == email {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memEntitlementRepo) Create(ctx context.Context, rec *model.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[rec.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *rec
	m.store[rec.UserID] = &cp
	return nil
}

func (m *memEntitlementRepo) UpdateIf(ctx context.Context, rec *model.SubscriptionRecord, expected time.Time) error {
	if m.UpdateIfFunc != nil {
		return m.UpdateIfFunc(ctx, rec, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[rec.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if !cur.UpdatedAt.Equal(expected) {
		return domain.ErrConflict
	}
	cp := *rec
	m.store[rec.UserID] = &cp
	return nil
}

func (m *memEntitlementRepo) FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionRecord
	for _, rec := range m.store {
		if rec.GraceExpired(now) {
			cp := *rec
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memEntitlementRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, rec := range m.store {
		out[rec.Status]++
	}
	return out, nil
}

// memDedup implements the dedup reservation in memory.
type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool

	FirstSeenFunc func(ctx context.Context, eventID string, window time.Duration) (bool, error)
}

func newMemDedup() *memDedup {
	return &memDedup{seen: make(map[string]bool)}
}

func (m *memDedup) FirstSeen(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	if m.FirstSeenFunc != nil {
		return m.FirstSeenFunc(ctx, eventID, window)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *memDedup) Release(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

// mockGateway counts provider calls and lets tests script the responses.
type mockGateway struct {
	mu              sync.Mutex
	CancelCalls     int
	ReactivateCalls int

	CancelFunc     func(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error)
	ReactivateFunc func(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error)
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) Cancel(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	g.mu.Lock()
	g.CancelCalls++
	g.mu.Unlock()
	if g.CancelFunc != nil {
		return g.CancelFunc(ctx, subscriptionID)
	}
	ends := time.Now().Add(14 * 24 * time.Hour)
	return adapter.ProviderSubscription{SubscriptionID: subscriptionID, Cancelled: true, EndsAt: &ends}, nil
}

func (g *mockGateway) Reactivate(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	g.mu.Lock()
	g.ReactivateCalls++
	g.mu.Unlock()
	if g.ReactivateFunc != nil {
		return g.ReactivateFunc(ctx, subscriptionID)
	}
	renews := time.Now().Add(30 * 24 * time.Hour)
	return adapter.ProviderSubscription{SubscriptionID: subscriptionID, RenewsAt: &renews}, nil
}

func (g *mockGateway) Fetch(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	return adapter.ProviderSubscription{SubscriptionID: subscriptionID}, nil
}

// activeRecord builds a pro record with an attached provider subscription.
func activeRecord(userID, email, subID string) *model.SubscriptionRecord {
	now := time.Now().Add(-time.Hour)
	renews := now.Add(30 * 24 * time.Hour)
	return &model.SubscriptionRecord{
		UserID:         userID,
		Email:          email,
		SubscriptionID: &subID,
		Status:         model.SubscriptionStatusActive,
		Plan:           model.PlanPro,
		RenewsAt:       &renews,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

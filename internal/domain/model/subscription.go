package model

import (
	"time"

	"freelancer-dashboard-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusNone       SubscriptionStatus = "none"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusCancelling SubscriptionStatus = "cancelling"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// SubscriptionRecord is the per-user billing state. The reconciler is its only
// writer; everything else reads. UpdatedAt doubles as the optimistic-concurrency
// token for conditional writes and never decreases.
type SubscriptionRecord struct {
	UserID                string
	Email                 string
	SubscriptionID        *string
	Status                SubscriptionStatus
	WillCancelAtPeriodEnd bool
	CurrentPeriodEnd      *time.Time
	RenewsAt              *time.Time
	Plan                  Plan
	LastEventID           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewSubscriptionRecord creates the record implicitly owned by a fresh signup:
// no subscription attached, free plan.
func NewSubscriptionRecord(userID, email string) (*SubscriptionRecord, error) {
	if userID == "" || email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &SubscriptionRecord{
		UserID:    userID,
		Email:     email,
		Status:    SubscriptionStatusNone,
		Plan:      PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Entitled reports whether the record grants pro access at the given instant:
// status active or cancelling, and the grace period (if any) not yet over.
func (r *SubscriptionRecord) Entitled(now time.Time) bool {
	if r.Status != SubscriptionStatusActive && r.Status != SubscriptionStatusCancelling {
		return false
	}
	if r.CurrentPeriodEnd != nil && !r.CurrentPeriodEnd.After(now) {
		return false
	}
	return true
}

// Normalize recomputes the derived fields from status and period end so every
// write leaves the record satisfying its invariants.
func (r *SubscriptionRecord) Normalize(now time.Time) {
	r.WillCancelAtPeriodEnd = r.Status == SubscriptionStatusCancelling || r.Status == SubscriptionStatusCancelled
	if r.Entitled(now) {
		r.Plan = PlanPro
	} else {
		r.Plan = PlanFree
	}
}

// GraceExpired reports whether a cancelling record's grace period has lapsed.
func (r *SubscriptionRecord) GraceExpired(now time.Time) bool {
	return r.Status == SubscriptionStatusCancelling &&
		r.CurrentPeriodEnd != nil && !r.CurrentPeriodEnd.After(now)
}

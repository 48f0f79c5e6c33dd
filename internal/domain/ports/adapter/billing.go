package adapter

import (
	"context"
	"time"
)

// ProviderSubscription is the provider's view of a subscription after a call.
type ProviderSubscription struct {
	SubscriptionID string
	Cancelled      bool
	EndsAt         *time.Time // access revocation instant while cancelled
	RenewsAt       *time.Time // next billing instant while active
}

// BillingGateway is the hex port for the subscription billing provider.
// Each call is a single HTTP request, idempotent on retry; retries are the
// caller's policy. Failures are domain.ErrProviderUnavailable (network/5xx,
// retryable) or domain.ErrProviderRejected (4xx, not retryable), wrapped with
// provider detail.
type BillingGateway interface {
	Name() string
	Cancel(ctx context.Context, subscriptionID string) (ProviderSubscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (ProviderSubscription, error)
	Fetch(ctx context.Context, subscriptionID string) (ProviderSubscription, error)
}

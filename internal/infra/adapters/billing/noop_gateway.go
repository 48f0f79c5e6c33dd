package billing

import (
	"context"
	"time"

	"freelancer-dashboard-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*NoopGateway)(nil)

// NoopGateway is a stand-in provider for dev mode: cancel and reactivate
// succeed locally without touching a real billing account.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (NoopGateway) Name() string { return "noop" }

func (NoopGateway) Cancel(_ context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	ends := time.Now().Add(30 * 24 * time.Hour)
	return adapter.ProviderSubscription{
		SubscriptionID: subscriptionID,
		Cancelled:      true,
		EndsAt:         &ends,
	}, nil
}

func (NoopGateway) Reactivate(_ context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	renews := time.Now().Add(30 * 24 * time.Hour)
	return adapter.ProviderSubscription{
		SubscriptionID: subscriptionID,
		RenewsAt:       &renews,
	}, nil
}

func (NoopGateway) Fetch(_ context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	renews := time.Now().Add(30 * 24 * time.Hour)
	return adapter.ProviderSubscription{
		SubscriptionID: subscriptionID,
		RenewsAt:       &renews,
	}, nil
}

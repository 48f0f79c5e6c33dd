// File: internal/infra/adapters/billing/lemonsqueezy_gateway.go
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/ports/adapter"
	"freelancer-dashboard-billing/internal/infra/metrics"
)

var _ adapter.BillingGateway = (*LemonSqueezyGateway)(nil)

const defaultBaseURL = "https://api.lemonsqueezy.com"

// LemonSqueezyGateway implements adapter.BillingGateway against the JSON:API
// subscription endpoints. Every operation is a single request; the provider
// treats repeats of the same call as idempotent, so retry policy stays with
// the caller.
type LemonSqueezyGateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewLemonSqueezyGateway(apiKey, baseURL string, timeout time.Duration) (*LemonSqueezyGateway, error) {
	if apiKey == "" {
		return nil, errors.New("api key empty")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LemonSqueezyGateway{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *LemonSqueezyGateway) Name() string { return "lemonsqueezy" }

// Cancel moves the subscription to cancelled-at-period-end on the provider.
func (g *LemonSqueezyGateway) Cancel(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	return g.do(ctx, "cancel", http.MethodDelete, subscriptionID, nil)
}

// Reactivate clears the pending cancellation before the period end.
func (g *LemonSqueezyGateway) Reactivate(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "subscriptions",
			"id":   subscriptionID,
			"attributes": map[string]any{
				"cancelled": false,
			},
		},
	}
	return g.do(ctx, "reactivate", http.MethodPatch, subscriptionID, body)
}

func (g *LemonSqueezyGateway) Fetch(ctx context.Context, subscriptionID string) (adapter.ProviderSubscription, error) {
	return g.do(ctx, "fetch", http.MethodGet, subscriptionID, nil)
}

func (g *LemonSqueezyGateway) do(ctx context.Context, op, method, subscriptionID string, body any) (adapter.ProviderSubscription, error) {
	if subscriptionID == "" {
		return adapter.ProviderSubscription{}, domain.ErrInvalidArgument
	}
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	url := fmt.Sprintf("%s/v1/subscriptions/%s", g.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return adapter.ProviderSubscription{}, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveProviderCall(op, false, time.Since(start))
		return adapter.ProviderSubscription{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		metrics.ObserveProviderCall(op, false, time.Since(start))
		return adapter.ProviderSubscription{}, fmt.Errorf("%w: http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		metrics.ObserveProviderCall(op, false, time.Since(start))
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return adapter.ProviderSubscription{}, fmt.Errorf("%w: http %d: %s", domain.ErrProviderRejected, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Cancelled bool    `json:"cancelled"`
				EndsAt    *string `json:"ends_at"`
				RenewsAt  *string `json:"renews_at"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveProviderCall(op, false, time.Since(start))
		return adapter.ProviderSubscription{}, fmt.Errorf("%w: decode: %v", domain.ErrProviderUnavailable, err)
	}
	metrics.ObserveProviderCall(op, true, time.Since(start))

	ps := adapter.ProviderSubscription{
		SubscriptionID: out.Data.ID,
		Cancelled:      out.Data.Attributes.Cancelled,
		EndsAt:         parseProviderTime(out.Data.Attributes.EndsAt),
		RenewsAt:       parseProviderTime(out.Data.Attributes.RenewsAt),
	}
	if ps.SubscriptionID == "" {
		ps.SubscriptionID = subscriptionID
	}
	return ps, nil
}

func parseProviderTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

// File: internal/infra/adapters/billing/webhook.go
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
)

// VerifyWebhookSignature checks the X-Signature header: an HMAC-SHA256 hex
// digest of the raw request body under the shared secret. Comparison is
// constant time. Verification says nothing about duplicates; dedup is the
// reconciler's job.
func VerifyWebhookSignature(secret string, rawBody []byte, signature string) error {
	if secret == "" || signature == "" {
		return domain.ErrInvalidSignature
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(rawBody)
	if !hmac.Equal(h.Sum(nil), provided) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	Meta struct {
		EventName string `json:"event_name"`
		EventID   string `json:"event_id"`
		WebhookID string `json:"webhook_id"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			UserEmail string  `json:"user_email"`
			Cancelled bool    `json:"cancelled"`
			EndsAt    *string `json:"ends_at"`
			RenewsAt  *string `json:"renews_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a verified provider notification into a
// ReconciliationEvent. The payload must name its event and identify the
// subscriber (user email, or at least a subscription id); anything less is
// domain.ErrMalformedPayload.
//
// Providers retry deliveries with the identical body, so when no explicit
// event id is present one is derived from the body digest; the retry then
// carries the same id and deduplicates downstream.
func ParseWebhookEvent(rawBody []byte, receivedAt time.Time) (*model.ReconciliationEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if p.Meta.EventName == "" {
		return nil, fmt.Errorf("%w: missing meta.event_name", domain.ErrMalformedPayload)
	}
	if p.Data.Attributes.UserEmail == "" && p.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing user_email and subscription id", domain.ErrMalformedPayload)
	}

	eventID := p.Meta.EventID
	if eventID == "" {
		eventID = p.Meta.WebhookID
	}
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "body:" + hex.EncodeToString(sum[:16])
	}

	return &model.ReconciliationEvent{
		EventID:        eventID,
		Source:         model.EventSourceWebhook,
		Name:           p.Meta.EventName,
		SubscriptionID: p.Data.ID,
		UserEmail:      p.Data.Attributes.UserEmail,
		Cancelled:      p.Data.Attributes.Cancelled,
		EndsAt:         parseProviderTime(p.Data.Attributes.EndsAt),
		RenewsAt:       parseProviderTime(p.Data.Attributes.RenewsAt),
		ReceivedAt:     receivedAt,
	}, nil
}

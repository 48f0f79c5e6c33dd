package model

import (
	"fmt"
	"time"
)

type EventSource string

const (
	EventSourceWebhook        EventSource = "webhook"
	EventSourceUserCancel     EventSource = "user-cancel"
	EventSourceUserReactivate EventSource = "user-reactivate"
	EventSourceExpirySweep    EventSource = "expiry-sweep"
)

// Provider event names as carried in meta.event_name.
const (
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionResumed   = "subscription_resumed"
	EventSubscriptionExpired   = "subscription_expired"
)

// ReconciliationEvent is a single state-change notification headed for the
// reconciler. Ephemeral: it lives only for the dedup window, after which the
// record's LastEventID is the remaining trace of it.
type ReconciliationEvent struct {
	EventID        string
	Source         EventSource
	Name           string // provider event name; empty for user commands
	SubscriptionID string
	UserID         string // set for user commands and sweeps
	UserEmail      string // set for webhooks; resolved to a record by email
	Cancelled      bool
	EndsAt         *time.Time
	RenewsAt       *time.Time
	ReceivedAt     time.Time
}

// CommandNonce derives a deterministic event id for a user command against a
// specific revision of the record, so a double-submitted command deduplicates
// while a later, legitimate repeat (after the record moved on) does not.
func CommandNonce(source EventSource, subscriptionID string, revision time.Time) string {
	return fmt.Sprintf("%s:%s:%d", source, subscriptionID, revision.UnixNano())
}

// SweepNonce derives the event id for a grace-period expiry sweep. Keyed on the
// period end so repeated sweeps of the same lapse deduplicate.
func SweepNonce(subscriptionID string, periodEnd time.Time) string {
	return fmt.Sprintf("%s:%s:%d", EventSourceExpirySweep, subscriptionID, periodEnd.Unix())
}

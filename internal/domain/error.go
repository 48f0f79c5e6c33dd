package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrConflict             = errors.New("conditional write conflict")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrNothingToReactivate  = errors.New("no cancelled subscription to reactivate")
	ErrPreconditionFailed   = errors.New("subscription is not in the expected state")

	// Webhook ingestion errors
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")

	// Billing provider errors
	ErrProviderUnavailable = errors.New("billing provider unavailable")
	ErrProviderRejected    = errors.New("billing provider rejected the request")

	// Reconciler errors
	ErrReconciliationConflict = errors.New("reconciliation retries exhausted")

	// Storage plumbing errors
	ErrOperationFailed = errors.New("storage operation failed")
	ErrReadDatabaseRow = errors.New("failed to read database row")
)

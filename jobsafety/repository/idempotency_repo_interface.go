package repository

import (
	"context"
	"errors"
)

// ClaimStatus describes the outcome of a Begin call
type ClaimStatus string

const (
	// ClaimGranted means the caller holds exclusive execution rights
	ClaimGranted ClaimStatus = "granted"
	// ClaimCompleted means the effect already ran; the cached result is returned
	ClaimCompleted ClaimStatus = "completed"
	// ClaimInProgress means another executor holds a live claim
	ClaimInProgress ClaimStatus = "in_progress"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// Exclusivity cannot be guaranteed, so callers must not run the side effect.
var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// ExecutionToken grants exclusive rights to execute one side effect.
// It fences Complete and Fail so a stale executor cannot clobber a record
// claimed by someone else after its own claim expired.
type ExecutionToken struct {
	Key   string
	Token string
}

// ClaimResult is the outcome of Begin
type ClaimResult struct {
	Status       ClaimStatus
	Token        ExecutionToken
	CachedResult string
}

// IdempotencyRepositoryInterface defines the durable at-most-once record store
type IdempotencyRepositoryInterface interface {
	// Begin atomically creates an in-progress record for the key if none
	// exists (or an earlier one has expired) and returns a fresh token.
	// If a live record exists it reports completed-with-result or in-progress
	// instead. A store error means exclusivity cannot be guaranteed and is
	// surfaced as ErrStoreUnavailable.
	Begin(ctx context.Context, key string) (ClaimResult, error)

	// Complete marks the record completed, caches the serialized result and
	// sets the retention expiry. Only the token holder can complete.
	Complete(ctx context.Context, token ExecutionToken, result string) error

	// Fail removes the in-progress record so a future attempt may retry.
	// Only the token holder can fail its own claim.
	Fail(ctx context.Context, token ExecutionToken) error
}

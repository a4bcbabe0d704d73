package repository

import "context"

// CircuitStateValue is the persisted state of one category's circuit
type CircuitStateValue string

const (
	CircuitClosed   CircuitStateValue = "closed"
	CircuitOpen     CircuitStateValue = "open"
	CircuitHalfOpen CircuitStateValue = "half_open"
)

// OverrideRecord captures who forced an open circuit into half-open and why
type OverrideRecord struct {
	User   string
	Reason string
	SetAt  int64
}

// CircuitRepositoryInterface defines the shared, cross-worker circuit state.
// The failure window is recomputed from stored timestamps on every call so
// all worker instances observe one consistent view.
type CircuitRepositoryInterface interface {
	// GetState returns the persisted state, defaulting to closed
	GetState(ctx context.Context, category string) (CircuitStateValue, error)

	// SetState persists the circuit state for a category
	SetState(ctx context.Context, category string, state CircuitStateValue) error

	// RecordFailure appends a failure timestamp to the sliding window, prunes
	// entries older than windowSeconds and returns the remaining count
	RecordFailure(ctx context.Context, category string, windowSeconds int) (int64, error)

	// FailureCount prunes the window and returns the current failure count
	FailureCount(ctx context.Context, category string, windowSeconds int) (int64, error)

	// ClearFailures empties the failure window
	ClearFailures(ctx context.Context, category string) error

	// SetOpenedAt records when the circuit opened
	SetOpenedAt(ctx context.Context, category string, openedAt int64) error

	// GetOpenedAt returns when the circuit opened, 0 if never
	GetOpenedAt(ctx context.Context, category string) (int64, error)

	// SetOverride stores a manual override with its reason and user
	SetOverride(ctx context.Context, category string, override OverrideRecord) error

	// GetOverride returns the active override, nil if none
	GetOverride(ctx context.Context, category string) (*OverrideRecord, error)

	// ClearOverride removes the manual override
	ClearOverride(ctx context.Context, category string) error

	// ClaimTrial atomically claims the single half-open trial slot.
	// Returns true for exactly one caller until the slot is cleared or
	// ttlSeconds elapse.
	ClaimTrial(ctx context.Context, category string, ttlSeconds int) (bool, error)

	// ClearTrial releases the half-open trial slot
	ClearTrial(ctx context.Context, category string) error
}

package jobsafety

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/logger"
)

// Side effect types guarded against duplicate execution. Each type is its own
// key namespace so unrelated operations on the same entity cannot collide.
const (
	EffectOrderPlacement    = "order_placement"
	EffectPositionUpdate    = "position_update"
	EffectLedgerWrite       = "ledger_write"
	EffectPnLWrite          = "pnl_write"
	EffectSignalConsumption = "signal_consumption"
)

// ErrExecutionInProgress means another executor currently holds a live claim
// for the key. Callers should treat it as a transient collision and check
// again later rather than re-execute.
var ErrExecutionInProgress = errors.New("side effect execution already in progress")

// Operation is the side-effecting closure executed under the guard. The guard
// provides the at-most-once guarantee; the operation itself does not need to.
type Operation func(ctx context.Context) (string, error)

// SideEffectGuard wraps side-effecting operations with the idempotency store
// to guarantee at-most-once execution across concurrent workers
type SideEffectGuard struct {
	store repository.IdempotencyRepositoryInterface
}

// NewSideEffectGuard creates a new SideEffectGuard
func NewSideEffectGuard(store repository.IdempotencyRepositoryInterface) *SideEffectGuard {
	return &SideEffectGuard{store: store}
}

// IdempotencyKey derives the deterministic key for one logical side effect
func IdempotencyKey(effectType, entityID string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", effectType, entityID)))
	return fmt.Sprintf("%s:%s", effectType, hex.EncodeToString(hash[:]))
}

// ExecuteOnce runs the operation at most once for (effectType, entityID).
// Returns (true, result, nil) when this call executed the operation, and
// (false, cachedResult, nil) when a previous execution already handled it.
// A store outage fails closed: the operation is never invoked and the error
// wraps repository.ErrStoreUnavailable.
func (g *SideEffectGuard) ExecuteOnce(ctx context.Context, effectType, entityID string, operation Operation) (bool, string, error) {
	key := IdempotencyKey(effectType, entityID)

	claim, err := g.store.Begin(ctx, key)
	if err != nil {
		// cannot guarantee exclusivity, so the side effect must not run
		observeClaim("unavailable")
		return false, "", err
	}

	switch claim.Status {
	case repository.ClaimCompleted:
		observeClaim("duplicate")
		logger.Info("side effect already executed", "effectType", effectType, "entityID", entityID)
		return false, claim.CachedResult, nil

	case repository.ClaimInProgress:
		observeClaim("collision")
		logger.Info("side effect execution in progress elsewhere", "effectType", effectType, "entityID", entityID)
		return false, "", fmt.Errorf("%w: %s:%s", ErrExecutionInProgress, effectType, entityID)

	case repository.ClaimGranted:
		// fall through to execute
	default:
		return false, "", fmt.Errorf("unexpected claim status %q", claim.Status)
	}

	observeClaim("granted")
	logger.Info("executing side effect", "effectType", effectType, "entityID", entityID)

	result, err := operation(ctx)
	if err != nil {
		// release the claim so a later attempt may retry; only successes
		// are recorded as handled
		if failErr := g.store.Fail(ctx, claim.Token); failErr != nil {
			logger.Error("failed to release idempotency claim", "effectType", effectType, "entityID", entityID, "error", failErr)
		}
		return false, "", err
	}

	if err := g.store.Complete(ctx, claim.Token, result); err != nil {
		// the side effect ran; surface the bookkeeping failure instead of
		// pretending nothing happened
		return true, result, fmt.Errorf("side effect executed but completion record failed: %w", err)
	}

	return true, result, nil
}

package repository

import (
	"context"
	"testing"
	"time"
)

func TestCircuitRepository_GetStateDefaultsClosed(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)

	state, err := repo.GetState(context.Background(), "order_placement")
	if err != nil {
		t.Fatalf("GetState() error = %v, want nil", err)
	}
	if state != CircuitClosed {
		t.Errorf("GetState() = %v, want %v", state, CircuitClosed)
	}
}

func TestCircuitRepository_SetStateRoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	if err := repo.SetState(ctx, "order_placement", CircuitOpen); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	state, err := repo.GetState(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state != CircuitOpen {
		t.Errorf("GetState() = %v, want %v", state, CircuitOpen)
	}
}

func TestCircuitRepository_RecordFailureCounts(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		count, err := repo.RecordFailure(ctx, "order_placement", 300)
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if count != int64(i) {
			t.Errorf("RecordFailure() count = %d, want %d", count, i)
		}
	}

	// Categories do not share windows
	count, err := repo.RecordFailure(ctx, "ledger_write", 300)
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if count != 1 {
		t.Errorf("other category count = %d, want 1", count)
	}
}

func TestCircuitRepository_RecordFailurePrunesOldEntries(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	clock := int64(1000)
	repo.now = func() int64 { return clock }

	for i := 0; i < 3; i++ {
		if _, err := repo.RecordFailure(ctx, "order_placement", 300); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	// Move past the window; the three old failures must fall out
	clock = 1400

	count, err := repo.RecordFailure(ctx, "order_placement", 300)
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if count != 1 {
		t.Errorf("windowed count after pruning = %d, want 1", count)
	}

	count, err = repo.FailureCount(ctx, "order_placement", 300)
	if err != nil {
		t.Fatalf("FailureCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("FailureCount() = %d, want 1", count)
	}
}

func TestCircuitRepository_ClearFailures(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	if _, err := repo.RecordFailure(ctx, "order_placement", 300); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if err := repo.ClearFailures(ctx, "order_placement"); err != nil {
		t.Fatalf("ClearFailures() error = %v", err)
	}

	count, err := repo.FailureCount(ctx, "order_placement", 300)
	if err != nil {
		t.Fatalf("FailureCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("FailureCount() after clear = %d, want 0", count)
	}
}

func TestCircuitRepository_OpenedAtRoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	openedAt, err := repo.GetOpenedAt(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetOpenedAt() error = %v", err)
	}
	if openedAt != 0 {
		t.Errorf("GetOpenedAt() with no record = %d, want 0", openedAt)
	}

	if err := repo.SetOpenedAt(ctx, "order_placement", 1234567); err != nil {
		t.Fatalf("SetOpenedAt() error = %v", err)
	}

	openedAt, err = repo.GetOpenedAt(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetOpenedAt() error = %v", err)
	}
	if openedAt != 1234567 {
		t.Errorf("GetOpenedAt() = %d, want 1234567", openedAt)
	}
}

func TestCircuitRepository_OverrideRoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	override, err := repo.GetOverride(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetOverride() error = %v", err)
	}
	if override != nil {
		t.Errorf("GetOverride() with no record = %v, want nil", override)
	}

	want := OverrideRecord{User: "alice", Reason: "upstream recovered", SetAt: 1700000000}
	if err := repo.SetOverride(ctx, "order_placement", want); err != nil {
		t.Fatalf("SetOverride() error = %v", err)
	}

	override, err = repo.GetOverride(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetOverride() error = %v", err)
	}
	if override == nil {
		t.Fatalf("GetOverride() = nil, want record")
	}
	if *override != want {
		t.Errorf("GetOverride() = %+v, want %+v", *override, want)
	}

	if err := repo.ClearOverride(ctx, "order_placement"); err != nil {
		t.Fatalf("ClearOverride() error = %v", err)
	}
	override, err = repo.GetOverride(ctx, "order_placement")
	if err != nil {
		t.Fatalf("GetOverride() after clear error = %v", err)
	}
	if override != nil {
		t.Errorf("GetOverride() after clear = %v, want nil", override)
	}
}

func TestCircuitRepository_ClaimTrialIsExclusive(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	claimed, err := repo.ClaimTrial(ctx, "order_placement", 600)
	if err != nil {
		t.Fatalf("ClaimTrial() error = %v", err)
	}
	if !claimed {
		t.Errorf("first ClaimTrial() = false, want true")
	}

	claimed, err = repo.ClaimTrial(ctx, "order_placement", 600)
	if err != nil {
		t.Fatalf("second ClaimTrial() error = %v", err)
	}
	if claimed {
		t.Errorf("second ClaimTrial() = true, want false")
	}

	if err := repo.ClearTrial(ctx, "order_placement"); err != nil {
		t.Fatalf("ClearTrial() error = %v", err)
	}

	claimed, err = repo.ClaimTrial(ctx, "order_placement", 600)
	if err != nil {
		t.Fatalf("ClaimTrial() after clear error = %v", err)
	}
	if !claimed {
		t.Errorf("ClaimTrial() after clear = false, want true")
	}
}

func TestCircuitRepository_TrialClaimExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	repo := NewCircuitRepository(client)
	ctx := context.Background()

	claimed, err := repo.ClaimTrial(ctx, "order_placement", 600)
	if err != nil {
		t.Fatalf("ClaimTrial() error = %v", err)
	}
	if !claimed {
		t.Fatalf("first ClaimTrial() = false, want true")
	}

	// a worker that claimed the trial and crashed never clears the slot;
	// the TTL frees it
	mr.FastForward(601 * time.Second)

	claimed, err = repo.ClaimTrial(ctx, "order_placement", 600)
	if err != nil {
		t.Fatalf("ClaimTrial() after expiry error = %v", err)
	}
	if !claimed {
		t.Errorf("ClaimTrial() after expiry = false, want true")
	}
}

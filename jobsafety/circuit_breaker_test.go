package jobsafety

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/logger"
)

func init() {
	_ = logger.Initialize()
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

// alertRecorder captures emitted alert events for assertions
type alertRecorder struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (r *alertRecorder) handler(event AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *alertRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, len(r.events))
	for i, event := range r.events {
		types[i] = event.Type
	}
	return types
}

func testBreaker(t *testing.T) (*CircuitBreaker, *alertRecorder, *miniredis.Miniredis) {
	t.Helper()

	client, mr := setupTestRedis(t)
	recorder := &alertRecorder{}
	notifier := NewAlertNotifier()
	notifier.Register(recorder.handler)

	breaker := NewCircuitBreaker(repository.NewCircuitRepository(client), CircuitBreakerConfig{
		FailureThreshold: 10,
		WindowSeconds:    300,
		CooldownSeconds:  600,
	}, notifier)

	return breaker, recorder, mr
}

func TestCircuitBreaker_ClosedAllowsRetries(t *testing.T) {
	breaker, _, mr := testBreaker(t)
	defer mr.Close()

	allowed, reason, err := breaker.CanRetry(context.Background(), "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() error = %v", err)
	}
	if !allowed {
		t.Errorf("CanRetry() on closed circuit = false (%s), want true", reason)
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	breaker, recorder, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	status, err := breaker.Status(ctx, "order_placement")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != repository.CircuitClosed {
		t.Errorf("state after 9 failures = %v, want closed", status.State)
	}

	// Tenth failure in the window crosses the threshold
	if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	status, err = breaker.Status(ctx, "order_placement")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != repository.CircuitOpen {
		t.Errorf("state after 10 failures = %v, want open", status.State)
	}

	allowed, reason, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() error = %v", err)
	}
	if allowed {
		t.Errorf("CanRetry() on open circuit = true, want false")
	}
	if !strings.Contains(reason, "circuit open") {
		t.Errorf("denial reason = %q, want mention of open circuit", reason)
	}

	types := recorder.types()
	if len(types) != 1 || types[0] != AlertCircuitOpened {
		t.Errorf("alert types = %v, want [%s]", types, AlertCircuitOpened)
	}
}

func TestCircuitBreaker_HalfOpenGrantsSingleTrial(t *testing.T) {
	breaker, _, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	clock := int64(10000)
	breaker.now = func() int64 { return clock }

	for i := 0; i < 10; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	// Cooldown not elapsed yet
	allowed, _, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() error = %v", err)
	}
	if allowed {
		t.Errorf("CanRetry() before cooldown = true, want false")
	}

	clock += 601

	allowed, reason, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() after cooldown error = %v", err)
	}
	if !allowed {
		t.Errorf("CanRetry() after cooldown = false (%s), want trial grant", reason)
	}

	// Only one trial while half-open
	allowed, reason, err = breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("second CanRetry() error = %v", err)
	}
	if allowed {
		t.Errorf("second CanRetry() in half-open = true, want false")
	}
	if !strings.Contains(reason, "trial") {
		t.Errorf("trial denial reason = %q, want mention of trial", reason)
	}
}

func TestCircuitBreaker_SuccessfulTrialCloses(t *testing.T) {
	breaker, recorder, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	clock := int64(10000)
	breaker.now = func() int64 { return clock }

	for i := 0; i < 10; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	clock += 601

	if allowed, _, err := breaker.CanRetry(ctx, "order_placement"); err != nil || !allowed {
		t.Fatalf("CanRetry() = %v, %v; want trial grant", allowed, err)
	}

	if err := breaker.RecordSuccess(ctx, "order_placement"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	status, err := breaker.Status(ctx, "order_placement")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != repository.CircuitClosed {
		t.Errorf("state after successful trial = %v, want closed", status.State)
	}
	if status.FailureCount != 0 {
		t.Errorf("failure count after close = %d, want 0", status.FailureCount)
	}

	types := recorder.types()
	if len(types) != 2 || types[1] != AlertCircuitClosed {
		t.Errorf("alert types = %v, want opened then closed", types)
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	breaker, recorder, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	clock := int64(10000)
	breaker.now = func() int64 { return clock }

	for i := 0; i < 10; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	clock += 601

	if allowed, _, err := breaker.CanRetry(ctx, "order_placement"); err != nil || !allowed {
		t.Fatalf("CanRetry() = %v, %v; want trial grant", allowed, err)
	}

	if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
		t.Fatalf("RecordFailure() in half-open error = %v", err)
	}

	status, err := breaker.Status(ctx, "order_placement")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != repository.CircuitOpen {
		t.Errorf("state after failed trial = %v, want open", status.State)
	}
	if status.OpenedAt != clock {
		t.Errorf("OpenedAt = %d, want restarted cooldown at %d", status.OpenedAt, clock)
	}

	types := recorder.types()
	if len(types) != 2 || types[1] != AlertCircuitReopened {
		t.Errorf("alert types = %v, want opened then reopened", types)
	}

	// The restarted cooldown grants a fresh trial later
	clock += 601
	if allowed, _, err := breaker.CanRetry(ctx, "order_placement"); err != nil || !allowed {
		t.Errorf("CanRetry() after second cooldown = %v, %v; want trial grant", allowed, err)
	}
}

func TestCircuitBreaker_ManualOverride(t *testing.T) {
	breaker, recorder, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	clock := int64(10000)
	breaker.now = func() int64 { return clock }

	for i := 0; i < 10; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	if err := breaker.ManualOverride(ctx, "order_placement", "alice", "upstream verified healthy"); err != nil {
		t.Fatalf("ManualOverride() error = %v", err)
	}

	// No cooldown wait needed with an override in place
	allowed, reason, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() error = %v", err)
	}
	if !allowed {
		t.Errorf("CanRetry() with override = false (%s), want trial grant", reason)
	}

	types := recorder.types()
	if len(types) != 2 || types[1] != AlertManualOverrideSet {
		t.Errorf("alert types = %v, want opened then override", types)
	}
}

func TestCircuitBreaker_ManualOverrideRecoversAbandonedTrial(t *testing.T) {
	breaker, _, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	clock := int64(10000)
	breaker.now = func() int64 { return clock }

	for i := 0; i < 10; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	clock += 601

	// The trial is granted, then the worker crashes without ever reporting
	// an outcome, leaving the claim behind
	if allowed, _, err := breaker.CanRetry(ctx, "order_placement"); err != nil || !allowed {
		t.Fatalf("CanRetry() = %v, %v; want trial grant", allowed, err)
	}

	allowed, _, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() with claim in flight error = %v", err)
	}
	if allowed {
		t.Fatalf("CanRetry() with claim in flight = true, want false")
	}

	if err := breaker.ManualOverride(ctx, "order_placement", "alice", "trial worker crashed"); err != nil {
		t.Fatalf("ManualOverride() error = %v", err)
	}

	allowed, reason, err := breaker.CanRetry(ctx, "order_placement")
	if err != nil {
		t.Fatalf("CanRetry() after override error = %v", err)
	}
	if !allowed {
		t.Errorf("CanRetry() after override = false (%s), want fresh trial grant", reason)
	}
}

func TestCircuitBreaker_ManualOverrideRequiresUserAndReason(t *testing.T) {
	breaker, _, mr := testBreaker(t)
	defer mr.Close()
	ctx := context.Background()

	if err := breaker.ManualOverride(ctx, "order_placement", "", "reason"); err == nil {
		t.Errorf("ManualOverride() without user should fail")
	}
	if err := breaker.ManualOverride(ctx, "order_placement", "alice", ""); err == nil {
		t.Errorf("ManualOverride() without reason should fail")
	}
}

func TestCircuitBreaker_AlertHandlerPanicIsolated(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	recorder := &alertRecorder{}
	notifier := NewAlertNotifier()
	notifier.Register(func(AlertEvent) { panic("broken sink") })
	notifier.Register(recorder.handler)

	breaker := NewCircuitBreaker(repository.NewCircuitRepository(client), CircuitBreakerConfig{
		FailureThreshold: 2,
		WindowSeconds:    300,
		CooldownSeconds:  600,
	}, notifier)

	for i := 0; i < 2; i++ {
		if err := breaker.RecordFailure(ctx, "order_placement"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	// The panicking first handler must not block the second, nor the transition
	status, err := breaker.Status(ctx, "order_placement")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != repository.CircuitOpen {
		t.Errorf("state = %v, want open despite panicking alert handler", status.State)
	}
	if len(recorder.types()) != 1 {
		t.Errorf("second handler events = %v, want one", recorder.types())
	}
}

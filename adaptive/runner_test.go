package adaptive

import (
	"testing"
)

func TestNewDriftCheckRunner_RejectsInvalidSchedule(t *testing.T) {
	monitor := NewDriftMonitor(testMonitorConfig())

	if _, err := NewDriftCheckRunner(monitor, "not a cron expression"); err == nil {
		t.Errorf("NewDriftCheckRunner() with invalid schedule should fail")
	}
}

func TestDriftCheckRunner_RunOnceNotifiesHandlers(t *testing.T) {
	monitor := NewDriftMonitor(testMonitorConfig())
	monitor.SetFrozenBaseline(MetricsSnapshot{Winrate: 0.55, Expectancy: 0.5})
	feedTrades(monitor, 12, 13, 2.0, -1.0)

	runner, err := NewDriftCheckRunner(monitor, "*/5 * * * *")
	if err != nil {
		t.Fatalf("NewDriftCheckRunner() error = %v", err)
	}

	var received []DriftComparison
	runner.OnDrift(func(comparison DriftComparison) {
		received = append(received, comparison)
	})

	comparison := runner.RunOnce()
	if !comparison.Drifted {
		t.Fatalf("RunOnce() Drifted = false, want true")
	}
	if len(received) != 1 {
		t.Errorf("handler invocations = %d, want 1", len(received))
	}
}

func TestDriftCheckRunner_HealthyShadowSkipsHandlers(t *testing.T) {
	monitor := NewDriftMonitor(testMonitorConfig())
	monitor.SetFrozenBaseline(MetricsSnapshot{Winrate: 0.55, Expectancy: 0.5})
	feedTrades(monitor, 15, 10, 2.0, -1.0)

	runner, err := NewDriftCheckRunner(monitor, "*/5 * * * *")
	if err != nil {
		t.Fatalf("NewDriftCheckRunner() error = %v", err)
	}

	invoked := false
	runner.OnDrift(func(DriftComparison) { invoked = true })

	if comparison := runner.RunOnce(); comparison.Drifted {
		t.Fatalf("RunOnce() Drifted = true for healthy shadow")
	}
	if invoked {
		t.Errorf("handler invoked without drift")
	}
}

func TestDriftCheckRunner_HandlerPanicIsolated(t *testing.T) {
	monitor := NewDriftMonitor(testMonitorConfig())
	monitor.SetFrozenBaseline(MetricsSnapshot{Winrate: 0.55, Expectancy: 0.5})
	feedTrades(monitor, 12, 13, 2.0, -1.0)

	runner, err := NewDriftCheckRunner(monitor, "*/5 * * * *")
	if err != nil {
		t.Fatalf("NewDriftCheckRunner() error = %v", err)
	}

	runner.OnDrift(func(DriftComparison) { panic("broken sink") })

	invoked := false
	runner.OnDrift(func(DriftComparison) { invoked = true })

	// Must not panic through RunOnce, and later handlers still run
	if comparison := runner.RunOnce(); !comparison.Drifted {
		t.Fatalf("RunOnce() Drifted = false, want true")
	}
	if !invoked {
		t.Errorf("second handler not invoked after first panicked")
	}
}

package adaptive

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantsafe/guardrail/lib/logger"
)

// DriftMonitorConfig holds the drift detection thresholds
type DriftMonitorConfig struct {
	// WindowSize is the number of recent trades kept for the shadow window
	WindowSize int
	// MinTrades is the minimum window fill before comparisons are meaningful
	MinTrades int
	// WinrateFloorDelta sets the floor at frozen winrate minus this delta
	WinrateFloorDelta float64
	// MaxLossStreak flags drift when the current loss streak exceeds it
	MaxLossStreak int
}

// DriftComparison is the result of comparing the shadow window against the
// frozen baseline. It is a report, never a command: the caller decides what
// to do about a flagged drift.
type DriftComparison struct {
	Drifted bool `json:"drifted"`
	// Evaluated is false when the window holds too few trades to compare
	Evaluated bool            `json:"evaluated"`
	Reasons   []string        `json:"reasons,omitempty"`
	Shadow    MetricsSnapshot `json:"shadow"`
	Frozen    MetricsSnapshot `json:"frozen"`
	CheckedAt time.Time       `json:"checked_at"`
}

// DriftMonitor tracks the shadow model's rolling performance against a
// frozen baseline. It only observes and reports; it never touches models or
// execution-side state.
type DriftMonitor struct {
	mu     sync.Mutex
	config DriftMonitorConfig
	window *rollingWindow
	frozen MetricsSnapshot
	now    func() time.Time
}

// NewDriftMonitor creates a new DriftMonitor
func NewDriftMonitor(config DriftMonitorConfig) *DriftMonitor {
	return &DriftMonitor{
		config: config,
		window: newRollingWindow(config.WindowSize),
		now:    time.Now,
	}
}

// RecordTradeOutcome adds one completed paper trade to the shadow window and
// recomputes the rolling metrics
func (m *DriftMonitor) RecordTradeOutcome(pnl float64, isWin bool) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window.add(pnl, isWin)
	snapshot := m.window.snapshot(m.now())
	observeShadowMetrics(snapshot)

	return snapshot
}

// SetFrozenBaseline replaces the frozen baseline. Called only when a
// promotion actually happens; the baseline never moves on its own.
func (m *DriftMonitor) SetFrozenBaseline(metrics MetricsSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frozen = metrics
	logger.Info("frozen baseline updated", "winrate", metrics.Winrate, "expectancy", metrics.Expectancy, "trades", metrics.TotalTrades)
}

// FrozenBaseline returns the current frozen baseline
func (m *DriftMonitor) FrozenBaseline() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

// ShadowMetrics returns the current shadow window snapshot
func (m *DriftMonitor) ShadowMetrics() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.snapshot(m.now())
}

// CompareToFrozen checks the shadow window against the frozen baseline. Any
// single triggered condition is enough to flag drift; all triggered
// conditions are reported.
func (m *DriftMonitor) CompareToFrozen() DriftComparison {
	m.mu.Lock()
	defer m.mu.Unlock()

	shadow := m.window.snapshot(m.now())
	comparison := DriftComparison{
		Shadow:    shadow,
		Frozen:    m.frozen,
		CheckedAt: m.now(),
	}

	if shadow.WindowTrades < m.config.MinTrades {
		return comparison
	}
	comparison.Evaluated = true

	floor := m.frozen.Winrate - m.config.WinrateFloorDelta
	if shadow.Winrate < floor {
		comparison.Reasons = append(comparison.Reasons,
			fmt.Sprintf("winrate %.3f below floor %.3f (frozen %.3f - %.3f)", shadow.Winrate, floor, m.frozen.Winrate, m.config.WinrateFloorDelta))
	}

	if shadow.Expectancy < 0 && m.frozen.Expectancy >= 0 {
		comparison.Reasons = append(comparison.Reasons,
			fmt.Sprintf("expectancy turned negative (%.3f) while frozen's is non-negative (%.3f)", shadow.Expectancy, m.frozen.Expectancy))
	}

	if shadow.LossStreak > m.config.MaxLossStreak {
		comparison.Reasons = append(comparison.Reasons,
			fmt.Sprintf("loss streak %d exceeds maximum %d", shadow.LossStreak, m.config.MaxLossStreak))
	}

	comparison.Drifted = len(comparison.Reasons) > 0
	if comparison.Drifted {
		observeDriftFlagged()
		logger.Warn("shadow model drift flagged", "reasons", comparison.Reasons, "shadowWinrate", shadow.Winrate, "frozenWinrate", m.frozen.Winrate)
	}

	return comparison
}

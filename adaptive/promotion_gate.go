package adaptive

import (
	"fmt"
	"time"

	"github.com/quantsafe/guardrail/lib/logger"
)

// Promotion verdicts
const (
	VerdictApprove = "APPROVE"
	VerdictReject  = "REJECT"
)

// Names of the fixed promotion test battery
const (
	TestWinrateMargin    = "winrate_margin"
	TestExpectancyMargin = "expectancy_margin"
	TestDrawdownCeiling  = "drawdown_ceiling"
	TestSampleSize       = "sample_size"
)

// PromotionGateConfig holds the promotion test thresholds
type PromotionGateConfig struct {
	// WinrateMargin is the absolute winrate improvement the shadow must show
	WinrateMargin float64
	// ExpectancyMargin is the relative expectancy improvement required
	ExpectancyMargin float64
	// DrawdownCeiling is the maximum tolerated shadow max drawdown
	DrawdownCeiling float64
	// MinTrades is the total sample size required
	MinTrades int
	// MinRecentTrades allows a smaller, fully-windowed sample when every
	// other test passes
	MinRecentTrades int
}

// TestResult is one promotion test outcome with its numeric margin: how far
// above (positive) or below (negative) the threshold the shadow landed
type TestResult struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Margin float64 `json:"margin"`
}

// PromotionDecision is the immutable outcome of one evaluation. Appended to
// the promotion journal before being returned, never mutated afterwards.
type PromotionDecision struct {
	EvaluatedAt time.Time       `json:"evaluated_at"`
	Shadow      MetricsSnapshot `json:"shadow_metrics"`
	Frozen      MetricsSnapshot `json:"frozen_metrics"`
	Tests       []TestResult    `json:"test_results"`
	Verdict     string          `json:"verdict"`
	Reason      string          `json:"reason"`
}

// PromotionGate runs the fixed test battery that decides whether the shadow
// model may replace the frozen one. It never promotes anything itself: the
// caller acts on an APPROVE separately and explicitly.
type PromotionGate struct {
	config  PromotionGateConfig
	journal *PromotionJournal
	now     func() time.Time
}

// NewPromotionGate creates a new PromotionGate writing to the given journal
func NewPromotionGate(config PromotionGateConfig, journal *PromotionJournal) *PromotionGate {
	return &PromotionGate{
		config:  config,
		journal: journal,
		now:     time.Now,
	}
}

// Evaluate runs all four tests against the shadow and frozen snapshots.
// Every test must pass for APPROVE; the first failing test names the reason.
// The decision is journaled before it is returned. A journal write failure
// is returned alongside the decision, which is still valid.
func (g *PromotionGate) Evaluate(shadow, frozen MetricsSnapshot) (PromotionDecision, error) {
	winrate := TestResult{
		Name:   TestWinrateMargin,
		Margin: shadow.Winrate - (frozen.Winrate + g.config.WinrateMargin),
	}
	winrate.Passed = winrate.Margin >= 0

	expectancy := TestResult{
		Name:   TestExpectancyMargin,
		Margin: shadow.Expectancy - expectancyThreshold(frozen.Expectancy, g.config.ExpectancyMargin),
	}
	expectancy.Passed = expectancy.Margin >= 0

	drawdown := TestResult{
		Name:   TestDrawdownCeiling,
		Margin: g.config.DrawdownCeiling - shadow.MaxDrawdown,
	}
	drawdown.Passed = drawdown.Margin >= 0

	othersPassed := winrate.Passed && expectancy.Passed && drawdown.Passed

	// the smaller recent-window sample only counts when the performance
	// tests all passed on it; the margin is measured against whichever
	// criterion decided the outcome
	sample := TestResult{Name: TestSampleSize}
	switch {
	case shadow.TotalTrades >= g.config.MinTrades:
		sample.Passed = true
		sample.Margin = float64(shadow.TotalTrades - g.config.MinTrades)
	case othersPassed && shadow.WindowTrades >= g.config.MinRecentTrades:
		sample.Passed = true
		sample.Margin = float64(shadow.WindowTrades - g.config.MinRecentTrades)
	default:
		sample.Margin = float64(shadow.TotalTrades - g.config.MinTrades)
	}

	decision := PromotionDecision{
		EvaluatedAt: g.now(),
		Shadow:      shadow,
		Frozen:      frozen,
		Tests:       []TestResult{winrate, expectancy, drawdown, sample},
		Verdict:     VerdictApprove,
		Reason:      "all promotion tests passed",
	}

	for _, test := range decision.Tests {
		if !test.Passed {
			decision.Verdict = VerdictReject
			decision.Reason = rejectReason(test)
			break
		}
	}

	observePromotionVerdict(decision.Verdict)
	logger.Info("promotion evaluated",
		"verdict", decision.Verdict,
		"reason", decision.Reason,
		"shadowWinrate", shadow.Winrate,
		"frozenWinrate", frozen.Winrate,
		"trades", shadow.TotalTrades,
	)

	if err := g.journal.Append(decision); err != nil {
		return decision, fmt.Errorf("failed to journal promotion decision: %w", err)
	}

	return decision, nil
}

// expectancyThreshold is the frozen expectancy plus the relative margin. A
// non-positive frozen expectancy degenerates to simply requiring improvement.
func expectancyThreshold(frozen, margin float64) float64 {
	if frozen > 0 {
		return frozen * (1 + margin)
	}
	return frozen
}

func rejectReason(test TestResult) string {
	switch test.Name {
	case TestWinrateMargin:
		return fmt.Sprintf("winrate margin not met (short by %.4f)", -test.Margin)
	case TestExpectancyMargin:
		return fmt.Sprintf("expectancy margin not met (short by %.4f)", -test.Margin)
	case TestDrawdownCeiling:
		return fmt.Sprintf("max drawdown above ceiling (over by %.4f)", -test.Margin)
	case TestSampleSize:
		return "insufficient sample size"
	default:
		return fmt.Sprintf("test %q failed", test.Name)
	}
}

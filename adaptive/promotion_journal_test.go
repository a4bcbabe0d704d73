package adaptive

import (
	"path/filepath"
	"testing"
	"time"
)

func sampleDecision(verdict string, evaluatedAt time.Time) PromotionDecision {
	return PromotionDecision{
		EvaluatedAt: evaluatedAt,
		Shadow: MetricsSnapshot{
			Winrate:      0.58,
			Expectancy:   0.65,
			AvgPnL:       0.65,
			MaxDrawdown:  0.12,
			WindowTrades: 100,
			TotalTrades:  150,
		},
		Frozen: MetricsSnapshot{Winrate: 0.54, Expectancy: 0.55},
		Tests: []TestResult{
			{Name: TestWinrateMargin, Passed: true, Margin: 0.02},
			{Name: TestExpectancyMargin, Passed: true, Margin: 0.0725},
			{Name: TestDrawdownCeiling, Passed: true, Margin: 0.08},
			{Name: TestSampleSize, Passed: true, Margin: 50},
		},
		Verdict: verdict,
		Reason:  "all promotion tests passed",
	}
}

func TestPromotionJournal_RoundTrip(t *testing.T) {
	journal, err := NewPromotionJournal(filepath.Join(t.TempDir(), "promotion_log.jsonl"))
	if err != nil {
		t.Fatalf("NewPromotionJournal() error = %v", err)
	}

	evaluatedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	want := sampleDecision(VerdictApprove, evaluatedAt)

	if err := journal.Append(want); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	decisions, err := journal.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("Recent() = %d decisions, want 1", len(decisions))
	}

	got := decisions[0]
	if !got.EvaluatedAt.Equal(want.EvaluatedAt) {
		t.Errorf("EvaluatedAt = %v, want %v", got.EvaluatedAt, want.EvaluatedAt)
	}
	if got.Verdict != want.Verdict || got.Reason != want.Reason {
		t.Errorf("verdict/reason = %v/%q, want %v/%q", got.Verdict, got.Reason, want.Verdict, want.Reason)
	}
	if got.Shadow != want.Shadow {
		t.Errorf("Shadow = %+v, want %+v", got.Shadow, want.Shadow)
	}
	if len(got.Tests) != len(want.Tests) {
		t.Fatalf("Tests = %d entries, want %d", len(got.Tests), len(want.Tests))
	}
	for i, test := range got.Tests {
		if test != want.Tests[i] {
			t.Errorf("test #%d = %+v, want %+v", i, test, want.Tests[i])
		}
	}
}

func TestPromotionJournal_RecentLimits(t *testing.T) {
	journal, err := NewPromotionJournal(filepath.Join(t.TempDir(), "promotion_log.jsonl"))
	if err != nil {
		t.Fatalf("NewPromotionJournal() error = %v", err)
	}

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := journal.Append(sampleDecision(VerdictReject, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	decisions, err := journal.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("Recent(2) = %d decisions, want 2", len(decisions))
	}
	if !decisions[1].EvaluatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("last decision EvaluatedAt = %v, want the newest entry", decisions[1].EvaluatedAt)
	}
}

func TestPromotionJournal_MissingFileIsEmpty(t *testing.T) {
	journal, err := NewPromotionJournal(filepath.Join(t.TempDir(), "promotion_log.jsonl"))
	if err != nil {
		t.Fatalf("NewPromotionJournal() error = %v", err)
	}

	decisions, err := journal.Recent(0)
	if err != nil {
		t.Fatalf("Recent() on missing file error = %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("Recent() on missing file = %d decisions, want 0", len(decisions))
	}
}

package adaptive

import (
	"path/filepath"
	"strings"
	"testing"
)

func testGate(t *testing.T) (*PromotionGate, *PromotionJournal) {
	t.Helper()

	journal, err := NewPromotionJournal(filepath.Join(t.TempDir(), "promotion_log.jsonl"))
	if err != nil {
		t.Fatalf("NewPromotionJournal() error = %v", err)
	}

	gate := NewPromotionGate(PromotionGateConfig{
		WinrateMargin:    0.02,
		ExpectancyMargin: 0.05,
		DrawdownCeiling:  0.20,
		MinTrades:        100,
		MinRecentTrades:  50,
	}, journal)

	return gate, journal
}

func approvableShadow() MetricsSnapshot {
	return MetricsSnapshot{
		Winrate:      0.58,
		Expectancy:   0.65,
		MaxDrawdown:  0.12,
		WindowTrades: 100,
		TotalTrades:  150,
	}
}

func testFrozen() MetricsSnapshot {
	return MetricsSnapshot{Winrate: 0.54, Expectancy: 0.55}
}

func TestPromotionGate_ApprovesWhenAllTestsPass(t *testing.T) {
	gate, journal := testGate(t)

	decision, err := gate.Evaluate(approvableShadow(), testFrozen())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if decision.Verdict != VerdictApprove {
		t.Fatalf("verdict = %v (%s), want APPROVE", decision.Verdict, decision.Reason)
	}
	if len(decision.Tests) != 4 {
		t.Fatalf("test results = %d, want 4", len(decision.Tests))
	}
	for _, test := range decision.Tests {
		if !test.Passed {
			t.Errorf("test %s failed with margin %v, want pass", test.Name, test.Margin)
		}
	}

	// The decision reaches the journal before Evaluate returns
	decisions, err := journal.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 1 {
		t.Errorf("journaled decisions = %d, want 1", len(decisions))
	}
}

func TestPromotionGate_RejectsInsufficientSample(t *testing.T) {
	gate, _ := testGate(t)

	shadow := approvableShadow()
	shadow.TotalTrades = 40
	shadow.WindowTrades = 40

	decision, err := gate.Evaluate(shadow, testFrozen())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if decision.Verdict != VerdictReject {
		t.Fatalf("verdict = %v, want REJECT", decision.Verdict)
	}
	if decision.Reason != "insufficient sample size" {
		t.Errorf("reason = %q, want %q", decision.Reason, "insufficient sample size")
	}
}

func TestPromotionGate_SmallTotalWithFullRecentWindowApproves(t *testing.T) {
	gate, _ := testGate(t)

	shadow := approvableShadow()
	shadow.TotalTrades = 60
	shadow.WindowTrades = 50

	decision, err := gate.Evaluate(shadow, testFrozen())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if decision.Verdict != VerdictApprove {
		t.Fatalf("verdict = %v (%s), want APPROVE via recent-window sample", decision.Verdict, decision.Reason)
	}

	// the sample margin reflects the recent-window criterion that passed,
	// not the unmet total-trades one
	for _, test := range decision.Tests {
		if test.Name != TestSampleSize {
			continue
		}
		if !test.Passed {
			t.Fatalf("sample test failed, want pass")
		}
		if test.Margin != 0 {
			t.Errorf("sample margin = %v, want 0 (window 50 against minimum 50)", test.Margin)
		}
	}
}

func TestPromotionGate_RejectNamesFailingTest(t *testing.T) {
	gate, _ := testGate(t)

	tests := []struct {
		name   string
		mutate func(*MetricsSnapshot)
		want   string
	}{
		{"winrate short of margin", func(s *MetricsSnapshot) { s.Winrate = 0.55 }, "winrate"},
		{"expectancy short of margin", func(s *MetricsSnapshot) { s.Expectancy = 0.56 }, "expectancy"},
		{"drawdown above ceiling", func(s *MetricsSnapshot) { s.MaxDrawdown = 0.25 }, "drawdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shadow := approvableShadow()
			tt.mutate(&shadow)

			decision, err := gate.Evaluate(shadow, testFrozen())
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if decision.Verdict != VerdictReject {
				t.Fatalf("verdict = %v, want REJECT", decision.Verdict)
			}
			if !strings.Contains(decision.Reason, tt.want) {
				t.Errorf("reason = %q, want mention of %q", decision.Reason, tt.want)
			}
		})
	}
}

func TestPromotionGate_EveryDecisionJournaled(t *testing.T) {
	gate, journal := testGate(t)

	if _, err := gate.Evaluate(approvableShadow(), testFrozen()); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	rejected := approvableShadow()
	rejected.TotalTrades = 40
	rejected.WindowTrades = 40
	if _, err := gate.Evaluate(rejected, testFrozen()); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	decisions, err := journal.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("journaled decisions = %d, want 2", len(decisions))
	}
	if decisions[0].Verdict != VerdictApprove || decisions[1].Verdict != VerdictReject {
		t.Errorf("verdicts = %v, %v; want APPROVE then REJECT", decisions[0].Verdict, decisions[1].Verdict)
	}
}

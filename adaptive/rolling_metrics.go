package adaptive

import "time"

// MetricsSnapshot is a point-in-time view of a model's rolling performance.
// The frozen baseline and the shadow's live window share this shape.
type MetricsSnapshot struct {
	Winrate       float64   `json:"winrate"`
	Expectancy    float64   `json:"expectancy"`
	AvgPnL        float64   `json:"avg_pnl"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	LossStreak    int       `json:"loss_streak"`
	MaxLossStreak int       `json:"max_loss_streak"`
	DrawdownSlope float64   `json:"drawdown_slope"`
	WindowTrades  int       `json:"window_trades"`
	TotalTrades   int       `json:"total_trades"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// tradeOutcome is one completed paper trade
type tradeOutcome struct {
	pnl   float64
	isWin bool
}

// rollingWindow keeps the last N trade outcomes and recomputes the full
// metric set on demand. Not safe for concurrent use; the owning monitor
// serializes access.
type rollingWindow struct {
	size        int
	trades      []tradeOutcome
	totalTrades int
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{
		size:   size,
		trades: make([]tradeOutcome, 0, size),
	}
}

func (w *rollingWindow) add(pnl float64, isWin bool) {
	w.trades = append(w.trades, tradeOutcome{pnl: pnl, isWin: isWin})
	if len(w.trades) > w.size {
		w.trades = w.trades[len(w.trades)-w.size:]
	}
	w.totalTrades++
}

func (w *rollingWindow) snapshot(now time.Time) MetricsSnapshot {
	n := len(w.trades)
	if n == 0 {
		return MetricsSnapshot{TotalTrades: w.totalTrades, UpdatedAt: now}
	}

	var wins, maxStreak, streak int
	var pnlSum, winSum, lossSum float64
	var winCount, lossCount int

	for _, t := range w.trades {
		pnlSum += t.pnl
		if t.isWin {
			wins++
			winSum += t.pnl
			winCount++
			streak = 0
		} else {
			lossSum += -t.pnl
			lossCount++
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		}
	}

	winrate := float64(wins) / float64(n)

	// expectancy = avg win * winrate - avg loss * loss rate
	var avgWin, avgLoss float64
	if winCount > 0 {
		avgWin = winSum / float64(winCount)
	}
	if lossCount > 0 {
		avgLoss = lossSum / float64(lossCount)
	}
	expectancy := avgWin*winrate - avgLoss*(1-winrate)

	return MetricsSnapshot{
		Winrate:       winrate,
		Expectancy:    expectancy,
		AvgPnL:        pnlSum / float64(n),
		MaxDrawdown:   w.maxDrawdown(),
		LossStreak:    streak,
		MaxLossStreak: maxStreak,
		DrawdownSlope: w.drawdownSlope(),
		WindowTrades:  n,
		TotalTrades:   w.totalTrades,
		UpdatedAt:     now,
	}
}

// maxDrawdown is the largest peak-to-trough decline of the window's
// cumulative pnl, expressed as a fraction of the peak when the peak is
// positive, absolute otherwise
func (w *rollingWindow) maxDrawdown() float64 {
	var cumulative, peak, maxDecline float64

	for _, t := range w.trades {
		cumulative += t.pnl
		if cumulative > peak {
			peak = cumulative
		}
		decline := peak - cumulative
		if decline > maxDecline {
			maxDecline = decline
		}
	}

	if peak > 0 {
		return maxDecline / peak
	}
	return maxDecline
}

// drawdownSlope is a linear regression slope over the most recent fifth of
// the window's cumulative pnl curve; negative means capital is declining
func (w *rollingWindow) drawdownSlope() float64 {
	if len(w.trades) < 2 {
		return 0
	}

	cumulative := make([]float64, len(w.trades))
	var running float64
	for i, t := range w.trades {
		running += t.pnl
		cumulative[i] = running
	}

	lookback := len(cumulative) / 5
	if lookback < 2 {
		lookback = 2
	}
	recent := cumulative[len(cumulative)-lookback:]

	n := float64(len(recent))
	var xMean, yMean float64
	for i, y := range recent {
		xMean += float64(i)
		yMean += y
	}
	xMean /= n
	yMean /= n

	var numerator, denominator float64
	for i, y := range recent {
		dx := float64(i) - xMean
		numerator += dx * (y - yMean)
		denominator += dx * dx
	}

	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

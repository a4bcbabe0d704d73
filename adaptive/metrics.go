package adaptive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shadowWinrate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guardrail_shadow_winrate",
		Help: "Rolling winrate of the shadow model window",
	})

	shadowExpectancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guardrail_shadow_expectancy",
		Help: "Rolling expectancy of the shadow model window",
	})

	shadowLossStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guardrail_shadow_loss_streak",
		Help: "Current consecutive losses in the shadow model window",
	})

	driftFlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardrail_drift_flagged_total",
		Help: "Drift comparisons that flagged degradation",
	})

	promotionVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_promotion_verdicts_total",
		Help: "Promotion evaluations by verdict",
	}, []string{"verdict"})
)

func observeShadowMetrics(snapshot MetricsSnapshot) {
	shadowWinrate.Set(snapshot.Winrate)
	shadowExpectancy.Set(snapshot.Expectancy)
	shadowLossStreak.Set(float64(snapshot.LossStreak))
}

func observeDriftFlagged() {
	driftFlaggedTotal.Inc()
}

func observePromotionVerdict(verdict string) {
	promotionVerdictsTotal.WithLabelValues(verdict).Inc()
}

package jobsafety

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantsafe/guardrail/jobsafety/repository"
)

var (
	retryDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_retry_decisions_total",
		Help: "Retry decisions by outcome",
	}, []string{"outcome"})

	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guardrail_circuit_state",
		Help: "Circuit breaker state per failure category (0=closed, 1=open, 2=half-open)",
	}, []string{"category"})

	idempotencyClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_idempotency_claims_total",
		Help: "Idempotency claim attempts by result",
	}, []string{"result"})

	alertEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_alert_events_total",
		Help: "Alert events emitted by type",
	}, []string{"type"})
)

func observeClaim(result string) {
	idempotencyClaimsTotal.WithLabelValues(result).Inc()
}

func observeRetryDecision(outcome string) {
	retryDecisionsTotal.WithLabelValues(outcome).Inc()
}

func observeCircuitState(category string, state repository.CircuitStateValue) {
	var v float64
	switch state {
	case repository.CircuitOpen:
		v = 1
	case repository.CircuitHalfOpen:
		v = 2
	}
	circuitState.WithLabelValues(category).Set(v)
}

// PrometheusAlertHandler counts alert events by type. Register it on the
// notifier alongside logging or webhook sinks.
func PrometheusAlertHandler(event AlertEvent) {
	alertEventsTotal.WithLabelValues(event.Type).Inc()
}

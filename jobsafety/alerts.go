package jobsafety

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/quantsafe/guardrail/lib/logger"
)

// Alert event types emitted by the circuit breaker
const (
	AlertCircuitOpened     = "circuit_opened"
	AlertCircuitReopened   = "circuit_reopened"
	AlertCircuitClosed     = "circuit_closed"
	AlertManualOverrideSet = "manual_override_set"
)

// AlertEvent is a structured message describing a safety-relevant transition
type AlertEvent struct {
	Type      string            `json:"type"`
	Severity  string            `json:"severity"`
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AlertHandler consumes alert events. Handlers are sinks only: a failing or
// panicking handler must never propagate back into the emitting component.
type AlertHandler func(AlertEvent)

// AlertNotifier fans alert events out to registered handlers
type AlertNotifier struct {
	mu       sync.RWMutex
	handlers []AlertHandler
}

// NewAlertNotifier creates an empty AlertNotifier
func NewAlertNotifier() *AlertNotifier {
	return &AlertNotifier{}
}

// Register appends a handler to the notifier
func (n *AlertNotifier) Register(handler AlertHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Emit invokes all handlers synchronously, isolating each one so a handler
// panic cannot reach the caller
func (n *AlertNotifier) Emit(event AlertEvent) {
	n.mu.RLock()
	handlers := make([]AlertHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	for _, handler := range handlers {
		n.invoke(handler, event)
	}
}

func (n *AlertNotifier) invoke(handler AlertHandler, event AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("alert handler panicked", "eventType", event.Type, "panic", r)
		}
	}()

	handler(event)
}

// LogAlerts is an AlertHandler that writes events to the structured log
func LogAlerts(event AlertEvent) {
	logger.Warn("alert event",
		"type", event.Type,
		"severity", event.Severity,
		"category", event.Category,
		"message", event.Message,
		"context", event.Context,
	)
}

// NewWebhookAlertHandler returns an AlertHandler that POSTs events as JSON to
// the given URL with retries and backoff. Delivery failures are logged and
// dropped; they never affect the emitting component.
func NewWebhookAlertHandler(url string) AlertHandler {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil // Disable retryablehttp's default logging

	return func(event AlertEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to encode alert event", "eventType", event.Type, "error", err)
			return
		}

		resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			logger.Error("failed to deliver alert webhook", "url", url, "eventType", event.Type, "error", err)
			return
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Error("failed to close webhook response body", "url", url, "error", err)
			}
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logger.Error("alert webhook rejected event", "url", url, "statusCode", resp.StatusCode)
		}
	}
}

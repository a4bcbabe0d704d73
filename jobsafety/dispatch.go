package jobsafety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/quantsafe/guardrail/lib/logger"
)

// executorResultLimit caps how much of the executor response is cached as the
// idempotency result
const executorResultLimit = 4096

// NewWebhookJobHandler returns a JobHandler that executes jobs by POSTing the
// delivery as JSON to the executor endpoint. The response body becomes the
// cached result; a non-2xx status is a job failure carried to the classifier
// through the error message.
func NewWebhookJobHandler(url string) JobHandler {
	client := retryablehttp.NewClient()
	client.RetryMax = 0 // retries are the retry manager's decision, not the transport's
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return func(ctx context.Context, delivery JobDelivery) (string, error) {
		payload, err := json.Marshal(delivery)
		if err != nil {
			return "", fmt.Errorf("failed to encode job delivery: %w", err)
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to build executor request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to reach job executor: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Error("failed to close executor response body", "url", url, "error", err)
			}
		}()

		body, err := io.ReadAll(io.LimitReader(resp.Body, executorResultLimit))
		if err != nil {
			return "", fmt.Errorf("failed to read executor response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("executor returned %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), body)
		}

		return string(body), nil
	}
}

package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lms-sync/internal/metrics"
)

const (
	maxRetries   = 5
	initialDelay = 1 * time.Second
	maxDelay     = 5 * time.Minute
)

// HTTPError is a non-retryable HTTP failure from an LMS API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient wraps http.Client with the retry/backoff behavior every LMS
// adapter shares: exponential backoff on transport errors, 429s (honoring
// Retry-After) and 5xx responses, immediate failure on other status codes.
type HTTPClient struct {
	client *http.Client
	system System
	logger *slog.Logger
}

// NewHTTPClient creates an HTTPClient for one source system.
func NewHTTPClient(system System, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: 30 * time.Second},
		system: system,
		logger: logger,
	}
}

// Do performs the request produced by build, retrying as needed. build is
// called per attempt so request bodies are never reused. op names the
// logical API operation for logs and metrics.
func (c *HTTPClient) Do(ctx context.Context, op string, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "system", string(c.system), "operation", op, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req = req.WithContext(ctx)

		start := time.Now()
		resp, err := c.client.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			c.logger.Error("request failed", "system", string(c.system), "operation", op, "error", err, "attempt", attempt)
			continue
		}

		metrics.APIRequestsTotal.WithLabelValues(string(c.system), op, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.APIRequestDuration.WithLabelValues(string(c.system), op).Observe(duration.Seconds())

		c.logger.Debug("lms_api_request",
			"system", string(c.system), "operation", op,
			"status", resp.StatusCode, "duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		default:
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

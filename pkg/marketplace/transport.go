package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	maxResponseBytes = 1 << 20
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// APIError is a non-2xx marketplace response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace %s returned %d: %s (request %s)", e.Endpoint, e.StatusCode, e.Message, e.RequestID)
}

// Retryable reports whether the marketplace may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type request struct {
	endpoint      string
	method        string
	path          string
	query         url.Values
	body          any
	authenticated bool
}

// do sends req, retrying transport errors, 429 and 5xx with exponential
// backoff. All attempts share one X-Request-ID.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", req.endpoint, err)
		}
		payload = data
	}

	var token string
	if req.authenticated {
		t, err := c.bearerToken()
		if err != nil {
			return err
		}
		token = t
	}

	requestID := uuid.New().String()
	backoff := c.retry.InitialBackoff
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.retries.WithLabelValues(req.endpoint).Inc()
			if err := sleepContext(ctx, backoff); err != nil {
				return err
			}
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiple)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		retryable, err := c.attempt(ctx, req, payload, token, requestID, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}

		c.logger.Sugar().Warnw("Marketplace request failed, retrying",
			"endpoint", req.endpoint,
			"attempt", attempt+1,
			"requestId", requestID,
			"error", err,
		)
	}

	return fmt.Errorf("marketplace %s failed after %d attempts: %w", req.endpoint, attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req request, payload []byte, token, requestID string, out any) (bool, error) {
	u := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return false, fmt.Errorf("failed to build %s request: %w", req.endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.duration.WithLabelValues(req.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.requests.WithLabelValues(req.endpoint, "error").Inc()
		return ctx.Err() == nil, fmt.Errorf("marketplace %s request failed: %w", req.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.requests.WithLabelValues(req.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return true, fmt.Errorf("failed to read %s response: %w", req.endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Endpoint:   req.endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
			RequestID:  requestID,
		}
		return apiErr.Retryable(), apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("failed to decode %s response: %w", req.endpoint, err)
		}
	}
	return false, nil
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

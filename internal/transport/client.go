// Package transport is the HTTP client side of the policy distribution
// protocol: a reusable bearer-auth client with bounded retries, plus typed
// calls for fetching policies and reporting pattern statistics.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
)

// ErrNoPolicy is returned by FetchPolicy when the backend answers 404: the
// service has never reported, so there is nothing to fetch. Callers fall
// through to their local default instead of treating it as a failure.
var ErrNoPolicy = errors.New("no policy for service")

// Client is an HTTP client with Bearer auth, base URL, and retry logic.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // internal: Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a Client with Bearer auth and a base URL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const maxRetries = 3

// GetJSON sends a GET request and unmarshals the JSON response into dest.
// Returns *APIError for non-2xx responses. Retries on 429 (with Retry-After),
// 5xx, and network errors, with exponential backoff: 1s, 2s, 4s. Max 3
// retries.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, fullURL, nil, dest)
}

// PostJSON marshals body, sends a POST request, and unmarshals the JSON
// response into dest (pass nil to discard it). Same retry behavior as
// GetJSON; the marshaled body is replayed on each attempt.
func (c *Client) PostJSON(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+path, payload, dest)
}

func (c *Client) doJSON(ctx context.Context, method, fullURL string, payload []byte, dest any) error {
	var lastErr error
	var lastAPI *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt, lastAPI)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr, lastAPI = err, nil
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr, lastAPI = err, nil
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if dest == nil {
				return nil
			}
			return json.Unmarshal(body, dest)
		}

		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyStr}

		if resp.StatusCode == 429 {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr, lastAPI = apiErr, apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr, lastAPI = apiErr, apiErr
			continue
		}

		return apiErr
	}

	return lastErr
}

// backoffDelay returns the wait duration before a retry attempt.
func backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == 429 && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 1s, 2s, 4s
	return time.Duration(1<<(attempt-1)) * time.Second
}

// FetchPolicy retrieves the current sampling policy for a service. The
// returned policy is clamped before it is handed to the caller, so wire
// content can never weaken the safety invariants. A 404 maps to ErrNoPolicy.
func (c *Client) FetchPolicy(ctx context.Context, service string) (*model.SamplingPolicy, error) {
	var pol model.SamplingPolicy
	if err := c.GetJSON(ctx, "/policies/"+url.PathEscape(service), nil, &pol); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNoPolicy
		}
		return nil, fmt.Errorf("fetch policy: %w", err)
	}
	clamped := pol.Clamp()
	return &clamped, nil
}

// ReportStats pushes one window of pattern statistics to the backend.
func (c *Client) ReportStats(ctx context.Context, report model.StatsReport) error {
	if err := c.PostJSON(ctx, "/patterns/stats", report, nil); err != nil {
		return fmt.Errorf("report stats: %w", err)
	}
	return nil
}

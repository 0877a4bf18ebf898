package sentry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// DefaultBaseURL is the hosted Sentry API endpoint, used when an
// organization does not configure a self-hosted instance.
const DefaultBaseURL = "https://sentry.io"

// Client is a thin HTTP client for the Sentry Web API. It handles
// Bearer token authentication and retry with backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new Sentry HTTP client. An empty baseURL selects
// the hosted sentry.io endpoint.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	url := c.baseURL + path
	op := "GET " + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &source.TransportError{
				SourceType: model.SourceTypeSentry,
				Op:         op,
				Err:        err,
			}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &source.TransportError{
				SourceType: model.SourceTypeSentry,
				Op:         op,
				Err:        readErr,
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s", op)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden {
			return &source.AuthError{
				SourceType: model.SourceTypeSentry,
				Message: fmt.Sprintf(
					"HTTP %d: check the auth token for %s",
					resp.StatusCode, c.baseURL,
				),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			detail := string(body)
			var apiErr ErrorResponse
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
				detail = apiErr.Detail
			}
			return &source.TransportError{
				SourceType: model.SourceTypeSentry,
				Op:         op,
				StatusCode: resp.StatusCode,
				Body:       detail,
			}
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s: %w", op, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

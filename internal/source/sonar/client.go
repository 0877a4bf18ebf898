package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// DefaultBaseURL is the hosted SonarCloud endpoint.
const DefaultBaseURL = "https://sonarcloud.io"

// Client is a thin HTTP client for the SonarCloud Web API. SonarCloud
// authenticates with HTTP Basic using the token as username and an
// empty password.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new SonarCloud HTTP client. An empty baseURL
// selects hosted sonarcloud.io.
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
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	url := c.baseURL + path
	op := "GET " + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.token, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &source.TransportError{
			SourceType: model.SourceTypeSonar,
			Op:         op,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.TransportError{
			SourceType: model.SourceTypeSonar,
			Op:         op,
			Err:        err,
		}
	}

	if resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		return &source.AuthError{
			SourceType: model.SourceTypeSonar,
			Message: fmt.Sprintf(
				"HTTP %d: check the token for %s", resp.StatusCode, c.baseURL,
			),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
			parts := make([]string, 0, len(apiErr.Errors))
			for _, e := range apiErr.Errors {
				parts = append(parts, e.Msg)
			}
			detail = strings.Join(parts, "; ")
		}
		return &source.TransportError{
			SourceType: model.SourceTypeSonar,
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

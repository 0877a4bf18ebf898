package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// managementBaseURL is the Azure Resource Manager endpoint.
const managementBaseURL = "https://management.azure.com"

// Client is a thin HTTP client for the Azure Resource Manager API.
// It authenticates with the OAuth2 client credentials flow against
// Microsoft Entra ID; token refresh is handled by the oauth2 client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Azure management client for a service
// principal. An empty baseURL selects the public ARM endpoint.
func NewClient(baseURL, tenantID, clientID, clientSecret string) *Client {
	if baseURL == "" {
		baseURL = managementBaseURL
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL: fmt.Sprintf(
			"https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID,
		),
		Scopes: []string{strings.TrimRight(baseURL, "/") + "/.default"},
	}

	httpClient := conf.Client(context.Background())
	httpClient.Timeout = 60 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
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
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Token acquisition failures surface here as URL errors
		// wrapping an oauth2 retrieve error.
		if strings.Contains(err.Error(), "oauth2") {
			return &source.AuthError{
				SourceType: model.SourceTypeAzure,
				Message:    fmt.Sprintf("acquiring token: %v", err),
			}
		}
		return &source.TransportError{
			SourceType: model.SourceTypeAzure,
			Op:         op,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.TransportError{
			SourceType: model.SourceTypeAzure,
			Op:         op,
			Err:        err,
		}
	}

	if resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		return &source.AuthError{
			SourceType: model.SourceTypeAzure,
			Message: fmt.Sprintf(
				"HTTP %d: check the service principal credentials and role assignments",
				resp.StatusCode,
			),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Code + ": " + apiErr.Error.Message
		}
		return &source.TransportError{
			SourceType: model.SourceTypeAzure,
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

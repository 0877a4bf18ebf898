package model

import "time"

// SourceType identifies the kind of external system an organization
// is configured against.
type SourceType string

const (
	SourceTypeSentry SourceType = "sentry"
	SourceTypeJira   SourceType = "jira"
	SourceTypeSonar  SourceType = "sonarcloud"
	SourceTypeAzure  SourceType = "azure"
)

// Connection status constants for an organization.
const (
	ConnectionUnknown      = "unknown"
	ConnectionConnected    = "connected"
	ConnectionFailed       = "failed"
	ConnectionUnauthorized = "unauthorized"
)

// Organization is one configured account/tenant on an external system.
// Credential material may be a literal secret or a "keyring:<key>"
// reference resolved through the credential package.
type Organization struct {
	ID         string     `json:"id" db:"id"`
	SourceType SourceType `json:"source_type" db:"source_type"`

	// Name is the user-defined label for this account.
	Name string `json:"name" db:"name"`

	// Slug is the account's identifier on the remote side
	// (Sentry org slug, SonarCloud organization key, Azure
	// subscription id).
	Slug string `json:"slug" db:"slug"`

	// BaseURL is the API root. Empty means the integration's
	// well-known default endpoint.
	BaseURL string `json:"base_url" db:"base_url"`

	// Username is the identity paired with the token where the
	// auth scheme needs one (Jira uses email + API token).
	Username string `json:"username" db:"username"`

	// APIToken is the bearer/basic secret, or a keyring reference.
	APIToken string `json:"-" db:"api_token"`

	// Settings holds integration-specific keys the engine does not
	// interpret. Documented keys:
	//   azure:  tenant_id, client_id, client_secret, subscription_id,
	//           workspace_id, resource_groups (comma separated)
	//   sentry: query (issue search filter)
	//   jira:   jql_filter
	Settings map[string]string `json:"settings" db:"-"`

	SyncEnabled  bool          `json:"sync_enabled" db:"sync_enabled"`
	SyncInterval time.Duration `json:"sync_interval" db:"-"`
	LastSyncAt   *time.Time    `json:"last_sync_at" db:"last_sync_at"`

	ConnectionStatus   string     `json:"connection_status" db:"connection_status"`
	ConnectionError    string     `json:"connection_error" db:"connection_error"`
	LastConnectionTest *time.Time `json:"last_connection_test" db:"last_connection_test"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Due reports whether the organization is eligible for a scheduled sync
// at the given instant: syncing must be enabled and either no sync has
// ever run or at least one full interval has elapsed since the last one.
func (o *Organization) Due(now time.Time) bool {
	if !o.SyncEnabled {
		return false
	}
	if o.LastSyncAt == nil {
		return true
	}
	return now.Sub(*o.LastSyncAt) >= o.SyncInterval
}

package model

import "time"

// Project is a grouping of issues mirrored from an external system
// (Jira project, Sentry project, SonarCloud component, Azure resource).
// Unique on (organization, external key).
type Project struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	// ExternalKey is the natural key within the organization
	// (Jira project key, Sentry project slug, SonarCloud component
	// key, Azure resource id).
	ExternalKey string `json:"external_key" db:"external_key"`

	// ExternalID is the remote system's opaque id, when distinct
	// from the key.
	ExternalID string `json:"external_id" db:"external_id"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// ProjectType carries remote type metadata (Jira projectTypeKey,
	// Sentry platform, Azure resource type).
	ProjectType string `json:"project_type" db:"project_type"`

	// LeadName is the display name of the project lead/owner if the
	// remote system exposes one.
	LeadName string `json:"lead_name" db:"lead_name"`

	// Metadata holds integration-specific keys the engine does not
	// interpret. Documented keys:
	//   sonarcloud: quality_gate_status, reliability_rating,
	//               security_rating, coverage, ncloc
	//   azure:      resource_group, location
	//   sentry:     platform
	Metadata map[string]string `json:"metadata" db:"-"`

	SyncEnabled     bool `json:"sync_enabled" db:"sync_enabled"`
	SyncIssues      bool `json:"sync_issues" db:"sync_issues"`
	MaxIssuesToSync int  `json:"max_issues_to_sync" db:"max_issues_to_sync"`

	// Rollup counters recomputed after each issue sync.
	TotalIssues      int `json:"total_issues" db:"total_issues"`
	OpenIssues       int `json:"open_issues" db:"open_issues"`
	InProgressIssues int `json:"in_progress_issues" db:"in_progress_issues"`
	DoneIssues       int `json:"done_issues" db:"done_issues"`

	LastIssueSyncAt *time.Time `json:"last_issue_sync_at" db:"last_issue_sync_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

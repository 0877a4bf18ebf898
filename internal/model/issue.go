package model

import "time"

// Normalized status categories shared by all integrations. Adapters map
// their remote status vocabulary onto these three buckets; project
// rollups count by them.
const (
	StatusCategoryNew        = "new"
	StatusCategoryInProgress = "indeterminate"
	StatusCategoryDone       = "done"
)

// Issue is the atomic tracked record synced from an external system:
// an error group, an issue-tracker ticket, a code-quality finding, or
// a monitor alert. Unique on (project, external key); that pair is the
// idempotency key for upsert.
type Issue struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`

	// SourceType is denormalized from the owning organization so
	// cross-system checks and candidate searches avoid a join.
	SourceType SourceType `json:"source_type" db:"source_type"`

	// ExternalKey is the natural key within the project (Jira issue
	// key, Sentry issue id, SonarCloud issue key, Azure alert id).
	ExternalKey string `json:"external_key" db:"external_key"`
	ExternalID  string `json:"external_id" db:"external_id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	IssueType      string `json:"issue_type" db:"issue_type"`
	Status         string `json:"status" db:"status"`
	StatusCategory string `json:"status_category" db:"status_category"`
	Priority       string `json:"priority" db:"priority"`

	// Level carries the integration's severity vocabulary as-is
	// (Sentry level, SonarCloud severity, Azure alert severity).
	Level string `json:"level" db:"level"`

	Assignee      string `json:"assignee" db:"assignee"`
	AssigneeEmail string `json:"assignee_email" db:"assignee_email"`
	Reporter      string `json:"reporter" db:"reporter"`
	ReporterEmail string `json:"reporter_email" db:"reporter_email"`

	// Permalink is the direct link back to the record remotely.
	Permalink string `json:"permalink" db:"permalink"`

	// Culprit is the offending code location for error-tracker issues.
	Culprit string `json:"culprit" db:"culprit"`

	// Error-tracker frequency counters.
	EventCount int `json:"event_count" db:"event_count"`
	UserCount  int `json:"user_count" db:"user_count"`

	FirstSeenAt     *time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt      *time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedRemoteAt *time.Time `json:"created_remote_at" db:"created_remote_at"`
	UpdatedRemoteAt *time.Time `json:"updated_remote_at" db:"updated_remote_at"`
	ResolvedAt      *time.Time `json:"resolved_at" db:"resolved_at"`

	// Opaque label bags, stored as JSON.
	Labels      []string `json:"labels,omitempty" db:"-"`
	Components  []string `json:"components,omitempty" db:"-"`
	FixVersions []string `json:"fix_versions,omitempty" db:"-"`

	// Metadata holds integration-specific keys the engine does not
	// interpret. Documented keys:
	//   sonarcloud: rule, effort_minutes, file, line
	//   azure:      monitor_condition, signal_type, target_resource
	//   sentry:     type, value
	Metadata map[string]string `json:"metadata" db:"-"`

	// CreatedFromLink marks tickets this system created remotely
	// out of another system's issue.
	CreatedFromLink bool `json:"created_from_link" db:"created_from_link"`

	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
}

// IsResolved reports whether the issue's status category is done.
func (i *Issue) IsResolved() bool {
	return i.StatusCategory == StatusCategoryDone
}

// IssueEvent is a single occurrence of an error-tracker issue.
type IssueEvent struct {
	ID         string `json:"id" db:"id"`
	IssueID    string `json:"issue_id" db:"issue_id"`
	ExternalID string `json:"external_id" db:"external_id"`

	Message     string `json:"message" db:"message"`
	Platform    string `json:"platform" db:"platform"`
	Environment string `json:"environment" db:"environment"`
	Release     string `json:"release" db:"release"`

	UserID    string `json:"user_id" db:"user_id"`
	UserEmail string `json:"user_email" db:"user_email"`
	UserIP    string `json:"user_ip" db:"user_ip"`

	// Tags is the event's key/value tag set, stored as JSON.
	Tags map[string]string `json:"tags,omitempty" db:"-"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

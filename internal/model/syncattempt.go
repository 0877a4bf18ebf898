package model

import "time"

// SyncAttempt status values. Every attempt starts as started and is
// finalized exactly once to one of the terminal states.
const (
	SyncStatusStarted = "started"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPartial = "partial"
)

// Sync type values recorded on an attempt.
const (
	SyncTypeFull     = "full"
	SyncTypeProjects = "projects"
	SyncTypeIssues   = "issues"
)

// SyncAttempt is one append-only execution record of a sync run for an
// organization, with outcome and per-entity counters.
type SyncAttempt struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	SyncType string `json:"sync_type" db:"sync_type"`
	Status   string `json:"status" db:"status"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`

	// Duration is derived from completed_at - started_at at finalize
	// time and never recomputed afterward.
	Duration time.Duration `json:"duration" db:"-"`

	ProjectsSynced int `json:"projects_synced" db:"projects_synced"`
	IssuesSynced   int `json:"issues_synced" db:"issues_synced"`
	EventsSynced   int `json:"events_synced" db:"events_synced"`

	ErrorMessage string `json:"error_message" db:"error_message"`

	// ErrorDetails is the ordered list of per-entity error strings
	// collected during the run, stored as JSON.
	ErrorDetails []string `json:"error_details,omitempty" db:"-"`
}

// Finalized reports whether the attempt has already been completed.
func (a *SyncAttempt) Finalized() bool {
	return a.CompletedAt != nil
}

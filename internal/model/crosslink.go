package model

import "time"

// Link type constants.
const (
	LinkTypeManual   = "manual"   // created by a user
	LinkTypeAuto     = "auto"     // derived by correlation, annotation or title match
	LinkTypeImported = "imported" // brought in from an external system
)

// Sync directions recorded in a link's error log.
const (
	LinkDirectionForward = "source_to_target"
	LinkDirectionReverse = "target_to_source"
)

// LinkSyncError is one entry in a link's ordered error log.
type LinkSyncError struct {
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"`
	Error     string    `json:"error"`
}

// CrossLink is a bidirectional correlation record between two issues in
// different systems. Unique on (source_issue_id, target_issue_id);
// re-discovering an existing pair is a no-op, not an error. The two
// issues must never belong to the same source type.
type CrossLink struct {
	ID string `json:"id" db:"id"`

	SourceIssueID string `json:"source_issue_id" db:"source_issue_id"`
	TargetIssueID string `json:"target_issue_id" db:"target_issue_id"`

	LinkType      string `json:"link_type" db:"link_type"`
	CreationNotes string `json:"creation_notes" db:"creation_notes"`

	SyncSourceToTarget bool `json:"sync_source_to_target" db:"sync_source_to_target"`
	SyncTargetToSource bool `json:"sync_target_to_source" db:"sync_target_to_source"`

	LastSyncSourceToTarget *time.Time `json:"last_sync_source_to_target" db:"last_sync_source_to_target"`
	LastSyncTargetToSource *time.Time `json:"last_sync_target_to_source" db:"last_sync_target_to_source"`

	// SyncErrors is the ordered, append-only error log, stored as JSON.
	SyncErrors []LinkSyncError `json:"sync_errors,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// SourceIssueTitle and TargetIssueTitle are optionally populated
	// by join queries.
	SourceIssueTitle string `json:"source_issue_title,omitempty" db:"-"`
	TargetIssueTitle string `json:"target_issue_title,omitempty" db:"-"`
}

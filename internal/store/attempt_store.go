package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/srehub/internal/model"
)

// CreateSyncAttempt records the start of a sync run. The attempt is
// persisted immediately in the started state so a crash mid-run still
// leaves an audit row behind.
func (s *SQLiteStore) CreateSyncAttempt(ctx context.Context, orgID, syncType string) (*model.SyncAttempt, error) {
	attempt := &model.SyncAttempt{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		SyncType:       syncType,
		Status:         model.SyncStatusStarted,
		StartedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_attempts (id, organization_id, sync_type, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		attempt.ID, attempt.OrganizationID, attempt.SyncType,
		attempt.Status, attempt.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating sync attempt: %w", err)
	}
	return attempt, nil
}

// FinalizeSyncAttempt transitions an attempt from started to a terminal
// status, stamps completed_at, and derives the duration. An already
// finalized attempt is left untouched.
func (s *SQLiteStore) FinalizeSyncAttempt(ctx context.Context, attempt *model.SyncAttempt, status string) error {
	if attempt.Finalized() {
		return nil
	}

	completed := time.Now().UTC()
	duration := completed.Sub(attempt.StartedAt)

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_attempts SET
			status = ?,
			completed_at = ?,
			duration_ms = ?,
			projects_synced = ?,
			issues_synced = ?,
			events_synced = ?,
			error_message = ?,
			error_details = ?
		WHERE id = ? AND completed_at IS NULL`,
		status, completed, duration.Milliseconds(),
		attempt.ProjectsSynced, attempt.IssuesSynced, attempt.EventsSynced,
		attempt.ErrorMessage, marshalJSON(attempt.ErrorDetails, "[]"),
		attempt.ID,
	)
	if err != nil {
		return fmt.Errorf("finalizing sync attempt %s: %w", attempt.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Finalized concurrently; keep the stored outcome.
		return nil
	}

	attempt.Status = status
	attempt.CompletedAt = &completed
	attempt.Duration = duration
	return nil
}

// GetSyncAttempt retrieves a single attempt by ID.
func (s *SQLiteStore) GetSyncAttempt(ctx context.Context, id string) (*model.SyncAttempt, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM sync_attempts WHERE id = ?", id)
	attempt, err := scanSyncAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync attempt %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting sync attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListSyncAttempts retrieves the most recent attempts for an
// organization, newest first. A zero limit means no limit.
func (s *SQLiteStore) ListSyncAttempts(ctx context.Context, orgID string, limit int) ([]model.SyncAttempt, error) {
	query := "SELECT * FROM sync_attempts WHERE organization_id = ? ORDER BY started_at DESC"
	args := []interface{}{orgID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sync attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.SyncAttempt
	for rows.Next() {
		attempt, err := scanSyncAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, rows.Err()
}

func scanSyncAttempt(row rowScanner) (*model.SyncAttempt, error) {
	var (
		attempt     model.SyncAttempt
		completedAt sql.NullTime
		durationMS  int64
		details     string
	)
	err := row.Scan(
		&attempt.ID, &attempt.OrganizationID, &attempt.SyncType,
		&attempt.Status, &attempt.StartedAt, &completedAt, &durationMS,
		&attempt.ProjectsSynced, &attempt.IssuesSynced, &attempt.EventsSynced,
		&attempt.ErrorMessage, &details,
	)
	if err != nil {
		return nil, err
	}
	attempt.StartedAt = attempt.StartedAt.UTC()
	attempt.CompletedAt = timePtr(completedAt)
	attempt.Duration = time.Duration(durationMS) * time.Millisecond
	attempt.ErrorDetails = unmarshalStringSlice(details)
	return &attempt, nil
}

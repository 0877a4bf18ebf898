package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/srehub/internal/model"
)

// ErrSameSourceLink is returned when both ends of a cross-link belong
// to the same source type.
var ErrSameSourceLink = errors.New("cross-link endpoints share a source type")

// CreateCrossLink inserts a correlation record between two issues in
// different systems. Re-discovering an existing pair returns the stored
// link unchanged. Both issues must already exist locally.
func (s *SQLiteStore) CreateCrossLink(ctx context.Context, link *model.CrossLink) (*model.CrossLink, bool, error) {
	if existing, err := s.GetLinkByPair(ctx, link.SourceIssueID, link.TargetIssueID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	source, err := s.GetIssue(ctx, link.SourceIssueID)
	if err != nil {
		return nil, false, fmt.Errorf("resolving link source: %w", err)
	}
	target, err := s.GetIssue(ctx, link.TargetIssueID)
	if err != nil {
		return nil, false, fmt.Errorf("resolving link target: %w", err)
	}
	if source.SourceType == target.SourceType {
		return nil, false, ErrSameSourceLink
	}

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.LinkType == "" {
		link.LinkType = model.LinkTypeManual
	}
	link.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cross_links (
			id, source_issue_id, target_issue_id, link_type,
			creation_notes, sync_source_to_target, sync_target_to_source,
			last_sync_source_to_target, last_sync_target_to_source,
			sync_errors, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.SourceIssueID, link.TargetIssueID, link.LinkType,
		link.CreationNotes, boolToInt(link.SyncSourceToTarget),
		boolToInt(link.SyncTargetToSource),
		nullTime(link.LastSyncSourceToTarget),
		nullTime(link.LastSyncTargetToSource),
		marshalJSON(link.SyncErrors, "[]"), link.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating cross link: %w", err)
	}

	link.SourceIssueTitle = source.Title
	link.TargetIssueTitle = target.Title
	return link, true, nil
}

// GetLinkByPair retrieves the link between two specific issues, if any.
func (s *SQLiteStore) GetLinkByPair(ctx context.Context, sourceIssueID, targetIssueID string) (*model.CrossLink, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT cl.*, si.title, ti.title
		FROM cross_links cl
		JOIN issues si ON si.id = cl.source_issue_id
		JOIN issues ti ON ti.id = cl.target_issue_id
		WHERE cl.source_issue_id = ? AND cl.target_issue_id = ?`,
		sourceIssueID, targetIssueID,
	)
	link, err := scanCrossLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting cross link: %w", err)
	}
	return link, nil
}

// HasLink reports whether the two issues are linked in either
// direction.
func (s *SQLiteStore) HasLink(ctx context.Context, issueA, issueB string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM cross_links
		WHERE (source_issue_id = ? AND target_issue_id = ?)
		   OR (source_issue_id = ? AND target_issue_id = ?)`,
		issueA, issueB, issueB, issueA,
	)
	if err != nil {
		return false, fmt.Errorf("checking cross link: %w", err)
	}
	return count > 0, nil
}

// ListLinksForIssue retrieves all links where the issue appears on
// either side, newest first.
func (s *SQLiteStore) ListLinksForIssue(ctx context.Context, issueID string) ([]model.CrossLink, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT cl.*, si.title, ti.title
		FROM cross_links cl
		JOIN issues si ON si.id = cl.source_issue_id
		JOIN issues ti ON ti.id = cl.target_issue_id
		WHERE cl.source_issue_id = ? OR cl.target_issue_id = ?
		ORDER BY cl.created_at DESC`,
		issueID, issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cross links: %w", err)
	}
	defer rows.Close()

	var links []model.CrossLink
	for rows.Next() {
		link, err := scanCrossLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cross link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// LinkedIssueIDs returns the set of issue IDs that appear on either
// side of any link. Used to skip already-linked issues during scans.
func (s *SQLiteStore) LinkedIssueIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_issue_id, target_issue_id FROM cross_links")
	if err != nil {
		return nil, fmt.Errorf("querying linked issue ids: %w", err)
	}
	defer rows.Close()

	linked := make(map[string]bool)
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scanning linked issue ids: %w", err)
		}
		linked[a] = true
		linked[b] = true
	}
	return linked, rows.Err()
}

// AppendLinkSyncError appends one entry to a link's ordered error log.
func (s *SQLiteStore) AppendLinkSyncError(ctx context.Context, linkID, direction, message string) error {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		"SELECT sync_errors FROM cross_links WHERE id = ?", linkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cross link %s: %w", linkID, ErrNotFound)
		}
		return fmt.Errorf("reading link sync errors: %w", err)
	}

	var log []model.LinkSyncError
	if raw != "" && raw != "[]" {
		if err := json.Unmarshal([]byte(raw), &log); err != nil {
			log = nil
		}
	}
	log = append(log, model.LinkSyncError{
		Timestamp: time.Now().UTC(),
		Direction: direction,
		Error:     message,
	})

	_, err = s.db.ExecContext(ctx,
		"UPDATE cross_links SET sync_errors = ? WHERE id = ?",
		marshalJSON(log, "[]"), linkID,
	)
	if err != nil {
		return fmt.Errorf("appending link sync error: %w", err)
	}
	return nil
}

// DeleteCrossLink removes a link by ID.
func (s *SQLiteStore) DeleteCrossLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cross_links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting cross link %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cross link %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanCrossLink(row rowScanner) (*model.CrossLink, error) {
	var (
		link                model.CrossLink
		syncFwd, syncRev    int
		lastFwd, lastRev    sql.NullTime
		syncErrors          string
		srcTitle, tgtTitle  string
	)
	err := row.Scan(
		&link.ID, &link.SourceIssueID, &link.TargetIssueID,
		&link.LinkType, &link.CreationNotes, &syncFwd, &syncRev,
		&lastFwd, &lastRev, &syncErrors, &link.CreatedAt,
		&srcTitle, &tgtTitle,
	)
	if err != nil {
		return nil, err
	}
	link.SyncSourceToTarget = syncFwd != 0
	link.SyncTargetToSource = syncRev != 0
	link.LastSyncSourceToTarget = timePtr(lastFwd)
	link.LastSyncTargetToSource = timePtr(lastRev)
	link.CreatedAt = link.CreatedAt.UTC()
	if syncErrors != "" && syncErrors != "[]" {
		if err := json.Unmarshal([]byte(syncErrors), &link.SyncErrors); err != nil {
			link.SyncErrors = nil
		}
	}
	link.SourceIssueTitle = srcTitle
	link.TargetIssueTitle = tgtTitle
	return &link, nil
}

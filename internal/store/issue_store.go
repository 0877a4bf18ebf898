package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/srehub/internal/model"
)

// UpsertIssue inserts or updates an issue by its natural key
// (project_id, external_key). The remote system is authoritative:
// every field is overwritten with the remote value (last-write-wins).
// The local id of an existing row is preserved so cross-links stay
// valid. Returns true when a new row was created.
func (s *SQLiteStore) UpsertIssue(ctx context.Context, issue *model.Issue) (bool, error) {
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	if issue.StatusCategory == "" {
		issue.StatusCategory = model.StatusCategoryNew
	}
	if issue.FetchedAt.IsZero() {
		issue.FetchedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (
			id, project_id, source_type, external_key, external_id,
			title, description, issue_type, status, status_category,
			priority, level, assignee, assignee_email, reporter,
			reporter_email, permalink, culprit, event_count, user_count,
			first_seen_at, last_seen_at, created_remote_at,
			updated_remote_at, resolved_at, labels, components,
			fix_versions, metadata, created_from_link, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, external_key) DO UPDATE SET
			external_id = excluded.external_id,
			title = excluded.title,
			description = excluded.description,
			issue_type = excluded.issue_type,
			status = excluded.status,
			status_category = excluded.status_category,
			priority = excluded.priority,
			level = excluded.level,
			assignee = excluded.assignee,
			assignee_email = excluded.assignee_email,
			reporter = excluded.reporter,
			reporter_email = excluded.reporter_email,
			permalink = excluded.permalink,
			culprit = excluded.culprit,
			event_count = excluded.event_count,
			user_count = excluded.user_count,
			first_seen_at = excluded.first_seen_at,
			last_seen_at = excluded.last_seen_at,
			created_remote_at = excluded.created_remote_at,
			updated_remote_at = excluded.updated_remote_at,
			resolved_at = excluded.resolved_at,
			labels = excluded.labels,
			components = excluded.components,
			fix_versions = excluded.fix_versions,
			metadata = excluded.metadata,
			fetched_at = excluded.fetched_at`,
		issue.ID, issue.ProjectID, string(issue.SourceType),
		issue.ExternalKey, issue.ExternalID, issue.Title, issue.Description,
		issue.IssueType, issue.Status, issue.StatusCategory, issue.Priority,
		issue.Level, issue.Assignee, issue.AssigneeEmail, issue.Reporter,
		issue.ReporterEmail, issue.Permalink, issue.Culprit,
		issue.EventCount, issue.UserCount,
		nullTime(issue.FirstSeenAt), nullTime(issue.LastSeenAt),
		nullTime(issue.CreatedRemoteAt), nullTime(issue.UpdatedRemoteAt),
		nullTime(issue.ResolvedAt),
		marshalJSON(issue.Labels, "[]"), marshalJSON(issue.Components, "[]"),
		marshalJSON(issue.FixVersions, "[]"), marshalJSON(issue.Metadata, "{}"),
		boolToInt(issue.CreatedFromLink), issue.FetchedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("upserting issue %s: %w", issue.ExternalKey, err)
	}

	var storedID string
	err = s.db.GetContext(ctx, &storedID,
		"SELECT id FROM issues WHERE project_id = ? AND external_key = ?",
		issue.ProjectID, issue.ExternalKey,
	)
	if err != nil {
		return false, fmt.Errorf("reading back issue %s: %w", issue.ExternalKey, err)
	}
	created := storedID == issue.ID
	issue.ID = storedID
	return created, nil
}

// GetIssue retrieves an issue by local id.
func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM issues WHERE id = ?", id)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting issue %s: %w", id, err)
	}
	return issue, nil
}

// FindIssueByExternalKey locates an issue of a given source type by its
// external key, searching across all projects. Used to resolve parsed
// cross-system references.
func (s *SQLiteStore) FindIssueByExternalKey(
	ctx context.Context,
	sourceType model.SourceType,
	externalKey string,
) (*model.Issue, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM issues WHERE source_type = ? AND external_key = ? LIMIT 1",
		string(sourceType), externalKey,
	)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issue %s/%s: %w", sourceType, externalKey, ErrNotFound)
		}
		return nil, fmt.Errorf("finding issue %s/%s: %w", sourceType, externalKey, err)
	}
	return issue, nil
}

// IssueFilter narrows ListIssues results.
type IssueFilter struct {
	ProjectID      string
	OrganizationID string
	SourceType     *model.SourceType
	StatusCategory string
	Limit          int
	Offset         int

	// OrderByLastSeen sorts most recently seen first (error-tracker
	// scan order); default is updated_remote_at descending.
	OrderByLastSeen bool
}

// ListIssues retrieves issues matching the filter.
func (s *SQLiteStore) ListIssues(ctx context.Context, f IssueFilter) ([]model.Issue, error) {
	query := "SELECT issues.* FROM issues"
	var conditions []string
	var args []interface{}

	if f.OrganizationID != "" {
		query += " JOIN projects ON projects.id = issues.project_id"
		conditions = append(conditions, "projects.organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if f.ProjectID != "" {
		conditions = append(conditions, "issues.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.SourceType != nil {
		conditions = append(conditions, "issues.source_type = ?")
		args = append(args, string(*f.SourceType))
	}
	if f.StatusCategory != "" {
		conditions = append(conditions, "issues.status_category = ?")
		args = append(args, f.StatusCategory)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if f.OrderByLastSeen {
		query += " ORDER BY issues.last_seen_at DESC"
	} else {
		query += " ORDER BY issues.updated_remote_at DESC"
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// SearchIssuesByKeywords retrieves issues of a source type whose title
// contains any of the given keywords, capped at limit. This bounds the
// fuzzy matcher's candidate pool so it never scans the full table.
func (s *SQLiteStore) SearchIssuesByKeywords(
	ctx context.Context,
	sourceType model.SourceType,
	keywords []string,
	limit int,
) ([]model.Issue, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(keywords))
	args := []interface{}{string(sourceType)}
	for _, kw := range keywords {
		conditions = append(conditions, "title LIKE ?")
		args = append(args, "%"+kw+"%")
	}

	query := fmt.Sprintf(
		"SELECT * FROM issues WHERE source_type = ? AND (%s) LIMIT %d",
		strings.Join(conditions, " OR "), limit,
	)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues by keywords: %w", err)
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// CountIssueEvents returns the number of stored events for an issue.
func (s *SQLiteStore) CountIssueEvents(ctx context.Context, issueID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM issue_events WHERE issue_id = ?", issueID,
	)
	if err != nil {
		return 0, fmt.Errorf("counting events for issue %s: %w", issueID, err)
	}
	return count, nil
}

// UpsertIssueEvent inserts or updates an event by its natural key
// (issue_id, external_id).
func (s *SQLiteStore) UpsertIssueEvent(ctx context.Context, ev *model.IssueEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issue_events (
			id, issue_id, external_id, message, platform, environment,
			release_version, user_id, user_email, user_ip, tags, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_id, external_id) DO UPDATE SET
			message = excluded.message,
			platform = excluded.platform,
			environment = excluded.environment,
			release_version = excluded.release_version,
			user_id = excluded.user_id,
			user_email = excluded.user_email,
			user_ip = excluded.user_ip,
			tags = excluded.tags,
			occurred_at = excluded.occurred_at`,
		ev.ID, ev.IssueID, ev.ExternalID, ev.Message, ev.Platform,
		ev.Environment, ev.Release, ev.UserID, ev.UserEmail, ev.UserIP,
		marshalJSON(ev.Tags, "{}"), ev.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting event %s: %w", ev.ExternalID, err)
	}
	return nil
}

func scanIssue(row rowScanner) (*model.Issue, error) {
	var (
		issue       model.Issue
		sourceType  string
		firstSeen   sql.NullTime
		lastSeen    sql.NullTime
		createdRem  sql.NullTime
		updatedRem  sql.NullTime
		resolvedAt  sql.NullTime
		labels      string
		components  string
		fixVersions string
		metadata    string
		createdFrom int
		fetchedAt   time.Time
	)

	err := row.Scan(
		&issue.ID, &issue.ProjectID, &sourceType, &issue.ExternalKey,
		&issue.ExternalID, &issue.Title, &issue.Description,
		&issue.IssueType, &issue.Status, &issue.StatusCategory,
		&issue.Priority, &issue.Level, &issue.Assignee,
		&issue.AssigneeEmail, &issue.Reporter, &issue.ReporterEmail,
		&issue.Permalink, &issue.Culprit, &issue.EventCount,
		&issue.UserCount, &firstSeen, &lastSeen, &createdRem,
		&updatedRem, &resolvedAt, &labels, &components, &fixVersions,
		&metadata, &createdFrom, &fetchedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.SourceType = model.SourceType(sourceType)
	issue.FirstSeenAt = timePtr(firstSeen)
	issue.LastSeenAt = timePtr(lastSeen)
	issue.CreatedRemoteAt = timePtr(createdRem)
	issue.UpdatedRemoteAt = timePtr(updatedRem)
	issue.ResolvedAt = timePtr(resolvedAt)
	issue.Labels = unmarshalStringSlice(labels)
	issue.Components = unmarshalStringSlice(components)
	issue.FixVersions = unmarshalStringSlice(fixVersions)
	issue.Metadata = unmarshalStringMap(metadata)
	issue.CreatedFromLink = createdFrom != 0
	issue.FetchedAt = fetchedAt
	return &issue, nil
}

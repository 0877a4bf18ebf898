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

// UpsertProject inserts or updates a project by its natural key
// (organization_id, external_key). The local id of an existing row is
// preserved; every remote-sourced field is overwritten. Returns true
// when a new row was created.
func (s *SQLiteStore) UpsertProject(ctx context.Context, p *model.Project) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	// Sync toggles and rollups are local state, not remote fields, so
	// the conflict branch leaves them alone.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, organization_id, external_key, external_id, name,
			description, project_type, lead_name, metadata,
			sync_enabled, sync_issues, max_issues_to_sync,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, external_key) DO UPDATE SET
			external_id = excluded.external_id,
			name = excluded.name,
			description = excluded.description,
			project_type = excluded.project_type,
			lead_name = excluded.lead_name,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		p.ID, p.OrganizationID, p.ExternalKey, p.ExternalID, p.Name,
		p.Description, p.ProjectType, p.LeadName, marshalJSON(p.Metadata, "{}"),
		boolToInt(p.SyncEnabled), boolToInt(p.SyncIssues), p.MaxIssuesToSync,
		now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting project %s: %w", p.ExternalKey, err)
	}

	// Detect creation by whether our candidate id won the conflict.
	var storedID string
	err = s.db.GetContext(ctx, &storedID,
		"SELECT id FROM projects WHERE organization_id = ? AND external_key = ?",
		p.OrganizationID, p.ExternalKey,
	)
	if err != nil {
		return false, fmt.Errorf("reading back project %s: %w", p.ExternalKey, err)
	}
	created := storedID == p.ID
	p.ID = storedID
	return created, nil
}

// GetProject retrieves a project by local id.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectByKey retrieves a project by its natural key within an
// organization.
func (s *SQLiteStore) GetProjectByKey(ctx context.Context, orgID, externalKey string) (*model.Project, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM projects WHERE organization_id = ? AND external_key = ?",
		orgID, externalKey,
	)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s/%s: %w", orgID, externalKey, ErrNotFound)
		}
		return nil, fmt.Errorf("getting project %s/%s: %w", orgID, externalKey, err)
	}
	return p, nil
}

// FindProjectByKey searches all organizations for a project with the
// given external key. Used by the correlation engine to locate the
// organization that owns a referenced ticket's project.
func (s *SQLiteStore) FindProjectByKey(ctx context.Context, externalKey string) (*model.Project, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM projects WHERE external_key = ? ORDER BY created_at LIMIT 1",
		externalKey,
	)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", externalKey, ErrNotFound)
		}
		return nil, fmt.Errorf("finding project %s: %w", externalKey, err)
	}
	return p, nil
}

// ListProjects retrieves all projects of an organization ordered by
// external key.
func (s *SQLiteStore) ListProjects(ctx context.Context, orgID string) ([]model.Project, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM projects WHERE organization_id = ? ORDER BY external_key",
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying projects for organization %s: %w", orgID, err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProjectSyncSettings writes the operator-controlled sync
// toggles and issue cap for a project.
func (s *SQLiteStore) UpdateProjectSyncSettings(ctx context.Context, projectID string, syncEnabled, syncIssues bool, maxIssues int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET sync_enabled = ?, sync_issues = ?, max_issues_to_sync = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(syncEnabled), boolToInt(syncIssues), maxIssues,
		time.Now().UTC(), projectID,
	)
	if err != nil {
		return fmt.Errorf("updating sync settings for project %s: %w", projectID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}

// RecomputeProjectRollups recounts a project's issue totals by status
// category and stamps last_issue_sync_at.
func (s *SQLiteStore) RecomputeProjectRollups(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			total_issues = (SELECT COUNT(*) FROM issues WHERE project_id = ?),
			open_issues = (SELECT COUNT(*) FROM issues WHERE project_id = ? AND status_category = 'new'),
			in_progress_issues = (SELECT COUNT(*) FROM issues WHERE project_id = ? AND status_category = 'indeterminate'),
			done_issues = (SELECT COUNT(*) FROM issues WHERE project_id = ? AND status_category = 'done'),
			last_issue_sync_at = ?,
			updated_at = ?
		WHERE id = ?`,
		projectID, projectID, projectID, projectID,
		time.Now().UTC(), time.Now().UTC(), projectID,
	)
	if err != nil {
		return fmt.Errorf("recomputing rollups for project %s: %w", projectID, err)
	}
	return nil
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p           model.Project
		metadata    string
		syncEnabled int
		syncIssues  int
		lastSync    sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(
		&p.ID, &p.OrganizationID, &p.ExternalKey, &p.ExternalID,
		&p.Name, &p.Description, &p.ProjectType, &p.LeadName, &metadata,
		&syncEnabled, &syncIssues, &p.MaxIssuesToSync,
		&p.TotalIssues, &p.OpenIssues, &p.InProgressIssues, &p.DoneIssues,
		&lastSync, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Metadata = unmarshalStringMap(metadata)
	p.SyncEnabled = syncEnabled != 0
	p.SyncIssues = syncIssues != 0
	p.LastIssueSyncAt = timePtr(lastSync)
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return &p, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/srehub/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertOrganization inserts or updates an organization. A missing ID
// gets a new UUID.
func (s *SQLiteStore) UpsertOrganization(ctx context.Context, org *model.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.ConnectionStatus == "" {
		org.ConnectionStatus = model.ConnectionUnknown
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (
			id, source_type, name, slug, base_url, username, api_token,
			settings, sync_enabled, sync_interval_sec, last_sync_at,
			connection_status, connection_error, last_connection_test,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_type = excluded.source_type,
			name = excluded.name,
			slug = excluded.slug,
			base_url = excluded.base_url,
			username = excluded.username,
			api_token = excluded.api_token,
			settings = excluded.settings,
			sync_enabled = excluded.sync_enabled,
			sync_interval_sec = excluded.sync_interval_sec,
			last_sync_at = excluded.last_sync_at,
			connection_status = excluded.connection_status,
			connection_error = excluded.connection_error,
			last_connection_test = excluded.last_connection_test,
			updated_at = excluded.updated_at`,
		org.ID, string(org.SourceType), org.Name, org.Slug, org.BaseURL,
		org.Username, org.APIToken, marshalJSON(org.Settings, "{}"),
		boolToInt(org.SyncEnabled), int(org.SyncInterval.Seconds()),
		nullTime(org.LastSyncAt), org.ConnectionStatus, org.ConnectionError,
		nullTime(org.LastConnectionTest), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting organization %s: %w", org.Name, err)
	}
	return nil
}

// GetOrganization retrieves a single organization by ID.
func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM organizations WHERE id = ?", id)
	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting organization %s: %w", id, err)
	}
	return org, nil
}

// OrganizationFilter narrows ListOrganizations results.
type OrganizationFilter struct {
	SourceType  *model.SourceType
	SyncEnabled *bool
	BaseURLLike string
}

// ListOrganizations retrieves organizations matching the filter,
// ordered by name.
func (s *SQLiteStore) ListOrganizations(ctx context.Context, f OrganizationFilter) ([]model.Organization, error) {
	query := "SELECT * FROM organizations"
	var conditions []string
	var args []interface{}

	if f.SourceType != nil {
		conditions = append(conditions, "source_type = ?")
		args = append(args, string(*f.SourceType))
	}
	if f.SyncEnabled != nil {
		conditions = append(conditions, "sync_enabled = ?")
		args = append(args, boolToInt(*f.SyncEnabled))
	}
	if f.BaseURLLike != "" {
		conditions = append(conditions, "base_url LIKE ?")
		args = append(args, "%"+f.BaseURLLike+"%")
	}

	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying organizations: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

// UpdateOrganizationSyncState records the outcome of a sync run on the
// organization row. lastSync is only written when non-nil, so a failed
// run can update connection state without touching last_sync_at.
func (s *SQLiteStore) UpdateOrganizationSyncState(
	ctx context.Context,
	id string,
	lastSync *time.Time,
	connectionStatus string,
	connectionError string,
) error {
	var err error
	if lastSync != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE organizations
			SET last_sync_at = ?, connection_status = ?, connection_error = ?,
			    last_connection_test = ?, updated_at = ?
			WHERE id = ?`,
			lastSync.UTC(), connectionStatus, connectionError,
			time.Now().UTC(), time.Now().UTC(), id,
		)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE organizations
			SET connection_status = ?, connection_error = ?,
			    last_connection_test = ?, updated_at = ?
			WHERE id = ?`,
			connectionStatus, connectionError,
			time.Now().UTC(), time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("updating sync state for organization %s: %w", id, err)
	}
	return nil
}

// DeleteOrganization removes an organization and, via cascades, all of
// its projects, issues, and sync attempts.
func (s *SQLiteStore) DeleteOrganization(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM organizations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting organization %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both sqlx.Row and sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*model.Organization, error) {
	var (
		org             model.Organization
		sourceType      string
		settings        string
		syncEnabled     int
		intervalSec     int
		lastSyncAt      sql.NullTime
		lastConnTest    sql.NullTime
		createdAt       time.Time
		updatedAt       time.Time
	)

	err := row.Scan(
		&org.ID, &sourceType, &org.Name, &org.Slug, &org.BaseURL,
		&org.Username, &org.APIToken, &settings, &syncEnabled,
		&intervalSec, &lastSyncAt, &org.ConnectionStatus,
		&org.ConnectionError, &lastConnTest, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.SourceType = model.SourceType(sourceType)
	org.Settings = unmarshalStringMap(settings)
	org.SyncEnabled = syncEnabled != 0
	org.SyncInterval = time.Duration(intervalSec) * time.Second
	org.LastSyncAt = timePtr(lastSyncAt)
	org.LastConnectionTest = timePtr(lastConnTest)
	org.CreatedAt = createdAt
	org.UpdatedAt = updatedAt
	return &org, nil
}

var _ rowScanner = (*sqlx.Row)(nil)
var _ rowScanner = (*sqlx.Rows)(nil)

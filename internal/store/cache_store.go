package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is one materialized dashboard payload.
type CacheEntry struct {
	DashboardType string
	FilterKey     string
	Data          json.RawMessage
	ExpiresAt     time.Time
	GeneratedAt   time.Time

	// Generation is how long the generator ran when this entry was
	// produced.
	Generation time.Duration

	// Hit is true when the entry was served from the cache rather than
	// regenerated.
	Hit bool
}

// GetOrGenerate returns the cached payload for (dashboardType,
// filterKey) when a fresh entry exists. Otherwise it runs generate,
// stores the result with the given TTL, and records how long the
// generation took. Expired entries are overwritten in place.
func (s *SQLiteStore) GetOrGenerate(
	ctx context.Context,
	dashboardType, filterKey string,
	ttl time.Duration,
	generate func(context.Context) (interface{}, error),
) (*CacheEntry, error) {
	now := time.Now().UTC()

	var (
		raw          string
		expiresAt    time.Time
		generatedAt  time.Time
		generationMS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at, generated_at, generation_ms
		FROM dashboard_cache
		WHERE dashboard_type = ? AND filter_key = ?`,
		dashboardType, filterKey,
	).Scan(&raw, &expiresAt, &generatedAt, &generationMS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading dashboard cache: %w", err)
	}
	if err == nil && expiresAt.After(now) {
		return &CacheEntry{
			DashboardType: dashboardType,
			FilterKey:     filterKey,
			Data:          json.RawMessage(raw),
			ExpiresAt:     expiresAt.UTC(),
			GeneratedAt:   generatedAt.UTC(),
			Generation:    time.Duration(generationMS) * time.Millisecond,
			Hit:           true,
		}, nil
	}

	start := time.Now()
	payload, err := generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating %s dashboard: %w", dashboardType, err)
	}
	generation := time.Since(start)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s dashboard: %w", dashboardType, err)
	}

	entry := &CacheEntry{
		DashboardType: dashboardType,
		FilterKey:     filterKey,
		Data:          data,
		ExpiresAt:     now.Add(ttl),
		GeneratedAt:   now,
		Generation:    generation,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dashboard_cache (
			dashboard_type, filter_key, data, expires_at,
			generation_ms, generated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dashboard_type, filter_key) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			generation_ms = excluded.generation_ms,
			generated_at = excluded.generated_at`,
		dashboardType, filterKey, string(data), entry.ExpiresAt,
		generation.Milliseconds(), entry.GeneratedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("writing dashboard cache: %w", err)
	}
	return entry, nil
}

// InvalidateCache removes cached entries for a dashboard type. An
// empty filterKey removes every entry of that type.
func (s *SQLiteStore) InvalidateCache(ctx context.Context, dashboardType, filterKey string) error {
	query := "DELETE FROM dashboard_cache WHERE dashboard_type = ?"
	args := []interface{}{dashboardType}
	if filterKey != "" {
		query += " AND filter_key = ?"
		args = append(args, filterKey)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("invalidating dashboard cache: %w", err)
	}
	return nil
}

// PruneExpiredCache deletes entries whose TTL has elapsed and returns
// how many were removed.
func (s *SQLiteStore) PruneExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM dashboard_cache WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning dashboard cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

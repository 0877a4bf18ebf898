// Package testutil holds shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/srehub/internal/store"
)

// NewStore opens a migrated store on a throwaway database under the
// test's temp dir and closes it when the test finishes.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

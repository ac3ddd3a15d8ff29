package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/litedb/internal/persistence/sqlite"
)

// SQLiteHarness owns a temporary file database for integration-style tests.
type SQLiteHarness struct {
	DB   *sqlite.DB
	Path string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a fresh database file under tb.TempDir. Callers may
// optionally invoke Close, but the helper also registers a cleanup callback
// with tb.
func NewSQLiteHarness(tb testing.TB, opts ...sqlite.Option) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "litedb.db")
	return OpenSQLiteHarness(tb, path, opts...)
}

// OpenSQLiteHarness opens the database at path, which may already exist.
func OpenSQLiteHarness(tb testing.TB, path string, opts ...sqlite.Option) *SQLiteHarness {
	tb.Helper()

	db, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path), opts...)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}

	harness := &SQLiteHarness{
		DB:   db,
		Path: path,
		cleanup: func() {
			_ = db.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

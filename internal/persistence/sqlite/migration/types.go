package migration

import (
	"context"
	"database/sql"
	"time"
)

// UpdateScript is one versioned entry of a manifest.
type UpdateScript struct {
	Version    int      // position in the update sequence
	Name       string   // label recorded in the Version Marker once applied
	Statements []string // SQL statements executed in order
	Source     string   // where the script came from (file path, manifest entry)
	Checksum   string   // hex BLAKE2b-256 of the statements
}

// ApplicationRecord describes one script applied during a run.
type ApplicationRecord struct {
	Sequence int           // 1-based position within the run
	Version  int           // script version
	Name     string        // script name
	Elapsed  time.Duration // wall time of the script's statements
	Checksum string
}

// ExecutionReport is the outcome of one engine run. Records for scripts that
// completed stay valid even when Err is set: their version advance is
// already durable.
type ExecutionReport struct {
	RunID      string
	Entries    []ApplicationRecord
	Err        error
	Message    string // "Success", or the failure message
	Elapsed    time.Duration
	BackupPath string
	From       int64 // marker version before the run
	To         int64 // marker version after the run
}

// Failed reports whether the run stopped on an error.
func (r *ExecutionReport) Failed() bool {
	return r.Err != nil
}

// Executor runs SQL against the database.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Backuper snapshots the database under a tag and returns the snapshot path.
type Backuper interface {
	Backup(ctx context.Context, tag string) (string, error)
}

// Manifest supplies update scripts. Consume is called after a fully
// successful run so that a later run sees nothing to apply.
type Manifest interface {
	Load() ([]UpdateScript, error)
	Consume() error
}

// Static is an in-memory Manifest. Consume is a no-op.
type Static []UpdateScript

// Load returns a copy of the scripts.
func (s Static) Load() ([]UpdateScript, error) {
	return append([]UpdateScript(nil), s...), nil
}

// Consume does nothing.
func (s Static) Consume() error { return nil }

package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/litedb/internal/persistence"
	"github.com/example/litedb/internal/persistence/configstore"
)

// State is the update state of a database file.
type State int

const (
	StateMissing       State = iota // file doesn't exist
	StateUninitialized              // no Config table or no Version Marker
	StateBehind                     // scripts pending
	StateReady                      // marker at or past the last script
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateBehind:
		return "behind"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the result of Inspect.
type Status struct {
	State   State
	Current VersionMarker
	Pending []UpdateScript
}

const configTableExistsSQL = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $name`

// Inspect reports the update state of the database behind exec without
// writing to it. StateMissing is never returned; callers that open files
// check for existence first.
func Inspect(ctx context.Context, exec Executor, manifest Manifest) (Status, error) {
	scripts, err := manifest.Load()
	if err != nil {
		return Status{}, err
	}

	exists, err := configTableExists(ctx, exec)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMarker, err)
	}
	if !exists {
		return Status{State: StateUninitialized, Pending: ComputePlan(scripts, 0)}, nil
	}

	current, err := markerStore{store: configstore.New(exec)}.load(ctx)
	if errors.Is(err, persistence.ErrNotFound) {
		return Status{State: StateUninitialized, Pending: ComputePlan(scripts, 0)}, nil
	}
	if err != nil {
		return Status{}, err
	}

	st := Status{Current: current, Pending: ComputePlan(scripts, current.Number), State: StateReady}
	if len(st.Pending) > 0 {
		st.State = StateBehind
	}
	return st, nil
}

func configTableExists(ctx context.Context, exec Executor) (bool, error) {
	rows, err := exec.Query(ctx, configTableExistsSQL, sql.Named("name", configstore.Table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return false, err
		}
	}
	return count > 0, rows.Err()
}

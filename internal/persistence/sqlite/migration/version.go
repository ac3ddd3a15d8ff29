package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/litedb/internal/persistence"
	"github.com/example/litedb/internal/persistence/configstore"
)

// Version Marker location in the Config table.
const (
	MarkerKey   = "System"
	MarkerName  = "Version"
	markerLabel = "None"
	markerDescr = "Database version. Used to update database versions using the update manifest"
)

// VersionDetail is stored as JSON alongside the marker.
type VersionDetail struct {
	RunID     string    `json:"run_id,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// VersionMarker is the persisted record of the last applied script.
type VersionMarker struct {
	Number int64         `sql:"cfg_num"`
	Value  *string       `sql:"cfg_value"`
	Detail VersionDetail `sql:"cfg_data,json"`
}

// Label returns the marker's label, or "" when unset.
func (m VersionMarker) Label() string {
	if m.Value == nil {
		return ""
	}
	return *m.Value
}

// markerStore reads and writes the Version Marker through the Config table.
type markerStore struct {
	store *configstore.Store
}

// ensure creates the Config table and the marker row when missing and
// returns the stored marker.
func (ms markerStore) ensure(ctx context.Context) (VersionMarker, error) {
	if err := ms.store.EnsureSchema(ctx); err != nil {
		return VersionMarker{}, fmt.Errorf("%w: %w", ErrMarker, err)
	}

	m, err := ms.load(ctx)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return VersionMarker{}, err
	}

	label, zero, descr := markerLabel, int64(0), markerDescr
	if _, err := ms.store.Insert(ctx, configstore.Item{
		Key:    MarkerKey,
		Name:   MarkerName,
		Value:  &label,
		Number: &zero,
		Descr:  &descr,
	}); err != nil {
		return VersionMarker{}, fmt.Errorf("%w: create: %w", ErrMarker, err)
	}
	return VersionMarker{Number: 0, Value: &label}, nil
}

// load reads the marker straight from the table. A malformed detail blob
// leaves Detail empty without failing the read.
func (ms markerStore) load(ctx context.Context) (VersionMarker, error) {
	m, err := configstore.LookupAs[VersionMarker](ctx, ms.store, MarkerKey, MarkerName)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return VersionMarker{}, err
		}
		return VersionMarker{}, fmt.Errorf("%w: %w", ErrMarker, err)
	}
	return m, nil
}

// save persists m as the new marker value.
func (ms markerStore) save(ctx context.Context, m VersionMarker) error {
	data, err := json.Marshal(m.Detail)
	if err != nil {
		return fmt.Errorf("%w: encode detail: %w", ErrMarker, err)
	}
	text := string(data)
	num := m.Number
	if err := ms.store.Update(ctx, configstore.Item{
		Key:    MarkerKey,
		Name:   MarkerName,
		Value:  m.Value,
		Number: &num,
		Data:   &text,
	}); err != nil {
		return fmt.Errorf("%w: save v%d: %w", ErrMarker, m.Number, err)
	}
	return nil
}

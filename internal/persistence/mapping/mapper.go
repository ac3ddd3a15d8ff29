package mapping

import (
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Mapper fills records from rows using the bindings of a Registry.
type Mapper struct {
	registry *Registry
	logger   *slog.Logger
}

// NewMapper returns a Mapper. A nil registry gets a private one; a nil
// logger falls back to slog.Default.
func NewMapper(registry *Registry, logger *slog.Logger) *Mapper {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{registry: registry, logger: logger}
}

var defaultMapper = sync.OnceValue(func() *Mapper {
	return NewMapper(NewRegistry(), nil)
})

// Default returns the process-wide Mapper.
func Default() *Mapper {
	return defaultMapper()
}

// Registry returns the binding registry used by m.
func (m *Mapper) Registry() *Registry {
	return m.registry
}

// Fill builds a new T from row.
func Fill[T any](m *Mapper, row Row) (T, error) {
	var zero T
	v, err := m.FillValue(reflect.TypeOf(zero), row)
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// FillValue builds a new value of rt from row. Columns missing from the row
// are skipped; a coercion failure aborts the fill and returns the error.
func (m *Mapper) FillValue(rt reflect.Type, row Row) (reflect.Value, error) {
	bindings, err := m.registry.For(rt)
	if err != nil {
		return reflect.Value{}, err
	}

	isPtr := rt.Kind() == reflect.Ptr
	st := rt
	if isPtr {
		st = rt.Elem()
	}
	out := reflect.New(st)
	rec := out.Elem()

	for i := range bindings {
		b := &bindings[i]
		var (
			raw any
			ok  bool
		)
		if b.ByOrdinal() {
			raw, ok = row.At(b.Ordinal)
		} else {
			raw, ok = row.Named(b.Column)
		}
		if !ok {
			continue
		}

		field := fieldByIndex(rec, b.index)
		if err := b.ToField(raw, field); err != nil {
			if isDegraded(err) {
				m.logger.Debug("column left at zero value",
					slog.String("type", st.String()),
					slog.String("field", b.Field),
					slog.String("column", b.label()),
					slog.String("kind", b.Kind.String()),
					slog.String("error", err.Error()))
				continue
			}
			return reflect.Value{}, err
		}
	}

	if isPtr {
		return out, nil
	}
	return rec, nil
}

// ScanAll fills one T per row and leaves rows closed.
func ScanAll[T any](m *Mapper, rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	reader, err := NewRowReader(rows)
	if err != nil {
		return nil, fmt.Errorf("mapping: read columns: %w", err)
	}
	var out []T
	for reader.Next() {
		item, err := Fill[T](m, reader.Row())
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("mapping: iterate rows: %w", err)
	}
	return out, nil
}

// Args converts the bound fields of v into named parameters, one per
// distinct column, for INSERT and UPDATE statements.
func (m *Mapper) Args(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("mapping: args from nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	bindings, err := m.registry.For(rv.Type())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(bindings))
	args := make([]any, 0, len(bindings))
	for i := range bindings {
		b := &bindings[i]
		if seen[b.Column] {
			continue
		}
		seen[b.Column] = true
		val, err := b.ToStorage(rv.FieldByIndex(b.index))
		if err != nil {
			return nil, err
		}
		args = append(args, sql.Named(b.Column, val))
	}
	return args, nil
}

// fieldByIndex walks index, allocating nil embedded struct pointers.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

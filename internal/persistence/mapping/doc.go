// Package mapping turns SQLite result rows into typed Go records and back.
//
// Record types declare their columns with `sql` struct tags:
//
//	type Item struct {
//		ID    int64          `sql:"cfg_id"`
//		Key   string         `sql:"cfg_key"`
//		Value *string        `sql:"cfg_value"`
//		Data  map[string]any `sql:"cfg_data"`
//		Meta  Detail         `sql:"cfg_meta,json"`
//		First string         `sql:"name,ord=0"`
//	}
//
// A tag lists one or more bindings separated by ";". Each binding names a
// column and may carry the options "ord=<n>" (read the column by position
// instead of by name) and "json" (the column holds JSON text).
//
// On first use of a type the Registry scans its tags once and caches the
// resulting bindings; each binding carries a coercion Kind picked from the
// field type. Every later read of that type reuses the cached bindings, so
// reflection over struct tags never happens on the hot path.
//
// Coercion rules per Kind:
//
//   - KindString: NULL and "" both become an absent value.
//   - KindPassthrough: numbers, bools and time.Time are reinterpreted
//     directly; an unreadable value fails the whole row with a CoercionError.
//   - KindEnum: types implementing Enum are matched by name, case-sensitively.
//   - KindJSONCollection, KindJSONExplicit: JSON text is decoded into the
//     field; malformed JSON leaves the field at its zero value.
//   - KindBestEffort: sql.Scanner, then a plain conversion, then JSON; if
//     all fail the field stays at its zero value.
package mapping

package mapping

import (
	"database/sql"
	"strings"
)

// Row is one result row, addressable by position and by column name.
// The second return value is false when the column does not exist.
type Row interface {
	At(ordinal int) (any, bool)
	Named(column string) (any, bool)
}

// Values is an in-memory Row.
type Values struct {
	values []any
	index  map[string]int
}

// NewValues builds a Row from parallel column and value slices. When a
// column name repeats, the first occurrence wins for name lookups.
func NewValues(columns []string, values []any) *Values {
	v := &Values{values: values, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		key := normalizeColumn(c)
		if _, dup := v.index[key]; !dup {
			v.index[key] = i
		}
	}
	return v
}

// At returns the value at ordinal.
func (v *Values) At(ordinal int) (any, bool) {
	if ordinal < 0 || ordinal >= len(v.values) {
		return nil, false
	}
	return v.values[ordinal], true
}

// Named returns the value of column, matched case-insensitively.
func (v *Values) Named(column string) (any, bool) {
	i, ok := v.index[normalizeColumn(column)]
	if !ok {
		return nil, false
	}
	return v.values[i], true
}

// RowReader adapts *sql.Rows to Row, one row at a time.
type RowReader struct {
	rows *sql.Rows
	cur  *Values
	cols []string
	err  error
}

// NewRowReader wraps rows. The caller still owns rows and must close them.
func NewRowReader(rows *sql.Rows) (*RowReader, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return &RowReader{rows: rows, cols: cols}, nil
}

// Next advances to the next row and reports whether one was read.
func (r *RowReader) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	raw := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err
		return false
	}
	// Drivers may reuse byte buffers between rows.
	for i, v := range raw {
		if b, ok := v.([]byte); ok {
			raw[i] = append([]byte(nil), b...)
		}
	}
	r.cur = NewValues(r.cols, raw)
	return true
}

// Row returns the current row.
func (r *RowReader) Row() Row {
	return r.cur
}

// Err returns the first scan or iteration error.
func (r *RowReader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// normalizeColumn lowercases an ASCII column name and strips SQL quoting.
func normalizeColumn(s string) string {
	s = strings.TrimSpace(s)
	if n := len(s); n >= 2 {
		switch {
		case s[0] == '"' && s[n-1] == '"',
			s[0] == '`' && s[n-1] == '`',
			s[0] == '[' && s[n-1] == ']':
			s = s[1 : n-1]
		}
	}
	return strings.ToLower(s)
}

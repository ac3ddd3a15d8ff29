package mapping

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrCoercion indicates that a raw column value could not be read into a field.
	ErrCoercion = errors.New("mapping: value coercion failed")

	// ErrNotStruct indicates that bindings were requested for a non-struct type.
	ErrNotStruct = errors.New("mapping: record type must be a struct")

	// ErrInvalidTag indicates a malformed `sql` struct tag.
	ErrInvalidTag = errors.New("mapping: invalid sql tag")
)

// CoercionError describes a column value that a passthrough or enum binding
// could not interpret. It aborts the enclosing row fill.
type CoercionError struct {
	Field  string // Go field name
	Column string // column name, or "#<ordinal>"
	Kind   Kind   // coercion kind of the binding
	Value  any    // raw value as received from the driver
	Err    error  // underlying parse error
}

// Error implements the error interface
func (e *CoercionError) Error() string {
	return fmt.Sprintf("mapping: cannot coerce column %s value %v (%T) into field %s (%s): %v",
		e.Column, e.Value, e.Value, e.Field, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *CoercionError) Unwrap() error {
	return e.Err
}

// Is reports ErrCoercion as a match so callers can test with errors.Is.
func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}

// TagError reports a malformed `sql` tag on a record field.
type TagError struct {
	Type  reflect.Type
	Field string
	Tag   string
	Err   error
}

// Error implements the error interface
func (e *TagError) Error() string {
	return fmt.Sprintf("mapping: %s.%s: tag %q: %v", e.Type, e.Field, e.Tag, e.Err)
}

// Unwrap returns the underlying error
func (e *TagError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidTag as a match.
func (e *TagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// degradedError marks a JSON decode failure that leaves the field at its
// zero value. The Mapper absorbs it; it never reaches callers.
type degradedError struct {
	err error
}

func (e *degradedError) Error() string { return "mapping: degraded to zero value: " + e.err.Error() }

func (e *degradedError) Unwrap() error { return e.err }

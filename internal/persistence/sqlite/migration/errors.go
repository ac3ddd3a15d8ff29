package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrExecution indicates that a statement failed while applying a script.
	ErrExecution = errors.New("migration: statement execution failed")

	// ErrBackup indicates that the pre-update snapshot could not be taken.
	ErrBackup = errors.New("migration: backup failed")

	// ErrManifest indicates that the manifest could not be read or parsed.
	ErrManifest = errors.New("migration: invalid manifest")

	// ErrMarker indicates that the Version Marker could not be read or written.
	ErrMarker = errors.New("migration: version marker unavailable")
)

// MigrationError wraps a failure with the script it concerns.
type MigrationError struct {
	Version   int    // script version, 0 when not tied to a script
	Source    string // script source
	Operation string // what was being done (parse, load, record)
	Err       error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("migration v%d (%s): %s: %v", e.Version, e.Source, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration (%s): %s: %v", e.Source, e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(version int, source, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, Source: source, Operation: operation, Err: err}
}

// FileSystemError wraps file system errors met while loading manifests or
// writing the update log.
type FileSystemError struct {
	Path      string
	Operation string
	Err       error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{Path: path, Operation: operation, Err: err}
}

// DatabaseError reports a statement that failed while applying a script.
// It matches ErrExecution.
type DatabaseError struct {
	Version   int    // script version
	Statement int    // 1-based statement index within the script
	Query     string // failing SQL text
	Err       error  // driver error
}

// Error returns the driver message prefixed with the failing position.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("v%d statement %d: %v", e.Version, e.Statement, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is reports ErrExecution as a match.
func (e *DatabaseError) Is(target error) bool {
	return target == ErrExecution
}

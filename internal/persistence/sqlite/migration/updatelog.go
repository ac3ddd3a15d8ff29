package migration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// UpdateLog is the human-readable audit trail of applied scripts. Each line
// is appended and synced on its own so the file survives a crash mid-run.
type UpdateLog struct {
	path string
	mu   sync.Mutex
}

// NewUpdateLog returns a log appending to path. The file is created on the
// first write.
func NewUpdateLog(path string) *UpdateLog {
	return &UpdateLog{path: path}
}

// Path returns the log file path.
func (l *UpdateLog) Path() string {
	return l.path
}

// Write appends p to the log file.
func (l *UpdateLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, NewFileSystemError(dir, "create directory", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, NewFileSystemError(l.path, "open", err)
	}
	n, err := f.Write(p)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, NewFileSystemError(l.path, "append", err)
	}
	return n, nil
}

// appliedLine formats the progress line for one applied script.
func appliedLine(rec ApplicationRecord) string {
	return fmt.Sprintf("Update: v%d - %s (%.3fs)", rec.Version, rec.Name, rec.Elapsed.Seconds())
}

// faultLine formats the line written when a run stops. version is the last
// version successfully reached.
func faultLine(version int64, message string) string {
	return fmt.Sprintf("Error: v%d - %s", version, strings.ReplaceAll(message, "\n", " "))
}

// writeLine appends line to w.
func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

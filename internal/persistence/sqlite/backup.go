package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrBackupUnsupported is returned when the database has no file to snapshot.
var ErrBackupUnsupported = errors.New("sqlite: backup requires a file database")

// BackupPath returns the snapshot file name for tag: "{db}.{tag}.bak", or
// "{db}.bak" for an empty tag.
func BackupPath(dbPath, tag string) string {
	if tag == "" {
		return dbPath + ".bak"
	}
	return dbPath + "." + tag + ".bak"
}

// Backup writes a consistent snapshot of the database next to it with
// VACUUM INTO and returns the snapshot path. An existing snapshot with the
// same tag is replaced. Afterwards older tagged snapshots beyond
// Config.BackupKeep are removed.
func (d *DB) Backup(ctx context.Context, tag string) (string, error) {
	if d.config.IsMemory() {
		return "", ErrBackupUnsupported
	}

	target := BackupPath(d.config.Path, tag)
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove previous backup %s: %w", target, err)
	}

	query := "VACUUM INTO '" + strings.ReplaceAll(target, "'", "''") + "'"
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("backup to %s: %w", target, d.errs.MapError(err))
	}
	d.logger.Info("database backed up",
		slog.String("path", target),
		slog.String("tag", tag))

	if tag != "" && d.config.BackupKeep > 0 {
		if err := d.rotateBackups(target); err != nil {
			d.logger.Warn("backup rotation failed", slog.String("error", err.Error()))
		}
	}
	return target, nil
}

// Backups lists the tagged snapshots of the database, newest first.
func (d *DB) Backups() ([]string, error) {
	if d.config.IsMemory() {
		return nil, nil
	}
	entries, err := d.taggedBackups()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

type backupFile struct {
	path string
	info fs.FileInfo
}

func (d *DB) taggedBackups() ([]backupFile, error) {
	dir := filepath.Dir(d.config.Path)
	prefix := filepath.Base(d.config.Path) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list backups in %s: %w", dir, err)
	}
	var out []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".bak") {
			continue
		}
		// "{db}.bak" is the untagged snapshot and is never rotated.
		if len(name) <= len(prefix)+len("bak") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: filepath.Join(dir, name), info: info})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].info.ModTime().After(out[j].info.ModTime())
	})
	return out, nil
}

// rotateBackups removes the oldest tagged snapshots beyond BackupKeep.
// The snapshot just written is always kept.
func (d *DB) rotateBackups(current string) error {
	files, err := d.taggedBackups()
	if err != nil {
		return err
	}
	current = filepath.Clean(current)
	kept := 1
	var errs []error
	for _, f := range files {
		if filepath.Clean(f.path) == current {
			continue
		}
		if kept < d.config.BackupKeep {
			kept++
			continue
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		d.logger.Debug("old backup removed", slog.String("path", f.path))
	}
	return errors.Join(errs...)
}

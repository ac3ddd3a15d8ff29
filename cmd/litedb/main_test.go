package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `updates:
  - version: 1
    name: initial schema
    query: |
      CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE);
  - version: 2
    name: add rooms
    query: |
      CREATE TABLE rooms (id TEXT PRIMARY KEY, capacity INTEGER NOT NULL);
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) (dbPath, manifestPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "data", "app.db")
	manifestPath = filepath.Join(dir, "updates.yaml")
	logPath = filepath.Join(dir, "update.log")

	if err := os.WriteFile(manifestPath, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	for _, key := range []string{"LITEDB_BACKUP_KEEP", "LITEDB_CACHE_TTL", "LITEDB_BUSY_TIMEOUT", "LITEDB_JOURNAL_MODE"} {
		t.Setenv(key, "")
	}
	t.Setenv("LITEDB_PATH", dbPath)
	t.Setenv("LITEDB_MANIFEST", "")
	t.Setenv("LITEDB_UPDATE_LOG", logPath)
	return dbPath, manifestPath, logPath
}

func TestMigrateAppliesManifest(t *testing.T) {
	dbPath, manifestPath, logPath := setupEnv(t)

	out, err := runCLI(t, "status", "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "State: missing") {
		t.Fatalf("expected missing state, got %q", out)
	}

	out, err = runCLI(t, "migrate", "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Current: v0 - None", "Update: v1 - initial schema", "Update: v2 - add rooms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	if _, err := os.Stat(manifestPath); !os.IsNotExist(err) {
		t.Fatalf("manifest should be consumed after a successful run, stat err = %v", err)
	}
	if _, err := os.Stat(dbPath + ".v0.bak"); err != nil {
		t.Fatalf("expected pre-update backup: %v", err)
	}

	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read update log: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(logData)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 update log lines, got %q", logData)
	}

	out, err = runCLI(t, "status", "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "State: ready") || !strings.Contains(out, "Current: v2 - add rooms") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	out, err = runCLI(t, "migrate", "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(out, "Database is up to date: v2 - add rooms") {
		t.Fatalf("unexpected output on rerun:\n%s", out)
	}
}

func TestMigrateFailsOnBrokenScript(t *testing.T) {
	_, _, _ = setupEnv(t)
	dir := t.TempDir()
	scripts := map[string]string{
		"001_create_users.sql": "CREATE TABLE users (id TEXT PRIMARY KEY);",
		"002_broken.sql":       "ALTER TABLE missing ADD COLUMN x TEXT;",
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write script: %v", err)
		}
	}

	out, err := runCLI(t, "migrate", "--manifest", dir)
	if err == nil {
		t.Fatalf("expected migrate to fail:\n%s", out)
	}
	if !strings.Contains(out, "Update: v1 - create users") || !strings.Contains(out, "Error: v1 - ") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = runCLI(t, "status", "--manifest", dir)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "State: behind") || !strings.Contains(out, "Pending: v2 - broken") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
}

func TestBackupCommand(t *testing.T) {
	dbPath, manifestPath, _ := setupEnv(t)
	if _, err := runCLI(t, "migrate", "--manifest", manifestPath); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	out, err := runCLI(t, "backup", "--tag", "nightly")
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if strings.TrimSpace(out) != dbPath+".nightly.bak" {
		t.Fatalf("unexpected backup path %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "0.1.0") {
		t.Fatalf("unexpected version %q", out)
	}
}

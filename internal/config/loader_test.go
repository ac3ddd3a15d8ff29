package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"LITEDB_PATH",
	"LITEDB_MANIFEST",
	"LITEDB_UPDATE_LOG",
	"LITEDB_BACKUP_KEEP",
	"LITEDB_CACHE_TTL",
	"LITEDB_BUSY_TIMEOUT",
	"LITEDB_JOURNAL_MODE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		// Setenv registers the restore; Unsetenv then clears the value.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.DatabasePath != "litedb.db" {
			t.Fatalf("unexpected default database path: %q", cfg.DatabasePath)
		}
		if cfg.ManifestPath != "updates.xml" {
			t.Fatalf("unexpected default manifest: %q", cfg.ManifestPath)
		}
		if cfg.UpdateLogPath != "update.log" {
			t.Fatalf("expected update.log next to the database, got %q", cfg.UpdateLogPath)
		}
		if cfg.BackupKeep != 5 || cfg.CacheTTL != 5*time.Minute || cfg.JournalMode != "WAL" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LITEDB_PATH", "/var/lib/app/data.db")
		t.Setenv("LITEDB_MANIFEST", "/etc/app/updates.yaml")
		t.Setenv("LITEDB_BACKUP_KEEP", "0")
		t.Setenv("LITEDB_CACHE_TTL", "90s")
		t.Setenv("LITEDB_BUSY_TIMEOUT", "2s")
		t.Setenv("LITEDB_JOURNAL_MODE", "delete")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.UpdateLogPath != "/var/lib/app/update.log" {
			t.Fatalf("unexpected update log path: %q", cfg.UpdateLogPath)
		}
		if cfg.BackupKeep != 0 || cfg.CacheTTL != 90*time.Second || cfg.BusyTimeout != 2*time.Second {
			t.Fatalf("unexpected values: %+v", cfg)
		}
		if cfg.JournalMode != "DELETE" {
			t.Fatalf("expected normalised journal mode, got %q", cfg.JournalMode)
		}

		sc := cfg.SQLite()
		if sc.Path != cfg.DatabasePath || sc.BusyTimeout != 2*time.Second || sc.BackupKeep != 0 {
			t.Fatalf("unexpected sqlite config: %+v", sc)
		}
		if err := sc.Validate(); err != nil {
			t.Fatalf("sqlite config should be valid: %v", err)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LITEDB_BACKUP_KEEP", "-1")
		t.Setenv("LITEDB_CACHE_TTL", "soon")
		t.Setenv("LITEDB_JOURNAL_MODE", "fast")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "環境変数の値が不正です: LITEDB_BACKUP_KEEP, LITEDB_CACHE_TTL, LITEDB_JOURNAL_MODE"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("environment overrides the file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "litedb.yaml")
		content := "database: /srv/app.db\nmanifest: updates.yaml\nbackup_keep: 2\ncache_ttl: 1m\njournal_mode: truncate\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("LITEDB_MANIFEST", "override.xml")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile returned error: %v", err)
		}
		if cfg.DatabasePath != "/srv/app.db" || cfg.ManifestPath != "override.xml" {
			t.Fatalf("unexpected paths: %+v", cfg)
		}
		if cfg.BackupKeep != 2 || cfg.CacheTTL != time.Minute || cfg.JournalMode != "TRUNCATE" {
			t.Fatalf("unexpected values: %+v", cfg)
		}
		if cfg.BusyTimeout != 30*time.Second {
			t.Fatalf("unset keys keep defaults, got %v", cfg.BusyTimeout)
		}
	})

	t.Run("rejects invalid file values", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "litedb.yaml")
		if err := os.WriteFile(path, []byte("busy_timeout: -1s\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		_, err := LoadFile(path)
		if err == nil || err.Error() != "設定ファイルの値が不正です: busy_timeout" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
}

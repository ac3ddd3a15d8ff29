package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/litedb/internal/persistence/sqlite"
)

// Config captures the settings of the litedb command.
type Config struct {
	DatabasePath  string
	ManifestPath  string
	UpdateLogPath string
	BackupKeep    int
	CacheTTL      time.Duration
	BusyTimeout   time.Duration
	JournalMode   string
}

// fileConfig is the YAML layout read by LoadFile. Durations are Go
// duration strings.
type fileConfig struct {
	Database    string `yaml:"database"`
	Manifest    string `yaml:"manifest"`
	UpdateLog   string `yaml:"update_log"`
	BackupKeep  *int   `yaml:"backup_keep"`
	CacheTTL    string `yaml:"cache_ttl"`
	BusyTimeout string `yaml:"busy_timeout"`
	JournalMode string `yaml:"journal_mode"`
}

var journalModes = map[string]bool{
	"DELETE": true, "TRUNCATE": true, "PERSIST": true,
	"MEMORY": true, "WAL": true, "OFF": true,
}

func defaults() Config {
	return Config{
		DatabasePath: "litedb.db",
		ManifestPath: "updates.xml",
		BackupKeep:   5,
		CacheTTL:     5 * time.Minute,
		BusyTimeout:  30 * time.Second,
		JournalMode:  "WAL",
	}
}

// Load parses configuration values from the current process environment.
//
// Every value is optional. When LITEDB_UPDATE_LOG is unset the update log
// lives next to the database as update.log.
func Load() (Config, error) {
	return fromEnv(defaults())
}

// LoadFile reads a YAML configuration file and then applies the
// environment on top of it, so LITEDB_* variables win over the file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("設定ファイルの形式が不正です: %s: %w", path, err)
	}

	cfg := defaults()
	invalid := make([]string, 0, 2)

	if fc.Database != "" {
		cfg.DatabasePath = fc.Database
	}
	if fc.Manifest != "" {
		cfg.ManifestPath = fc.Manifest
	}
	if fc.UpdateLog != "" {
		cfg.UpdateLogPath = fc.UpdateLog
	}
	if fc.BackupKeep != nil {
		if *fc.BackupKeep < 0 {
			invalid = append(invalid, "backup_keep")
		} else {
			cfg.BackupKeep = *fc.BackupKeep
		}
	}
	if fc.CacheTTL != "" {
		if d, ok := positiveDuration(fc.CacheTTL); ok {
			cfg.CacheTTL = d
		} else {
			invalid = append(invalid, "cache_ttl")
		}
	}
	if fc.BusyTimeout != "" {
		if d, ok := positiveDuration(fc.BusyTimeout); ok {
			cfg.BusyTimeout = d
		} else {
			invalid = append(invalid, "busy_timeout")
		}
	}
	if fc.JournalMode != "" {
		if mode := strings.ToUpper(fc.JournalMode); journalModes[mode] {
			cfg.JournalMode = mode
		} else {
			invalid = append(invalid, "journal_mode")
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("設定ファイルの値が不正です: %s", strings.Join(invalid, ", "))
	}
	return fromEnv(cfg)
}

func fromEnv(cfg Config) (Config, error) {
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("LITEDB_PATH")); path != "" {
		cfg.DatabasePath = path
	}
	if manifest := strings.TrimSpace(os.Getenv("LITEDB_MANIFEST")); manifest != "" {
		cfg.ManifestPath = manifest
	}
	if logPath := strings.TrimSpace(os.Getenv("LITEDB_UPDATE_LOG")); logPath != "" {
		cfg.UpdateLogPath = logPath
	}

	if keepValue := strings.TrimSpace(os.Getenv("LITEDB_BACKUP_KEEP")); keepValue != "" {
		keep, err := strconv.Atoi(keepValue)
		if err != nil || keep < 0 {
			invalid = append(invalid, "LITEDB_BACKUP_KEEP")
		} else {
			cfg.BackupKeep = keep
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("LITEDB_CACHE_TTL")); ttlValue != "" {
		if ttl, ok := positiveDuration(ttlValue); ok {
			cfg.CacheTTL = ttl
		} else {
			invalid = append(invalid, "LITEDB_CACHE_TTL")
		}
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("LITEDB_BUSY_TIMEOUT")); timeoutValue != "" {
		if timeout, ok := positiveDuration(timeoutValue); ok {
			cfg.BusyTimeout = timeout
		} else {
			invalid = append(invalid, "LITEDB_BUSY_TIMEOUT")
		}
	}

	if mode := strings.ToUpper(strings.TrimSpace(os.Getenv("LITEDB_JOURNAL_MODE"))); mode != "" {
		if journalModes[mode] {
			cfg.JournalMode = mode
		} else {
			invalid = append(invalid, "LITEDB_JOURNAL_MODE")
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	if cfg.UpdateLogPath == "" {
		cfg.UpdateLogPath = filepath.Join(filepath.Dir(cfg.DatabasePath), "update.log")
	}
	return cfg, nil
}

func positiveDuration(value string) (time.Duration, bool) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// SQLite returns the connection settings for the configured database.
func (c Config) SQLite() sqlite.Config {
	cfg := sqlite.DefaultConfig(c.DatabasePath)
	cfg.BusyTimeout = c.BusyTimeout
	cfg.JournalMode = c.JournalMode
	cfg.BackupKeep = c.BackupKeep
	return cfg
}

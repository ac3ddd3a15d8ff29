package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/example/litedb/internal/config"
	"github.com/example/litedb/internal/logging"
	"github.com/example/litedb/internal/persistence/configstore"
	"github.com/example/litedb/internal/persistence/sqlite"
	"github.com/example/litedb/internal/persistence/sqlite/migration"
)

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	dbPath       string
	manifestPath string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "litedb",
		Short:         "Versioned schema updates for SQLite databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "database file (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&flags.manifestPath, "manifest", "", "update manifest file or script directory (overrides configuration)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending update scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				logger.Error("failed to load configuration", "error", err)
				return err
			}
			return runMigrate(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the database version and pending updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				logger.Error("failed to load configuration", "error", err)
				return err
			}
			return runStatus(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	var tag string
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database next to its file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				logger.Error("failed to load configuration", "error", err)
				return err
			}
			return runBackup(cmd.Context(), cfg, tag, logger, cmd.OutOrStdout())
		},
	}
	backupCmd.Flags().StringVar(&tag, "tag", "", "backup tag; tagged backups are rotated")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the litedb version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	rootCmd.AddCommand(migrateCmd, statusCmd, backupCmd, versionCmd)
	return rootCmd
}

func loadConfig(flags globalFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if flags.dbPath != "" {
		cfg.DatabasePath = flags.dbPath
	}
	if flags.manifestPath != "" {
		cfg.ManifestPath = flags.manifestPath
	}
	return cfg, nil
}

// manifestFor picks a directory manifest when path is a directory and a
// single-file manifest otherwise.
func manifestFor(path string) migration.Manifest {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return migration.DirManifest{Dir: path}
	}
	return migration.FileManifest{Path: path}
}

func openDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.DB, error) {
	db, err := sqlite.Open(ctx, cfg.SQLite(), sqlite.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open storage", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}
	return db, nil
}

func closeDatabase(db *sqlite.DB, logger *slog.Logger) {
	if cerr := db.Close(); cerr != nil {
		logger.Error("failed to close storage", "error", cerr)
	}
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	ctx = logging.ContextWithLogger(ctx, logger)

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	engine, err := migration.NewEngine(ctx, migration.Deps{
		Exec:      db,
		Backup:    db,
		Manifest:  manifestFor(cfg.ManifestPath),
		Store:     configstore.New(db, configstore.WithTTL(cfg.CacheTTL), configstore.WithLogger(logger)),
		UpdateLog: migration.NewUpdateLog(cfg.UpdateLogPath),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to prepare database update", "error", err)
		return err
	}

	if len(engine.Plan()) == 0 {
		fmt.Fprintf(out, "Database is up to date: v%d - %s\n", engine.Current().Number, engine.Current().Label())
		return nil
	}

	fmt.Fprintf(out, "Updating database.\nCurrent: v%d - %s\n", engine.Current().Number, engine.Current().Label())
	report, err := engine.Apply(ctx)
	for _, rec := range report.Entries {
		fmt.Fprintf(out, "Update: v%d - %s (%.3fs)\n", rec.Version, rec.Name, rec.Elapsed.Seconds())
	}
	if err != nil {
		fmt.Fprintf(out, "Error: v%d - %s\n", report.To, report.Message)
		return err
	}
	return nil
}

func runStatus(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	if _, err := os.Stat(cfg.DatabasePath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "State: %s\nDatabase: %s\n", migration.StateMissing, cfg.DatabasePath)
		return nil
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	st, err := migration.Inspect(ctx, db, manifestFor(cfg.ManifestPath))
	if err != nil {
		logger.Error("failed to inspect database", "error", err)
		return err
	}

	fmt.Fprintf(out, "State: %s\nDatabase: %s\n", st.State, cfg.DatabasePath)
	if st.State != migration.StateUninitialized {
		fmt.Fprintf(out, "Current: v%d - %s\n", st.Current.Number, st.Current.Label())
	}
	for _, s := range st.Pending {
		fmt.Fprintf(out, "Pending: v%d - %s\n", s.Version, s.Name)
	}
	return nil
}

func runBackup(ctx context.Context, cfg config.Config, tag string, logger *slog.Logger, out io.Writer) error {
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		logger.Error("database not found", "path", cfg.DatabasePath, "error", err)
		return err
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	path, err := db.Backup(ctx, tag)
	if err != nil {
		logger.Error("backup failed", "error", err)
		return err
	}
	logger.Info("backup written", "path", path, "tag", tag)
	fmt.Fprintln(out, path)
	return nil
}

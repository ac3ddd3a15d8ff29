package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/litedb/internal/logging"
	"github.com/example/litedb/internal/persistence/configstore"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Exec     Executor // required
	Backup   Backuper // required
	Manifest Manifest // required

	// Store holds the Version Marker. When nil one is built over Exec.
	Store *configstore.Store

	// UpdateLog receives one line per applied script and per fault.
	UpdateLog io.Writer

	Logger   *slog.Logger
	Clock    func() time.Time
	NewRunID func() string
}

// Engine applies pending update scripts. It assumes it is the only writer
// of the Version Marker while it runs; it is not safe for concurrent use.
type Engine struct {
	exec     Executor
	backup   Backuper
	manifest Manifest
	marker   markerStore
	log      io.Writer
	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string

	current VersionMarker
	plan    []UpdateScript
}

// NewEngine ensures the Config table and the Version Marker exist, loads the
// manifest and computes the plan against the stored version.
func NewEngine(ctx context.Context, deps Deps) (*Engine, error) {
	if deps.Exec == nil || deps.Backup == nil || deps.Manifest == nil {
		return nil, errors.New("migration: engine requires an executor, a backuper and a manifest")
	}

	e := &Engine{
		exec:     deps.Exec,
		backup:   deps.Backup,
		manifest: deps.Manifest,
		log:      deps.UpdateLog,
		logger:   logging.Component(ctx, deps.Logger, "migration", ""),
		now:      deps.Clock,
		newRunID: deps.NewRunID,
	}
	if e.log == nil {
		e.log = io.Discard
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newRunID == nil {
		e.newRunID = uuid.NewString
	}
	store := deps.Store
	if store == nil {
		store = configstore.New(deps.Exec, configstore.WithLogger(e.logger))
	}
	e.marker = markerStore{store: store}

	current, err := e.marker.ensure(ctx)
	if err != nil {
		return nil, err
	}
	e.current = current

	scripts, err := deps.Manifest.Load()
	if err != nil {
		return nil, err
	}
	e.plan = ComputePlan(scripts, current.Number)

	e.logger.Debug("update plan computed",
		slog.Int64("current_version", current.Number),
		slog.Int("manifest_scripts", len(scripts)),
		slog.Int("pending", len(e.plan)))
	return e, nil
}

// Plan returns the pending scripts in the order they will run.
func (e *Engine) Plan() []UpdateScript {
	return append([]UpdateScript(nil), e.plan...)
}

// Current returns the Version Marker as last read or written.
func (e *Engine) Current() VersionMarker {
	return e.current
}

// Run applies the plan. Statements of a script run one by one without a
// surrounding transaction; the Version Marker advances after each script,
// which is the point a later run resumes from. The first failure stops the
// run and is recorded in the report and the update log.
func (e *Engine) Run(ctx context.Context) *ExecutionReport {
	start := e.now()
	report := &ExecutionReport{
		RunID:   e.newRunID(),
		Message: "Success",
		From:    e.current.Number,
		To:      e.current.Number,
	}
	defer func() { report.Elapsed = e.now().Sub(start) }()

	logger := e.logger.With(slog.String("run_id", report.RunID))
	if len(e.plan) == 0 {
		logger.Info("database is up to date", slog.Int64("version", e.current.Number))
		return report
	}

	path, err := e.backup.Backup(ctx, fmt.Sprintf("v%d", e.current.Number))
	if err != nil {
		e.fail(logger, report, fmt.Errorf("%w: %w", ErrBackup, err), err.Error())
		return report
	}
	report.BackupPath = path

	for len(e.plan) > 0 {
		script := e.plan[0]
		began := e.now()
		if err := e.apply(ctx, script); err != nil {
			msg := err.Error()
			var dbErr *DatabaseError
			if errors.As(err, &dbErr) {
				msg = dbErr.Err.Error()
			}
			e.fail(logger, report, err, msg)
			return report
		}
		elapsed := e.now().Sub(began)

		label := script.Name
		next := VersionMarker{
			Number: int64(script.Version),
			Value:  &label,
			Detail: VersionDetail{RunID: report.RunID, Checksum: script.Checksum, AppliedAt: e.now().UTC()},
		}
		if err := e.marker.save(ctx, next); err != nil {
			e.fail(logger, report, fmt.Errorf("%w: %w", ErrExecution, err), err.Error())
			return report
		}
		e.current = next
		e.plan = e.plan[1:]
		report.To = next.Number

		rec := ApplicationRecord{
			Sequence: len(report.Entries) + 1,
			Version:  script.Version,
			Name:     script.Name,
			Elapsed:  elapsed,
			Checksum: script.Checksum,
		}
		report.Entries = append(report.Entries, rec)
		e.audit(logger, appliedLine(rec))
		logger.Info("update applied",
			slog.Int("version", rec.Version),
			slog.String("name", rec.Name),
			slog.Duration("elapsed", rec.Elapsed))
	}

	if err := e.manifest.Consume(); err != nil {
		logger.Warn("manifest not consumed", slog.String("error", err.Error()))
	}
	return report
}

// apply runs the statements of one script in order.
func (e *Engine) apply(ctx context.Context, script UpdateScript) error {
	for i, stmt := range script.Statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := e.exec.Exec(ctx, stmt); err != nil {
			return &DatabaseError{Version: script.Version, Statement: i + 1, Query: stmt, Err: err}
		}
	}
	return nil
}

func (e *Engine) fail(logger *slog.Logger, report *ExecutionReport, err error, msg string) {
	report.Err = err
	report.Message = msg
	e.audit(logger, faultLine(e.current.Number, msg))
	logger.Error("database update failed",
		slog.Int64("version", e.current.Number),
		slog.String("error_kind", logging.ErrorKind(err)),
		slog.String("error", err.Error()))
}

// audit appends line to the update log. A log that cannot be written is
// reported but does not change the outcome of the run.
func (e *Engine) audit(logger *slog.Logger, line string) {
	if err := writeLine(e.log, line); err != nil {
		logger.Warn("update log write failed", slog.String("error", err.Error()))
	}
}

// Apply runs pending updates and logs a summary. It returns an error when
// the run failed so the caller can stop before serving requests.
func (e *Engine) Apply(ctx context.Context) (*ExecutionReport, error) {
	if len(e.plan) == 0 {
		return e.Run(ctx), nil
	}

	e.logger.Info("updating database",
		slog.Int64("current_version", e.current.Number),
		slog.String("current_name", e.current.Label()),
		slog.Int("pending", len(e.plan)))

	report := e.Run(ctx)
	for _, rec := range report.Entries {
		e.logger.Info(appliedLine(rec), slog.Int("sequence", rec.Sequence))
	}
	if report.Failed() {
		return report, fmt.Errorf("update database: %w", report.Err)
	}
	e.logger.Info("database updated",
		slog.Int64("version", report.To),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

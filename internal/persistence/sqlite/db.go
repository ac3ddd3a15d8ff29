package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/example/litedb/internal/persistence"
	"github.com/example/litedb/internal/persistence/mapping"
)

// nowParam is bound automatically when a statement references $now.
const nowParam = "now"

// DB wraps a SQLite connection pool with typed query helpers.
type DB struct {
	db     *sql.DB
	config Config
	mapper *mapping.Mapper
	errs   *ErrorMapper
	retry  *RetryHelper
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a DB.
type Option func(*DB)

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMapper sets the row mapper used by the typed helpers.
func WithMapper(m *mapping.Mapper) Option {
	return func(d *DB) {
		if m != nil {
			d.mapper = m
		}
	}
}

// WithClock overrides the source of $now and backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRetry sets the retry policy for lock contention in ExecEach.
func WithRetry(cfg RetryConfig) Option {
	return func(d *DB) {
		d.retry = NewRetryHelper(cfg)
	}
}

// Open validates cfg, opens the pool and pings the database.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}
	if err := cfg.ensureFile(); err != nil {
		return nil, err
	}

	raw, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if cfg.IsMemory() {
		// Every connection to :memory: is a separate database.
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			raw.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			raw.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		raw.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	d := &DB{
		db:     raw,
		config: cfg,
		errs:   NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mapper == nil {
		d.mapper = mapping.NewMapper(mapping.NewRegistry(), d.logger)
	}
	return d, nil
}

// Close closes the pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Exec runs a statement and returns the number of affected rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, d.bind(query, args)...)
	if err != nil {
		return 0, d.errs.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Query runs a query; the caller closes the rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, d.bind(query, args)...)
	if err != nil {
		return nil, d.errs.MapError(err)
	}
	return rows, nil
}

// WithTransaction executes fn within a transaction. If fn returns an error
// or panics the transaction is rolled back, otherwise it is committed.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", d.errs.MapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Error("rollback after panic failed", slog.String("error", rbErr.Error()))
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", d.errs.MapError(err))
	}
	return nil
}

// bind appends a $now parameter when the statement uses one and the caller
// did not supply it.
func (d *DB) bind(query string, args []any) []any {
	if !strings.Contains(query, "$"+nowParam) {
		return args
	}
	for _, a := range args {
		if na, ok := a.(sql.NamedArg); ok && na.Name == nowParam {
			return args
		}
	}
	out := make([]any, len(args), len(args)+1)
	copy(out, args)
	return append(out, sql.Named(nowParam, d.now().UTC().Format(time.RFC3339Nano)))
}

// Select runs query and maps every row onto T.
func Select[T any](ctx context.Context, d *DB, query string, args ...any) ([]T, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return mapping.ScanAll[T](d.mapper, rows)
}

// Get returns the first row of query mapped onto T, or persistence.ErrNotFound.
func Get[T any](ctx context.Context, d *DB, query string, args ...any) (T, error) {
	var zero T
	items, err := Select[T](ctx, d, query, args...)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, persistence.ErrNotFound
	}
	return items[0], nil
}

// List returns the first column of every row.
func List[T any](ctx context.Context, d *DB, query string, args ...any) ([]T, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan list value: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, d.errs.MapError(err)
	}
	return out, nil
}

// Dict maps every row onto V and indexes the results by key. Later rows
// replace earlier ones with the same key.
func Dict[K comparable, V any](ctx context.Context, d *DB, key func(V) K, query string, args ...any) (map[K]V, error) {
	items, err := Select[V](ctx, d, query, args...)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(items))
	for _, it := range items {
		out[key(it)] = it
	}
	return out, nil
}

// ExecEach runs query once per item inside one transaction, binding each
// item's mapped fields as named parameters. It returns the total number of
// affected rows. Lock contention retries the whole transaction.
func ExecEach[T any](ctx context.Context, d *DB, query string, items []T) (int64, error) {
	var total int64
	err := d.retry.WithRetry(ctx, func() error {
		total = 0
		return d.WithTransaction(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, query)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for i := range items {
				args, err := d.mapper.Args(&items[i])
				if err != nil {
					return err
				}
				res, err := stmt.ExecContext(ctx, d.bind(query, args)...)
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				n, _ := res.RowsAffected()
				total += n
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Column describes one table column as reported by PRAGMA table_info.
type Column struct {
	CID        int     `sql:"cid"`
	Name       string  `sql:"name"`
	Type       string  `sql:"type"`
	NotNull    bool    `sql:"notnull"`
	Default    *string `sql:"dflt_value"`
	PrimaryKey int     `sql:"pk"`
}

// Tables lists the user tables of the database.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	return List[string](ctx, d,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

// Columns describes the columns of table; an unknown table yields none.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	return Select[Column](ctx, d, `SELECT * FROM pragma_table_info(?)`, table)
}

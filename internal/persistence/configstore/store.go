// Package configstore keeps the Config table: a key/name keyed set of
// settings with text, numeric and JSON payloads. Reads go through a TTL
// cache that is reloaded as a whole; writes go straight to the database.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/litedb/internal/persistence"
	"github.com/example/litedb/internal/persistence/mapping"
)

// Table is the name of the settings table.
const Table = "Config"

const createTableSQL = `CREATE TABLE IF NOT EXISTS Config (
	cfg_id INTEGER PRIMARY KEY AUTOINCREMENT,
	cfg_key TEXT(50),
	cfg_name TEXT(255),
	cfg_value TEXT(255),
	cfg_num INTEGER,
	cfg_data TEXT,
	cfg_descr TEXT
)`

const (
	selectAllSQL = `SELECT cfg_id, cfg_key, cfg_name, cfg_value, cfg_num, cfg_data, cfg_descr FROM Config ORDER BY cfg_id`

	selectOneSQL = `SELECT cfg_id, cfg_key, cfg_name, cfg_value, cfg_num, cfg_data, cfg_descr FROM Config
WHERE cfg_key = $cfg_key AND cfg_name = $cfg_name ORDER BY cfg_id LIMIT 1`

	insertSQL = `INSERT INTO Config (cfg_key, cfg_name, cfg_value, cfg_num, cfg_data, cfg_descr)
VALUES ($cfg_key, $cfg_name, $cfg_value, $cfg_num, $cfg_data, $cfg_descr)`

	updateSQL = `UPDATE Config SET cfg_value = $cfg_value, cfg_num = $cfg_num, cfg_data = $cfg_data,
cfg_descr = COALESCE($cfg_descr, cfg_descr)
WHERE cfg_id = $cfg_id OR (cfg_key = $cfg_key AND cfg_name = $cfg_name)`
)

// Executor is the slice of the connection wrapper the store needs.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Item is one Config row.
type Item struct {
	ID     int64   `sql:"cfg_id"`
	Key    string  `sql:"cfg_key"`
	Name   string  `sql:"cfg_name"`
	Value  *string `sql:"cfg_value"`
	Number *int64  `sql:"cfg_num"`
	Data   *string `sql:"cfg_data"`
	Descr  *string `sql:"cfg_descr"`
}

func cacheKey(key, name string) string {
	return key + "|" + name
}

// Store reads and writes Config rows.
type Store struct {
	exec   Executor
	mapper *mapping.Mapper
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration

	mu         sync.Mutex // serialises reloads and guards the snapshot
	cache      *expirable.LRU[string, Item]
	items      []Item
	nextReload time.Time
	hooksMu    sync.RWMutex
	hooks      []func([]Item)
}

// Option customises a Store.
type Option func(*Store)

// WithTTL sets how long a loaded snapshot is served before the next reload.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for the reload window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMapper sets the row mapper.
func WithMapper(m *mapping.Mapper) Option {
	return func(s *Store) {
		if m != nil {
			s.mapper = m
		}
	}
}

// DefaultTTL is the reload window when none is configured.
const DefaultTTL = 5 * time.Minute

// New returns a Store over exec.
func New(exec Executor, opts ...Option) *Store {
	s := &Store{
		exec:   exec,
		logger: slog.Default(),
		now:    time.Now,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mapper == nil {
		s.mapper = mapping.NewMapper(mapping.NewRegistry(), s.logger)
	}
	return s
}

// EnsureSchema creates the Config table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.exec.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("configstore: create table: %w", err)
	}
	return nil
}

// OnReload registers fn to run with the fresh snapshot after every reload.
func (s *Store) OnReload(fn func([]Item)) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

// Reload returns the current snapshot, reading the table again when the
// reload window has passed or force is set. Concurrent callers wait for a
// single reload instead of issuing their own.
func (s *Store) Reload(ctx context.Context, force bool) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx, force)
}

func (s *Store) reloadLocked(ctx context.Context, force bool) ([]Item, error) {
	now := s.now()
	if !force && s.cache != nil && now.Before(s.nextReload) {
		return s.items, nil
	}

	rows, err := s.exec.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("configstore: load: %w", err)
	}
	items, err := mapping.ScanAll[Item](s.mapper, rows)
	if err != nil {
		return nil, fmt.Errorf("configstore: load: %w", err)
	}

	// Sized to the snapshot so no row is evicted; entries outlive the
	// reload window by one ttl.
	cache := expirable.NewLRU[string, Item](len(items)+1, nil, 2*s.ttl)
	for _, it := range items {
		k := cacheKey(it.Key, it.Name)
		// First row wins for duplicate key/name pairs.
		if _, ok := cache.Peek(k); !ok {
			cache.Add(k, it)
		}
	}
	s.cache, s.items = cache, items
	s.nextReload = now.Add(s.ttl)
	s.logger.Debug("config reloaded", slog.Int("items", len(items)))

	s.hooksMu.RLock()
	hooks := append([]func([]Item){}, s.hooks...)
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(items)
	}
	return items, nil
}

// Invalidate makes the next read reload the table.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.nextReload = time.Time{}
	s.mu.Unlock()
}

// Item returns the cached row for key and name, or persistence.ErrNotFound.
func (s *Store) Item(ctx context.Context, key, name string) (Item, error) {
	s.mu.Lock()
	_, err := s.reloadLocked(ctx, false)
	cache := s.cache
	s.mu.Unlock()
	if err != nil {
		return Item{}, err
	}
	it, ok := cache.Get(cacheKey(key, name))
	if !ok {
		return Item{}, fmt.Errorf("configstore: %s/%s: %w", key, name, persistence.ErrNotFound)
	}
	return it, nil
}

// Value returns the text value of key/name, or def when the row or its
// value is missing. Lookup failures are logged and yield def.
func (s *Store) Value(ctx context.Context, key, name, def string) string {
	it, err := s.Item(ctx, key, name)
	if err != nil {
		s.logMiss(key, name, err)
		return def
	}
	if it.Value == nil {
		return def
	}
	return *it.Value
}

// Int returns the numeric value of key/name. A NULL number falls back to
// parsing the text value, then to def.
func (s *Store) Int(ctx context.Context, key, name string, def int64) int64 {
	it, err := s.Item(ctx, key, name)
	if err != nil {
		s.logMiss(key, name, err)
		return def
	}
	if it.Number != nil {
		return *it.Number
	}
	if it.Value != nil {
		if n, err := strconv.ParseInt(*it.Value, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (s *Store) logMiss(key, name string, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		return
	}
	s.logger.Warn("config lookup failed",
		slog.String("key", key),
		slog.String("name", name),
		slog.String("error", err.Error()))
}

// Lookup reads key/name straight from the table, bypassing the cache.
func (s *Store) Lookup(ctx context.Context, key, name string) (Item, error) {
	return LookupAs[Item](ctx, s, key, name)
}

// LookupAs reads key/name straight from the table and maps the row onto T,
// which declares the Config columns it needs with sql tags.
func LookupAs[T any](ctx context.Context, s *Store, key, name string) (T, error) {
	var zero T
	rows, err := s.exec.Query(ctx, selectOneSQL,
		sql.Named("cfg_key", key), sql.Named("cfg_name", name))
	if err != nil {
		return zero, fmt.Errorf("configstore: lookup %s/%s: %w", key, name, err)
	}
	items, err := mapping.ScanAll[T](s.mapper, rows)
	if err != nil {
		return zero, fmt.Errorf("configstore: lookup %s/%s: %w", key, name, err)
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("configstore: %s/%s: %w", key, name, persistence.ErrNotFound)
	}
	return items[0], nil
}

// Insert adds item as a new row and returns its id.
func (s *Store) Insert(ctx context.Context, item Item) (int64, error) {
	args, err := s.mapper.Args(item)
	if err != nil {
		return 0, fmt.Errorf("configstore: insert %s/%s: %w", item.Key, item.Name, err)
	}
	rows, err := s.exec.Query(ctx, insertSQL+" RETURNING cfg_id", args...)
	if err != nil {
		return 0, fmt.Errorf("configstore: insert %s/%s: %w", item.Key, item.Name, err)
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("configstore: insert %s/%s: %w", item.Key, item.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("configstore: insert %s/%s: %w", item.Key, item.Name, err)
	}
	s.Invalidate()
	return id, nil
}

// Update writes the value, number and data of item to the row with the
// same id, or with the same key and name. A nil Descr keeps the stored
// description. It returns persistence.ErrNotFound when no row matched.
func (s *Store) Update(ctx context.Context, item Item) error {
	args, err := s.mapper.Args(item)
	if err != nil {
		return fmt.Errorf("configstore: update %s/%s: %w", item.Key, item.Name, err)
	}
	n, err := s.exec.Exec(ctx, updateSQL, args...)
	if err != nil {
		return fmt.Errorf("configstore: update %s/%s: %w", item.Key, item.Name, err)
	}
	s.Invalidate()
	if n == 0 {
		return fmt.Errorf("configstore: update %s/%s: %w", item.Key, item.Name, persistence.ErrNotFound)
	}
	return nil
}

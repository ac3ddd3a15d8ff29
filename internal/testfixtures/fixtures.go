package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/litedb/internal/persistence/sqlite/migration"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Script builds an update script from raw SQL.
func Script(version int, name, query string) migration.UpdateScript {
	return migration.NewScript(version, name, fmt.Sprintf("fixture:v%d", version), query)
}

// ItemsScripts returns a three-step manifest over an items table.
func ItemsScripts() []migration.UpdateScript {
	return []migration.UpdateScript{
		Script(1, "create items", `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`),
		Script(2, "add price", `ALTER TABLE items ADD COLUMN price REAL NOT NULL DEFAULT 0;`),
		Script(3, "seed items", `INSERT INTO items (name, price) VALUES ('bolt', 0.25);
INSERT INTO items (name, price) VALUES ('nut', 0.1);`),
	}
}

// Manifest is an in-memory manifest that counts Consume calls.
type Manifest struct {
	mu         sync.Mutex
	scripts    []migration.UpdateScript
	consumed   int
	LoadErr    error
	ConsumeErr error
}

// NewManifest returns a manifest serving scripts.
func NewManifest(scripts ...migration.UpdateScript) *Manifest {
	return &Manifest{scripts: scripts}
}

// Load returns a copy of the scripts or LoadErr.
func (m *Manifest) Load() ([]migration.UpdateScript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return append([]migration.UpdateScript(nil), m.scripts...), nil
}

// Consume records the call and returns ConsumeErr.
func (m *Manifest) Consume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed++
	return m.ConsumeErr
}

// Consumed reports how many times Consume was called.
func (m *Manifest) Consumed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed
}

// ErrBackupRefused is returned by a Backuper configured to fail.
var ErrBackupRefused = errors.New("testfixtures: backup refused")

// Backuper records backup requests. When Fail is set every request fails
// with ErrBackupRefused; otherwise Next, when non-nil, takes the backup.
type Backuper struct {
	mu   sync.Mutex
	tags []string
	Fail bool
	Next migration.Backuper
}

// Backup records tag and delegates or fails.
func (b *Backuper) Backup(ctx context.Context, tag string) (string, error) {
	b.mu.Lock()
	b.tags = append(b.tags, tag)
	b.mu.Unlock()

	if b.Fail {
		return "", ErrBackupRefused
	}
	if b.Next != nil {
		return b.Next.Backup(ctx, tag)
	}
	return "backup-" + tag, nil
}

// Tags returns the tags requested so far.
func (b *Backuper) Tags() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tags...)
}

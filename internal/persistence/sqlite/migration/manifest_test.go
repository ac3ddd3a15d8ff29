package migration_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/litedb/internal/persistence/sqlite/migration"
	"github.com/example/litedb/internal/testfixtures"
)

func versions(scripts []migration.UpdateScript) []int {
	out := make([]int, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, s.Version)
	}
	return out
}

func TestComputePlan(t *testing.T) {
	manifest := []migration.UpdateScript{
		testfixtures.Script(1, "one", "CREATE TABLE a (x)"),
		testfixtures.Script(3, "three", "CREATE TABLE c (x)"),
		testfixtures.Script(2, "two", "CREATE TABLE b (x)"),
		testfixtures.Script(5, "empty", "-- nothing to do\n;"),
	}

	plan := migration.ComputePlan(manifest, 1)
	assert.Equal(t, []int{2, 3}, versions(plan))
	assert.Equal(t, []int{1, 3, 2, 5}, versions(manifest), "input must not be reordered")

	assert.Empty(t, migration.ComputePlan(manifest, 3))
	assert.Equal(t, []int{1, 2, 3}, versions(migration.ComputePlan(manifest, 0)))
}

func TestComputePlanKeepsManifestOrderForEqualVersions(t *testing.T) {
	manifest := []migration.UpdateScript{
		testfixtures.Script(2, "first", "SELECT 1"),
		testfixtures.Script(1, "base", "SELECT 0"),
		testfixtures.Script(2, "second", "SELECT 2"),
	}

	plan := migration.ComputePlan(manifest, 0)
	require.Len(t, plan, 3)
	assert.Equal(t, []string{"base", "first", "second"}, []string{plan[0].Name, plan[1].Name, plan[2].Name})
}

const xmlManifest = `<?xml version="1.0" encoding="utf-8"?>
<SqlUpdates>
  <SqlUpdate Name="create items" Version="1">
    <Query>CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT); CREATE INDEX idx_items ON items(name);</Query>
  </SqlUpdate>
  <SqlUpdate Name="seed" Version="2">
    <Query><![CDATA[INSERT INTO items (name) VALUES ('a<b');]]></Query>
  </SqlUpdate>
</SqlUpdates>`

const yamlManifest = `updates:
  - version: 1
    name: create items
    query: |
      CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);
      CREATE INDEX idx_items ON items(name);
  - version: 2
    name: seed
    statements:
      - INSERT INTO items (name) VALUES ('a')
      - INSERT INTO items (name) VALUES ('b')
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileManifestXML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "updates.xml", xmlManifest)

	scripts, err := migration.FileManifest{Path: path}.Load()
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	assert.Equal(t, 1, scripts[0].Version)
	assert.Equal(t, "create items", scripts[0].Name)
	assert.Equal(t, []string{
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE INDEX idx_items ON items(name)",
	}, scripts[0].Statements)
	assert.Equal(t, migration.Checksum(scripts[0].Statements), scripts[0].Checksum)
	assert.Equal(t, path+"#1", scripts[0].Source)

	assert.Equal(t, []string{"INSERT INTO items (name) VALUES ('a<b')"}, scripts[1].Statements)
}

func TestFileManifestYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "updates.yaml", yamlManifest)

	scripts, err := migration.FileManifest{Path: path}.Load()
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	assert.Len(t, scripts[0].Statements, 2)
	assert.Equal(t, "seed", scripts[1].Name)
	assert.Equal(t, []string{
		"INSERT INTO items (name) VALUES ('a')",
		"INSERT INTO items (name) VALUES ('b')",
	}, scripts[1].Statements)
}

func TestFileManifestSniffsUnknownExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "updates.manifest", xmlManifest)

	scripts, err := migration.FileManifest{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions(scripts))
}

func TestFileManifestMissingIsEmpty(t *testing.T) {
	m := migration.FileManifest{Path: filepath.Join(t.TempDir(), "absent.xml")}

	scripts, err := m.Load()
	require.NoError(t, err)
	assert.Empty(t, scripts)
	assert.NoError(t, m.Consume())
}

func TestFileManifestMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "updates.xml", "<SqlUpdates><SqlUpdate Version=\"x\">")

	_, err := migration.FileManifest{Path: path}.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, migration.ErrManifest)

	var fsErr *migration.FileSystemError
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, path, fsErr.Path)
}

func TestFileManifestConsumeDeletesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "updates.yml", yamlManifest)

	require.NoError(t, migration.FileManifest{Path: path}.Consume())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDirManifest(t *testing.T) {
	scripts, err := migration.DirManifest{Dir: "testdata/scripts"}.Load()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, versions(scripts))

	assert.Equal(t, "Create items table", scripts[0].Name)
	assert.Len(t, scripts[0].Statements, 2)
	assert.Equal(t, filepath.Join("testdata/scripts", "001_create_items.sql"), scripts[0].Source)

	assert.Equal(t, "add price", scripts[1].Name)
	assert.Equal(t, []string{"ALTER TABLE items ADD COLUMN price REAL NOT NULL DEFAULT 0"}, scripts[1].Statements)

	assert.Equal(t, "Audit item renames", scripts[2].Name)
	require.Len(t, scripts[2].Statements, 2)
	assert.Contains(t, scripts[2].Statements[1], "'now; later'")
	assert.Contains(t, scripts[2].Statements[1], "END")
}

func TestDirManifestMissingIsEmpty(t *testing.T) {
	scripts, err := migration.DirManifest{Dir: filepath.Join(t.TempDir(), "none")}.Load()
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestDirManifestConsume(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "001_init.sql", "CREATE TABLE t (x);")
	other := writeFile(t, dir, "notes.txt", "keep me")

	require.NoError(t, migration.DirManifest{Dir: dir}.Consume())
	_, err := os.Stat(script)
	require.NoError(t, err, "scripts are kept unless Remove is set")

	require.NoError(t, migration.DirManifest{Dir: dir, Remove: true}.Consume())
	_, err = os.Stat(script)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestStaticManifest(t *testing.T) {
	m := migration.Static(testfixtures.ItemsScripts())

	scripts, err := m.Load()
	require.NoError(t, err)
	scripts[0].Name = "changed"

	again, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "create items", again[0].Name, "Load returns a copy")
	assert.NoError(t, m.Consume())
}

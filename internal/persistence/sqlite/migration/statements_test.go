package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/litedb/internal/persistence/sqlite/migration"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "single without terminator",
			script: "CREATE TABLE t (x)",
			want:   []string{"CREATE TABLE t (x)"},
		},
		{
			name:   "blank statements skipped",
			script: "CREATE TABLE t (x);;\n  ;\nDROP TABLE t;",
			want:   []string{"CREATE TABLE t (x)", "DROP TABLE t"},
		},
		{
			name:   "semicolon in string literal",
			script: "INSERT INTO t VALUES ('a;b');INSERT INTO t VALUES ('it''s; fine')",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "INSERT INTO t VALUES ('it''s; fine')"},
		},
		{
			name:   "quoted identifiers",
			script: `CREATE TABLE "semi;colon" ([a;b] TEXT, ` + "`c;d`" + ` TEXT);SELECT 1`,
			want:   []string{`CREATE TABLE "semi;colon" ([a;b] TEXT, ` + "`c;d`" + ` TEXT)`, "SELECT 1"},
		},
		{
			name:   "comments dropped",
			script: "-- header; not a statement\nCREATE TABLE t (x); /* block; comment */\nDROP TABLE t; -- trailing",
			want:   []string{"CREATE TABLE t (x)", "DROP TABLE t"},
		},
		{
			name:   "comment only",
			script: "-- nothing here;\n/* or here; */",
			want:   nil,
		},
		{
			name: "trigger body kept whole",
			script: `CREATE TRIGGER trg AFTER INSERT ON t
BEGIN
  UPDATE t SET x = CASE WHEN new.x > 0 THEN 1 ELSE 0 END WHERE rowid = new.rowid;
  INSERT INTO log VALUES ('inserted');
END;
SELECT 1;`,
			want: []string{
				`CREATE TRIGGER trg AFTER INSERT ON t
BEGIN
  UPDATE t SET x = CASE WHEN new.x > 0 THEN 1 ELSE 0 END WHERE rowid = new.rowid;
  INSERT INTO log VALUES ('inserted');
END`,
				"SELECT 1",
			},
		},
		{
			name:   "temp trigger",
			script: "CREATE TEMP TRIGGER trg AFTER DELETE ON t BEGIN DELETE FROM u; END; SELECT 2",
			want:   []string{"CREATE TEMP TRIGGER trg AFTER DELETE ON t BEGIN DELETE FROM u; END", "SELECT 2"},
		},
		{
			name:   "transaction begin is not a trigger",
			script: "BEGIN; CREATE TABLE t (x); COMMIT;",
			want:   []string{"BEGIN", "CREATE TABLE t (x)", "COMMIT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.SplitStatements(tt.script))
		})
	}
}

func TestChecksumIsStable(t *testing.T) {
	a := migration.Checksum([]string{"CREATE TABLE t (x)", "DROP TABLE t"})
	b := migration.Checksum(migration.SplitStatements("CREATE TABLE t (x);\n-- note\nDROP TABLE t;"))

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, migration.Checksum([]string{"DROP TABLE t", "CREATE TABLE t (x)"}))
}

package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/litedb/internal/persistence/sqlite/migration"
	"github.com/example/litedb/internal/testfixtures"
)

func TestInspect(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, testfixtures.ItemsScripts()...)

	st, err := migration.Inspect(ctx, env.h.DB, env.manifest)
	require.NoError(t, err)
	assert.Equal(t, migration.StateUninitialized, st.State)
	assert.Len(t, st.Pending, 3)
	assert.NotContains(t, env.tables(t), "Config", "inspect must not write")

	e := env.engine(t)
	st, err = migration.Inspect(ctx, env.h.DB, env.manifest)
	require.NoError(t, err)
	assert.Equal(t, migration.StateBehind, st.State)
	assert.Equal(t, int64(0), st.Current.Number)

	require.False(t, e.Run(ctx).Failed())
	st, err = migration.Inspect(ctx, env.h.DB, env.manifest)
	require.NoError(t, err)
	assert.Equal(t, migration.StateReady, st.State)
	assert.Equal(t, int64(3), st.Current.Number)
	assert.Empty(t, st.Pending)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "missing", migration.StateMissing.String())
	assert.Equal(t, "behind", migration.StateBehind.String())
	assert.Equal(t, "State(9)", migration.State(9).String())
}

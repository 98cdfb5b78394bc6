package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/KevinAiCloud/InterviewAI/internal/db/bunx"
)

func TestApply_CreatesSchemaAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := bunx.NewDB(ctx, "file:migrations_test?mode=memory&cache=shared", bunx.Options{})
	require.NoError(t, err)
	defer bunx.Close(db)

	assert.True(t, IsSQLite(db))
	assert.False(t, IsPostgreSQL(db))

	group, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.NotZero(t, group)

	for _, table := range []string{"users", "scores", "auth_sessions"} {
		var n int
		err := db.NewSelect().
			TableExpr("sqlite_master").
			ColumnExpr("count(*)").
			Where("type = 'table' AND name = ?", table).
			Scan(ctx, &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}

	group, err = Apply(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, group)

	ms, err := migrate.NewMigrator(db, Migrations).MigrationsWithStatus(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	for _, m := range ms {
		assert.NotZero(t, m.GroupID, m.Name)
	}
}

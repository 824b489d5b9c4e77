package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		st, err := Open(context.Background(), filepath.Join(t.TempDir(), "town.db"))
		require.NoError(t, err)
		return st
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsDataAndSkipsApplied(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "town.db")

	st, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.SetBalance(ctx, "p1", 42))
	require.NoError(t, st.Close())

	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()
	b, err := st.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), b)
	assert.NoError(t, st.Health(ctx, time.Second))

	var applied int
	require.NoError(t, st.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", extractUpMigration(content))
	assert.Equal(t, "CREATE TABLE b (y INT);", extractUpMigration("CREATE TABLE b (y INT);"))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.True(t, isAlreadyExistsError(errors.New("table player_pets already exists")))
	assert.False(t, isAlreadyExistsError(sql.ErrNoRows))
}

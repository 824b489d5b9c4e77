package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/postgres"
	"github.com/cory-johannsen/covey/internal/storage/storagetest"
	"github.com/cory-johannsen/covey/internal/testutil"
)

func TestStore_Conformance(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)

	storagetest.Run(t, func(t *testing.T) storage.Store {
		pc.Reset(t)
		st, err := postgres.Open(context.Background(), pc.Config)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestStore_HealthAndMigrateIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)

	res, err := postgres.Migrate(pc.DSN(), "up", 0)
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Equal(t, uint(4), res.Version)

	st, err := postgres.Open(context.Background(), pc.Config)
	require.NoError(t, err)
	defer st.Close()
	assert.NoError(t, st.Health(context.Background(), time.Second))

	require.NoError(t, st.Close())
	err = st.Health(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database health within 1s")
}

func TestStore_OneEquippedPetUnderConcurrentEquips(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	ctx := context.Background()
	st := pc.Store

	for _, e := range []storage.CatalogEntry{{Type: "dog", Price: 1}, {Type: "cat", Price: 1}} {
		require.NoError(t, st.UpsertCatalogEntry(ctx, e))
	}
	require.NoError(t, st.SetBalance(ctx, "p1", 10))
	for _, pet := range []string{"dog", "cat"} {
		_, err := st.AdoptPet(ctx, "p1", pet)
		require.NoError(t, err)
	}

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		pet := "dog"
		if i%2 == 1 {
			pet = "cat"
		}
		go func() {
			_, err := st.EquipPet(ctx, "p1", pet)
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-errs)
	}

	pets, err := st.Pets(ctx, "p1")
	require.NoError(t, err)
	equipped := 0
	for _, p := range pets {
		if p.Equipped {
			equipped++
		}
	}
	assert.Equal(t, 1, equipped)
}

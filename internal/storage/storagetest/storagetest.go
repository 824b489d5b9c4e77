// Package storagetest is a conformance suite run against every storage.Store
// implementation.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite.
//
// Precondition: newStore must return an empty store on every call.
func Run(t *testing.T, newStore Factory) {
	t.Run("CurrencyAccounts", func(t *testing.T) { testCurrencyAccounts(t, newStore(t)) })
	t.Run("Leaderboard", func(t *testing.T) { testLeaderboard(t, newStore(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, newStore(t)) })
	t.Run("AdoptInsufficientFunds", func(t *testing.T) { testAdoptInsufficient(t, newStore(t)) })
	t.Run("AdoptAndEquip", func(t *testing.T) { testAdoptAndEquip(t, newStore(t)) })
	t.Run("AwardOnce", func(t *testing.T) { testAwardOnce(t, newStore(t)) })
	t.Run("AwardOnceConcurrent", func(t *testing.T) { testAwardOnceConcurrent(t, newStore(t)) })
}

func seed(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertCatalogEntry(ctx, storage.CatalogEntry{Type: "dog", Price: 10, SpriteID: "dog-1", Speed: 1.5}))
	require.NoError(t, s.UpsertCatalogEntry(ctx, storage.CatalogEntry{Type: "cat", Price: 5, SpriteID: "cat-1", Speed: 1}))
}

func testCurrencyAccounts(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.Balance(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreateAccount(ctx, "p1", 0))
	require.NoError(t, s.SetBalance(ctx, "p1", 7))
	require.NoError(t, s.CreateAccount(ctx, "p1", 0), "create is a no-op for an existing account")

	b, err := s.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), b)

	require.NoError(t, s.SetBalance(ctx, "p2", 3))
	b, err = s.Balance(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), b)
}

func testLeaderboard(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	for i, bal := range []int64{5, 9, 1} {
		require.NoError(t, s.SetBalance(ctx, fmt.Sprintf("p%d", i), bal))
	}
	top, err := s.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, storage.LeaderboardEntry{PlayerID: "p1", Balance: 9}, top[0])
	assert.Equal(t, storage.LeaderboardEntry{PlayerID: "p0", Balance: 5}, top[1])
}

func testCatalog(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.IncrementPopularity(ctx, "dog"))
	require.NoError(t, s.UpsertCatalogEntry(ctx, storage.CatalogEntry{Type: "dog", Price: 12, SpriteID: "dog-2", Speed: 2}))

	dog, err := s.CatalogEntry(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, int64(12), dog.Price)
	assert.Equal(t, int64(1), dog.Popularity, "upsert keeps popularity")
	assert.Equal(t, "dog-2", dog.SpriteID)

	all, err := s.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cat", all[0].Type)

	_, err = s.CatalogEntry(ctx, "dragon")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.IncrementPopularity(ctx, "dragon"), storage.ErrNotFound)
}

func testAdoptInsufficient(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateAccount(ctx, "p1", 0))

	res, err := s.AdoptPet(ctx, "p1", "dog")
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
	assert.Equal(t, int64(10), res.Price)
	assert.Equal(t, int64(0), res.Balance)

	pets, err := s.Pets(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, pets)
	dog, err := s.CatalogEntry(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, int64(0), dog.Popularity)

	_, err = s.AdoptPet(ctx, "p1", "dragon")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAdoptAndEquip(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.SetBalance(ctx, "p1", 20))

	res, err := s.AdoptPet(ctx, "p1", "dog")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Balance)
	assert.False(t, res.Pet.Equipped)

	_, err = s.AdoptPet(ctx, "p1", "dog")
	assert.ErrorIs(t, err, storage.ErrAlreadyOwned)

	_, err = s.AdoptPet(ctx, "p1", "cat")
	require.NoError(t, err)
	b, err := s.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b)

	_, err = s.EquipPet(ctx, "p1", "dog")
	require.NoError(t, err)
	pet, err := s.EquipPet(ctx, "p1", "cat")
	require.NoError(t, err)
	assert.True(t, pet.Equipped)

	pets, err := s.Pets(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, pets, 2)
	equipped := 0
	for _, p := range pets {
		if p.Equipped {
			equipped++
			assert.Equal(t, "cat", p.Type)
		}
	}
	assert.Equal(t, 1, equipped)

	require.NoError(t, s.UnequipPet(ctx, "p1", "cat"))
	pets, err = s.Pets(ctx, "p1")
	require.NoError(t, err)
	for _, p := range pets {
		assert.False(t, p.Equipped)
	}

	_, err = s.EquipPet(ctx, "p1", "dragon")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UnequipPet(ctx, "p2", "dog"), storage.ErrNotFound)

	dog, err := s.CatalogEntry(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dog.Popularity)
}

func testAwardOnce(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, "p1", 0))

	awarded, bal, err := s.AwardOnce(ctx, "g1", "p1", 2)
	require.NoError(t, err)
	assert.True(t, awarded)
	assert.Equal(t, int64(2), bal)

	awarded, bal, err = s.AwardOnce(ctx, "g1", "p1", 2)
	require.NoError(t, err)
	assert.False(t, awarded)
	assert.Equal(t, int64(2), bal)

	done, err := s.Awarded(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = s.Awarded(ctx, "g2")
	require.NoError(t, err)
	assert.False(t, done)
}

func testAwardOnceConcurrent(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, "p1", 0))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			awarded, _, err := s.AwardOnce(ctx, "g1", "p1", 1)
			assert.NoError(t, err)
			results <- awarded
		}()
	}
	wg.Wait()
	close(results)

	count := 0
	for a := range results {
		if a {
			count++
		}
	}
	assert.Equal(t, 1, count)
	b, err := s.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b)
}

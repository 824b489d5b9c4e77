package area

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/geom"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/memory"
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.UpsertCatalogEntry(ctx, storage.CatalogEntry{Type: "dog", Price: 10, SpriteID: "dog-1", Speed: 1.5}))
	require.NoError(t, st.UpsertCatalogEntry(ctx, storage.CatalogEntry{Type: "cat", Price: 5, SpriteID: "cat-1", Speed: 2}))
	return st
}

// runReply executes a deferred reply inline, the way the town would off and on its loop.
func runReply(t *testing.T, reply Reply) (any, error) {
	t.Helper()
	if reply.Deferred == nil {
		return reply.Payload, nil
	}
	complete, err := reply.Deferred.Run(context.Background())
	if err != nil {
		return nil, err
	}
	return complete()
}

func newShop(t *testing.T, st *memory.Store) (*Area, *recorder) {
	t.Helper()
	entries, err := st.Catalog(context.Background())
	require.NoError(t, err)
	s := NewSignals()
	rec := record(s)
	a, err := New("shop", geom.Box{Width: 10, Height: 10}, NewPetShop(st, entries), s)
	require.NoError(t, err)
	return a, rec
}

func TestPetShop_InsufficientFundsNotifiesWithoutChanges(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	require.NoError(t, st.CreateAccount(ctx, "p1", 0))
	a, rec := newShop(t, st)

	reply, err := a.HandleCommand(mustCommand(t, "shop", protocol.AdoptPet{PetType: "dog"}), player("p1"))
	require.NoError(t, err)
	require.NotNil(t, reply.Deferred)
	assert.Equal(t, "p1", reply.Deferred.Key)
	_, err = runReply(t, reply)
	require.NoError(t, err)

	require.Len(t, rec.notices, 1)
	assert.Equal(t, protocol.EventInsufficientCurrency, rec.notices[0].Event)
	assert.Equal(t, protocol.InsufficientCurrency{PlayerID: "p1", PetType: "dog", Price: 10, Balance: 0}, rec.notices[0].Payload)

	pets, err := st.Pets(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, pets)
	dog, err := st.CatalogEntry(ctx, "dog")
	require.NoError(t, err)
	assert.Zero(t, dog.Popularity)
}

func TestPetShop_AdoptDebitsAndNotifies(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	require.NoError(t, st.CreateAccount(ctx, "p1", 12))
	a, rec := newShop(t, st)

	reply, err := a.HandleCommand(mustCommand(t, "shop", protocol.AdoptPet{PetType: "dog"}), player("p1"))
	require.NoError(t, err)
	_, err = runReply(t, reply)
	require.NoError(t, err)

	require.Len(t, rec.notices, 1)
	assert.Equal(t, protocol.CurrencyChanged{PlayerID: "p1", Balance: 2}, rec.notices[0].Payload)
	state := a.Variant().State().(PetShopState)
	require.Len(t, state.Catalog, 2)
	assert.Equal(t, "cat", state.Catalog[0].Type)
	assert.Equal(t, int64(1), state.Catalog[1].Popularity)

	reply, err = a.HandleCommand(mustCommand(t, "shop", protocol.AdoptPet{PetType: "dog"}), player("p1"))
	require.NoError(t, err)
	_, err = runReply(t, reply)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestPetShop_UnknownPetType(t *testing.T) {
	a, _ := newShop(t, seededStore(t))
	_, err := a.HandleCommand(mustCommand(t, "shop", protocol.AdoptPet{PetType: "dragon"}), player("p1"))
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestInventory_EquipAndUnequip(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	require.NoError(t, st.CreateAccount(ctx, "p1", 100))
	_, err := st.AdoptPet(ctx, "p1", "dog")
	require.NoError(t, err)
	_, err = st.AdoptPet(ctx, "p1", "cat")
	require.NoError(t, err)

	s := NewSignals()
	rec := record(s)
	a, err := New("inv", geom.Box{Width: 10, Height: 10}, NewInventory(st, st), s)
	require.NoError(t, err)
	p := player("p1")

	for _, pet := range []string{"dog", "cat"} {
		reply, err := a.HandleCommand(mustCommand(t, "inv", protocol.EquipPet{PetType: pet}), p)
		require.NoError(t, err)
		_, err = runReply(t, reply)
		require.NoError(t, err)
	}
	require.Len(t, rec.equipped, 2)
	assert.Equal(t, protocol.EquippedPet{Type: "cat", PlayerID: "p1", SpriteID: "cat-1"}, rec.equipped[1])

	pets, err := st.Pets(ctx, "p1")
	require.NoError(t, err)
	equipped := 0
	for _, pet := range pets {
		if pet.Equipped {
			equipped++
		}
	}
	assert.Equal(t, 1, equipped)

	reply, err := a.HandleCommand(mustCommand(t, "inv", protocol.UnequipPet{PetType: "cat"}), p)
	require.NoError(t, err)
	_, err = runReply(t, reply)
	require.NoError(t, err)
	assert.Equal(t, []protocol.PetUnequipped{{Type: "cat", PlayerID: "p1"}}, rec.unequip)
}

func TestInventory_NotOwned(t *testing.T) {
	st := seededStore(t)
	a, err := New("inv", geom.Box{Width: 10, Height: 10}, NewInventory(st, st), NewSignals())
	require.NoError(t, err)
	reply, err := a.HandleCommand(mustCommand(t, "inv", protocol.EquipPet{PetType: "dog"}), player("p1"))
	require.NoError(t, err)
	_, err = runReply(t, reply)
	require.ErrorIs(t, err, ErrInvalidParameters)
	msg, _ := ClientMessage(err)
	assert.Equal(t, "you do not own a dog", msg)
}

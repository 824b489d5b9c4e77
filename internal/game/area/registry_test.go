package area

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/geom"
)

func testMap() *world.TownMap {
	return &world.TownMap{
		Name: "plaza",
		Areas: []world.AreaDef{
			{ID: "lobby", Type: world.ConversationArea, Box: geom.Box{X: 0, Y: 0, Width: 40, Height: 40}},
			{ID: "cinema", Type: world.ViewingArea, Box: geom.Box{X: 100, Y: 0, Width: 50, Height: 30}},
			{ID: "ttt", Type: world.GameArea, Box: geom.Box{X: 200, Y: 0, Width: 20, Height: 20}, Properties: map[string]string{"game": "tictactoe"}},
			{ID: "c4", Type: world.ConnectFourArea, Box: geom.Box{X: 300, Y: 0, Width: 20, Height: 20}},
			{ID: "shop", Type: world.PetShopArea, Box: geom.Box{X: 0, Y: 100, Width: 20, Height: 20}},
			{ID: "inv", Type: world.InventoryArea, Box: geom.Box{X: 100, Y: 100, Width: 20, Height: 20}},
		},
	}
}

func TestBuild_AllVariants(t *testing.T) {
	st := seededStore(t)
	reg, err := Build(context.Background(), testMap(), Deps{Pets: st, Catalog: st, Signals: NewSignals()})
	require.NoError(t, err)
	assert.Equal(t, 6, reg.Len())

	types := map[string]string{}
	for _, a := range reg.Areas() {
		types[a.ID()] = a.Variant().Type()
	}
	assert.Equal(t, map[string]string{
		"lobby":  "ConversationArea",
		"cinema": "ViewingArea",
		"ttt":    "TicTacToeArea",
		"c4":     "ConnectFourArea",
		"shop":   "PetShopArea",
		"inv":    "InventoryArea",
	}, types)

	assert.Equal(t, "lobby", reg.Find(geom.Point{X: 12, Y: 8}).ID())
	assert.Equal(t, "lobby", reg.Find(geom.Point{X: 40, Y: 40}).ID())
	assert.Nil(t, reg.Find(geom.Point{X: 60, Y: 60}))
	_, ok := reg.Get("nope")
	assert.False(t, ok)
}

func TestBuild_RejectsDuplicateIDs(t *testing.T) {
	m := testMap()
	m.Areas[1].ID = "lobby"
	_, err := Build(context.Background(), m, Deps{Pets: seededStore(t), Catalog: seededStore(t), Signals: NewSignals()})
	require.ErrorIs(t, err, world.ErrMapIntegrity)
	assert.Contains(t, err.Error(), "duplicate area id")
}

func TestBuild_RejectsOverlap(t *testing.T) {
	m := testMap()
	m.Areas[1].Box = geom.Box{X: 40, Y: 40, Width: 5, Height: 5}
	st := seededStore(t)
	_, err := Build(context.Background(), m, Deps{Pets: st, Catalog: st, Signals: NewSignals()})
	require.ErrorIs(t, err, world.ErrMapIntegrity)
	assert.Contains(t, err.Error(), "overlaps")
}

func TestBuild_RejectsUnknownGame(t *testing.T) {
	m := testMap()
	m.Areas[2].Properties["game"] = "chess"
	st := seededStore(t)
	_, err := Build(context.Background(), m, Deps{Pets: st, Catalog: st, Signals: NewSignals()})
	assert.ErrorIs(t, err, world.ErrMapIntegrity)
}

func TestBuild_ShopWithoutStoreFails(t *testing.T) {
	_, err := Build(context.Background(), testMap(), Deps{Signals: NewSignals()})
	assert.Error(t, err)
}

func TestPropertyRegistryFindsAtMostOneArea(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSignals()
		n := rapid.IntRange(1, 8).Draw(t, "areas")
		var areas []*Area
		for i := 0; i < n; i++ {
			box := geom.Box{
				X:      rapid.Float64Range(0, 200).Draw(t, "x"),
				Y:      rapid.Float64Range(0, 200).Draw(t, "y"),
				Width:  rapid.Float64Range(1, 50).Draw(t, "w"),
				Height: rapid.Float64Range(1, 50).Draw(t, "h"),
			}
			a, err := New(string(rune('a'+i)), box, NewViewing(), s)
			if err != nil {
				t.Fatalf("new area: %v", err)
			}
			areas = append(areas, a)
		}
		reg, err := NewRegistry(areas...)
		if err != nil {
			return
		}
		pt := geom.Point{X: rapid.Float64Range(0, 260).Draw(t, "px"), Y: rapid.Float64Range(0, 260).Draw(t, "py")}
		matches := 0
		for _, a := range reg.Areas() {
			if a.Box().Contains(pt) {
				matches++
			}
		}
		if matches > 1 {
			t.Fatalf("point %v contained by %d areas", pt, matches)
		}
		found := reg.Find(pt)
		if (found != nil) != (matches == 1) {
			t.Fatalf("Find disagrees with containment at %v", pt)
		}
	})
}

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/protocol"
)

func frame(t *testing.T, eventType string, payload any) protocol.Message {
	t.Helper()
	msg, err := protocol.Decode(protocol.MustEncode(eventType, payload))
	require.NoError(t, err)
	return msg
}

func seededMirror() *mirror {
	m := newMirror()
	m.seed(protocol.Initialize{
		UserID:       "a",
		FriendlyName: "Plaza",
		Players: []protocol.Player{
			{ID: "a", UserName: "alice"},
			{ID: "b", UserName: "bob"},
		},
		Pets:   []protocol.EquippedPet{{Type: "dog", PlayerID: "b"}},
		Emotes: []protocol.Emote{{ID: "e1", PlayerID: "b", Emote: "wave"}},
		Areas: []protocol.Area{
			{ID: "lobby", Type: "ConversationArea", Occupants: []string{}},
			{ID: "shop", Type: "PetShopArea", Occupants: []string{}},
		},
	})
	return m
}

func TestMirror_PlayersJoinMoveAndLeave(t *testing.T) {
	m := seededMirror()
	var lists [][]protocol.Player
	dispose := m.playersChanged.Subscribe(func(ps []protocol.Player) { lists = append(lists, ps) })
	var moved []protocol.Player
	m.playerMoved.Subscribe(func(p protocol.Player) { moved = append(moved, p) })

	require.NoError(t, m.apply("a", frame(t, protocol.EventPlayerJoined, protocol.Player{ID: "c", UserName: "carol"})))
	cLoc := protocol.Location{X: 5, Y: 6, Rotation: protocol.Left, InteractableID: "lobby"}
	require.NoError(t, m.apply("a", frame(t, protocol.EventPlayerMoved, protocol.Player{ID: "c", UserName: "carol", Location: cLoc})))
	require.NoError(t, m.apply("a", frame(t, protocol.EventPlayerDisconnect, protocol.Player{ID: "b", UserName: "bob"})))

	snap := m.snapshot()
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "a", snap.Players[0].ID)
	assert.Equal(t, cLoc, snap.Players[1].Location)
	// Leaving takes the player's pet and emote along.
	assert.Empty(t, snap.Pets)
	assert.Empty(t, snap.Emotes)

	require.Len(t, lists, 2)
	assert.Len(t, lists[0], 3)
	assert.Len(t, lists[1], 2)
	require.Len(t, moved, 1)
	assert.Equal(t, "c", moved[0].ID)

	dispose()
	require.NoError(t, m.apply("a", frame(t, protocol.EventPlayerJoined, protocol.Player{ID: "d"})))
	assert.Len(t, lists, 2)
}

func TestMirror_AreaUpdatesReplaceInPlace(t *testing.T) {
	m := seededMirror()
	var changed []protocol.Area
	m.areaChanged.Subscribe(func(a protocol.Area) { changed = append(changed, a) })

	upd := protocol.Area{ID: "lobby", Type: "ConversationArea", Occupants: []string{"a"}, State: []byte(`{"topic":"cats"}`)}
	require.NoError(t, m.apply("a", frame(t, protocol.EventInteractableUpdate, upd)))

	snap := m.snapshot()
	require.Len(t, snap.Areas, 2)
	assert.Equal(t, "lobby", snap.Areas[0].ID)
	assert.Equal(t, []string{"a"}, snap.Areas[0].Occupants)
	assert.JSONEq(t, `{"topic":"cats"}`, string(snap.Areas[0].State))
	require.Len(t, changed, 1)
}

func TestMirror_PetsAndEmotes(t *testing.T) {
	m := seededMirror()
	var petLists [][]protocol.EquippedPet
	m.petsChanged.Subscribe(func(ps []protocol.EquippedPet) { petLists = append(petLists, ps) })

	require.NoError(t, m.apply("a", frame(t, protocol.EventPetEquipped, protocol.EquippedPet{Type: "cat", PlayerID: "a"})))
	require.NoError(t, m.apply("a", frame(t, protocol.EventPetMoved, protocol.EquippedPet{Type: "cat", PlayerID: "a", Location: protocol.Location{X: 9}})))
	// An unequip naming another type leaves the equipped pet alone.
	require.NoError(t, m.apply("a", frame(t, protocol.EventPetUnequipped, protocol.PetUnequipped{Type: "cat", PlayerID: "b"})))
	snap := m.snapshot()
	require.Len(t, snap.Pets, 2)
	assert.Equal(t, 9.0, snap.Pets[0].Location.X)
	require.NoError(t, m.apply("a", frame(t, protocol.EventPetUnequipped, protocol.PetUnequipped{Type: "dog", PlayerID: "b"})))
	assert.Len(t, m.snapshot().Pets, 1)
	assert.Len(t, petLists, 4)

	// A stale destroy for a replaced emote keeps the replacement.
	require.NoError(t, m.apply("a", frame(t, protocol.EventEmoteCreated, protocol.Emote{ID: "e2", PlayerID: "b", Emote: "laugh"})))
	require.NoError(t, m.apply("a", frame(t, protocol.EventEmoteDestroyed, protocol.Emote{ID: "e1", PlayerID: "b"})))
	emotes := m.snapshot().Emotes
	require.Len(t, emotes, 1)
	assert.Equal(t, "e2", emotes[0].ID)
	require.NoError(t, m.apply("a", frame(t, protocol.EventEmoteDestroyed, protocol.Emote{ID: "e2", PlayerID: "b"})))
	assert.Empty(t, m.snapshot().Emotes)
}

func TestMirror_BalanceSettingsAndLeaderboards(t *testing.T) {
	m := seededMirror()
	var balances []int64
	m.balanceChanged.Subscribe(func(v int64) { balances = append(balances, v) })
	var boards []protocol.Leaderboard
	m.currentChanged.Subscribe(func(b protocol.Leaderboard) { boards = append(boards, b) })

	// Another player's balance is not ours.
	require.NoError(t, m.apply("a", frame(t, protocol.EventCurrencyChanged, protocol.CurrencyChanged{PlayerID: "b", Balance: 50})))
	require.NoError(t, m.apply("a", frame(t, protocol.EventCurrencyChanged, protocol.CurrencyChanged{PlayerID: "a", Balance: 3})))
	board := protocol.NewLeaderboard([]protocol.LeaderboardRow{
		{PlayerID: "b", UserName: "bob", Currency: 50},
		{PlayerID: "a", UserName: "alice", Currency: 3},
	})
	require.NoError(t, m.apply("a", frame(t, protocol.EventCurrentCurrency, board)))
	assert.Equal(t, []int64{3}, balances)
	require.Len(t, boards, 1)
	assert.Equal(t, []string{"b", "a"}, boards[0].PlayerIDs)
	assert.Equal(t, board, m.current)
	assert.Empty(t, m.allTime.Rows)

	require.NoError(t, m.apply("a", frame(t, protocol.EventTownSettingsUpdated, protocol.TownSettings{FriendlyName: "Renamed", IsPubliclyListed: true})))
	assert.Equal(t, "Renamed", m.snapshot().FriendlyName)
	assert.True(t, m.snapshot().IsPubliclyListed)
}

func TestMirror_MalformedFrameLeavesStateAlone(t *testing.T) {
	m := seededMirror()
	bad := protocol.Message{Type: protocol.EventPlayerJoined, Payload: []byte(`"not a player"`)}
	assert.Error(t, m.apply("a", bad))
	assert.Len(t, m.snapshot().Players, 2)
	assert.NoError(t, m.apply("a", frame(t, protocol.EventChatMessage, protocol.ChatMessage{Body: "hi"})))
}

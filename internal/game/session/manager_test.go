package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/covey/internal/protocol"
)

func newTestPlayer(id, name string) *Player {
	p := NewPlayer(name, 4)
	p.ID = id
	return p
}

func TestNewPlayer_Defaults(t *testing.T) {
	a := NewPlayer("Alice", 4)
	b := NewPlayer("Alice", 4)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.SessionToken, b.SessionToken)
	assert.NotEqual(t, a.ID, a.SessionToken)
	assert.Equal(t, protocol.DefaultLocation(), a.Location)
	assert.Empty(t, a.Location.InteractableID)
	assert.Equal(t, "Alice", a.Snapshot().UserName)
}

func TestManager_AddPlayer(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddPlayer(newTestPlayer("u1", "Alice")))
	assert.Equal(t, 1, m.PlayerCount())

	p, ok := m.GetPlayer("u1")
	require.True(t, ok)
	assert.Equal(t, "Alice", p.UserName)
}

func TestManager_AddPlayerDuplicate(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddPlayer(newTestPlayer("u1", "Alice")))
	err := m.AddPlayer(newTestPlayer("u1", "Bob"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

func TestManager_RemovePlayer(t *testing.T) {
	m := NewManager()
	p := newTestPlayer("u1", "Alice")
	require.NoError(t, m.AddPlayer(p))

	removed, err := m.RemovePlayer("u1")
	require.NoError(t, err)
	assert.Same(t, p, removed)
	assert.True(t, p.Outbox.IsClosed())
	assert.Equal(t, 0, m.PlayerCount())

	_, err = m.RemovePlayer("u1")
	assert.Error(t, err)
}

func TestManager_PlayersInJoinOrder(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.AddPlayer(newTestPlayer(id, id)))
	}
	_, err := m.RemovePlayer("a")
	require.NoError(t, err)

	var ids []string
	for _, p := range m.Players() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "b"}, ids)
}

func TestManager_GetPlayerBySessionToken(t *testing.T) {
	m := NewManager()
	p := newTestPlayer("u1", "Alice")
	require.NoError(t, m.AddPlayer(p))

	got, ok := m.GetPlayerBySessionToken(p.SessionToken)
	require.True(t, ok)
	assert.Equal(t, "u1", got.ID)

	_, ok = m.GetPlayerBySessionToken("nope")
	assert.False(t, ok)
}

func TestManager_SendAndBroadcast(t *testing.T) {
	m := NewManager()
	a := NewPlayer("a", 1)
	b := NewPlayer("b", 1)
	require.NoError(t, m.AddPlayer(a))
	require.NoError(t, m.AddPlayer(b))

	require.NoError(t, m.Send(a.ID, []byte("direct")))
	assert.Equal(t, []byte("direct"), <-a.Outbox.Frames())
	assert.Error(t, m.Send("missing", []byte("x")))

	require.NoError(t, a.Outbox.Push([]byte("fill")))
	failed := m.Broadcast([]byte("all"))
	assert.Equal(t, []string{a.ID}, failed)
	assert.Equal(t, []byte("all"), <-b.Outbox.Frames())
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager()
	p := newTestPlayer("u1", "Alice")
	require.NoError(t, m.AddPlayer(p))
	m.CloseAll()
	assert.Equal(t, 0, m.PlayerCount())
	assert.True(t, p.Outbox.IsClosed())
}

func TestManager_ConcurrentAddRemove(t *testing.T) {
	m := NewManager()
	const n = 100
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = m.AddPlayer(newTestPlayer(fmt.Sprintf("u%d", i), fmt.Sprintf("Player%d", i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, m.PlayerCount())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = m.RemovePlayer(fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, m.PlayerCount())
	assert.Empty(t, m.Players())
}

func TestPropertyPlayerOrderMatchesCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager()
		numPlayers := rapid.IntRange(1, 20).Draw(t, "num_players")
		for i := 0; i < numPlayers; i++ {
			_ = m.AddPlayer(newTestPlayer(fmt.Sprintf("p%d", i), "x"))
		}
		numRemoves := rapid.IntRange(0, numPlayers).Draw(t, "num_removes")
		for i := 0; i < numRemoves; i++ {
			idx := rapid.IntRange(0, numPlayers-1).Draw(t, "remove_player")
			_, _ = m.RemovePlayer(fmt.Sprintf("p%d", idx))
		}
		if len(m.Players()) != m.PlayerCount() {
			t.Fatalf("ordered players %d != player count %d", len(m.Players()), m.PlayerCount())
		}
	})
}

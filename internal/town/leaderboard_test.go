package town

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage/memory"
)

// awaitBoard skips frames until a board of eventType satisfies ok.
func (c *client) awaitBoard(eventType string, ok func(protocol.Leaderboard) bool) protocol.Leaderboard {
	c.t.Helper()
	for {
		var b protocol.Leaderboard
		c.expect(eventType, &b)
		if ok(b) {
			return b
		}
	}
}

func currencyOf(b protocol.Leaderboard, playerID string) (int64, bool) {
	for _, r := range b.Rows {
		if r.PlayerID == playerID {
			return r.Currency, true
		}
	}
	return 0, false
}

func TestLeaderboards_BroadcastOnJoinAdoptAndLeave(t *testing.T) {
	f := newFixture(t, Options{StartingBalance: 20, BroadcastLeaderboards: true}, nil)
	alice := f.join(t, "alice")
	first := alice.awaitBoard(protocol.EventCurrentCurrency, func(b protocol.Leaderboard) bool { return len(b.Rows) == 1 })
	assert.Equal(t, []protocol.LeaderboardRow{{PlayerID: alice.p.ID, UserName: "alice", Currency: 20}}, first.Rows)
	assert.Equal(t, []string{alice.p.ID}, first.PlayerIDs)

	bob := f.join(t, "bob")
	bob.awaitBoard(protocol.EventCurrentCurrency, func(b protocol.Leaderboard) bool { return len(b.Rows) == 2 })

	resp := alice.command("shop", protocol.AdoptPet{PetType: "dog"})
	require.Empty(t, resp.Error)
	after := bob.awaitBoard(protocol.EventCurrentCurrency, func(b protocol.Leaderboard) bool {
		bal, ok := currencyOf(b, alice.p.ID)
		return ok && bal == 10
	})
	require.Len(t, after.Rows, 2)
	assert.Equal(t, bob.p.ID, after.Rows[0].PlayerID)
	assert.Equal(t, alice.p.ID, after.Rows[1].PlayerID)

	f.town.Leave(alice.p.ID)
	current := bob.awaitBoard(protocol.EventCurrentCurrency, func(b protocol.Leaderboard) bool { return len(b.Rows) == 1 })
	assert.Equal(t, bob.p.ID, current.Rows[0].PlayerID)

	// The all-time board still ranks the departed player, without a name.
	boards, err := f.town.Leaderboards(context.Background())
	require.NoError(t, err)
	require.Len(t, boards.AllTime.Rows, 2)
	assert.Equal(t, protocol.LeaderboardRow{PlayerID: bob.p.ID, UserName: "bob", Currency: 20}, boards.AllTime.Rows[0])
	assert.Equal(t, protocol.LeaderboardRow{PlayerID: alice.p.ID, Currency: 10}, boards.AllTime.Rows[1])
	assert.Len(t, boards.Current.Rows, 1)
}

func TestLeaderboards_AllTimeIsBounded(t *testing.T) {
	f := newFixture(t, Options{LeaderboardSize: 2}, nil)
	ctx := context.Background()
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, f.store.SetBalance(ctx, id, int64(i+1)))
	}
	boards, err := f.town.Leaderboards(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2"}, boards.AllTime.PlayerIDs)
	assert.Empty(t, boards.Current.Rows)
}

type brokenAccounts struct {
	*memory.Store
}

func (brokenAccounts) CreateAccount(context.Context, string, int64) error {
	return errors.New("disk full")
}

func TestJoin_AccountFailureReportsInternalError(t *testing.T) {
	st := brokenAccounts{seededStore(t)}
	deps, logs := testDeps(t, st, nil)
	town, err := New(context.Background(), Options{Map: plazaMap(), FriendlyName: "Plaza"}, deps)
	require.NoError(t, err)
	t.Cleanup(town.Close)
	f := &fixture{town: town, store: st.Store, logs: logs}

	alice := f.join(t, "alice")
	var ev protocol.ErrorEvent
	alice.expect(protocol.EventError, &ev)
	assert.Equal(t, "internal error", ev.Message)
	assert.Equal(t, 1, town.Occupancy())
	assert.Equal(t, 1, logs.FilterMessage("creating currency account").Len())
}

package town

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/game/area"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
)

// leaderboardKey serialises leaderboard reads in the task queue.
const leaderboardKey = "leaderboard"

// Leaderboards reads the all-time and the connected-player leaderboards from
// the store. It does not run on the event loop.
//
// Postcondition: Both boards are ordered by balance, highest first; players
// without an account are left out of the current board.
func (t *Town) Leaderboards(ctx context.Context) (protocol.Leaderboards, error) {
	players := make([]protocol.Player, 0, t.players.PlayerCount())
	for _, p := range t.players.Players() {
		players = append(players, protocol.Player{ID: p.ID, UserName: p.UserName})
	}
	return t.readLeaderboards(ctx, players)
}

// readLeaderboards builds both boards. players supplies user names and the
// membership of the current board, in join order.
func (t *Town) readLeaderboards(ctx context.Context, players []protocol.Player) (protocol.Leaderboards, error) {
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.UserName
	}

	top, err := t.store.Leaderboard(ctx, t.opts.LeaderboardSize)
	if err != nil {
		return protocol.Leaderboards{}, fmt.Errorf("reading leaderboard: %w", err)
	}
	allTime := make([]protocol.LeaderboardRow, 0, len(top))
	for _, e := range top {
		allTime = append(allTime, protocol.LeaderboardRow{PlayerID: e.PlayerID, UserName: names[e.PlayerID], Currency: e.Balance})
	}

	current := make([]protocol.LeaderboardRow, 0, len(players))
	for _, p := range players {
		bal, err := t.store.Balance(ctx, p.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return protocol.Leaderboards{}, fmt.Errorf("reading balance of %s: %w", p.ID, err)
		}
		current = append(current, protocol.LeaderboardRow{PlayerID: p.ID, UserName: p.UserName, Currency: bal})
	}
	sort.SliceStable(current, func(i, j int) bool { return current[i].Currency > current[j].Currency })

	return protocol.Leaderboards{
		AllTime: protocol.NewLeaderboard(allTime),
		Current: protocol.NewLeaderboard(current),
	}, nil
}

// publishLeaderboards queues a store read of both boards and broadcasts them
// when it completes. A read already waiting behind the running one will see
// the same change, so a second waiter is not queued.
func (t *Town) publishLeaderboards() {
	if !t.opts.BroadcastLeaderboards {
		return
	}
	if len(t.tasks[leaderboardKey]) > 1 {
		return
	}
	t.submit(leaderboardKey, t.opts.StoreTimeout, func(ctx context.Context) (area.Completion, error) {
		// Membership is sampled when the read starts, so a read queued before a
		// leave does not list the departed player.
		players := make([]protocol.Player, 0, t.players.PlayerCount())
		for _, p := range t.players.Players() {
			players = append(players, protocol.Player{ID: p.ID, UserName: p.UserName})
		}
		boards, err := t.readLeaderboards(ctx, players)
		if err != nil {
			return nil, err
		}
		return func() (any, error) { return boards, nil }, nil
	}, func(complete area.Completion, err error) {
		if err != nil {
			t.logger.Warn("leaderboard not broadcast", zap.Error(err))
			return
		}
		res, _ := complete()
		boards := res.(protocol.Leaderboards)
		t.broadcast(protocol.EventAllTimeCurrency, boards.AllTime)
		t.broadcast(protocol.EventCurrentCurrency, boards.Current)
	})
}

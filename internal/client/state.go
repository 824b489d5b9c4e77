package client

import (
	"github.com/cory-johannsen/covey/internal/events"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// Players returns the connected players in join order.
func (c *Client) Players() []protocol.Player {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.playersLocked()
}

// Player returns one connected player.
func (c *Client) Player(id string) (protocol.Player, bool) {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	p, ok := c.state.players[id]
	return p, ok
}

// Areas returns every interactable area in map order.
func (c *Client) Areas() []protocol.Area {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.areasLocked()
}

// Area returns one interactable area.
func (c *Client) Area(id string) (protocol.Area, bool) {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	a, ok := c.state.areas[id]
	return a, ok
}

// Pets returns the equipped pets.
func (c *Client) Pets() []protocol.EquippedPet {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.petsLocked()
}

// Emotes returns the emotes currently displayed.
func (c *Client) Emotes() []protocol.Emote {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.emotesLocked()
}

// Settings returns the town's public settings.
func (c *Client) Settings() protocol.TownSettings {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return protocol.TownSettings{FriendlyName: c.state.snap.FriendlyName, IsPubliclyListed: c.state.snap.IsPubliclyListed}
}

// Balance returns the player's balance. The second result is false until
// the server has reported it.
func (c *Client) Balance() (int64, bool) {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.balance, c.state.balanced
}

// Leaderboards returns the last leaderboards the town broadcast.
func (c *Client) Leaderboards() protocol.Leaderboards {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return protocol.Leaderboards{AllTime: c.state.allTime, Current: c.state.current}
}

// Change subscriptions. Handlers run on the connection's read goroutine after
// the mirror has been updated and before the frame reaches Events; they must
// not block.

// OnPlayersChanged is called with the full player list after a join or leave.
func (c *Client) OnPlayersChanged(fn func([]protocol.Player)) events.Dispose {
	return c.state.playersChanged.Subscribe(fn)
}

// OnPlayerMoved is called with each moved player.
func (c *Client) OnPlayerMoved(fn func(protocol.Player)) events.Dispose {
	return c.state.playerMoved.Subscribe(fn)
}

// OnAreaChanged is called with each updated interactable area.
func (c *Client) OnAreaChanged(fn func(protocol.Area)) events.Dispose {
	return c.state.areaChanged.Subscribe(fn)
}

// OnPetsChanged is called with every equipped pet after any pet change.
func (c *Client) OnPetsChanged(fn func([]protocol.EquippedPet)) events.Dispose {
	return c.state.petsChanged.Subscribe(fn)
}

// OnEmotesChanged is called with every displayed emote after any emote change.
func (c *Client) OnEmotesChanged(fn func([]protocol.Emote)) events.Dispose {
	return c.state.emotesChanged.Subscribe(fn)
}

// OnBalanceChanged is called when the player's own balance changes.
func (c *Client) OnBalanceChanged(fn func(int64)) events.Dispose {
	return c.state.balanceChanged.Subscribe(fn)
}

// OnSettingsChanged is called when the town's public settings change.
func (c *Client) OnSettingsChanged(fn func(protocol.TownSettings)) events.Dispose {
	return c.state.settingsChanged.Subscribe(fn)
}

// OnAllTimeLeaderboard is called with each all-time leaderboard broadcast.
func (c *Client) OnAllTimeLeaderboard(fn func(protocol.Leaderboard)) events.Dispose {
	return c.state.allTimeChanged.Subscribe(fn)
}

// OnCurrentLeaderboard is called with each leaderboard of connected players.
func (c *Client) OnCurrentLeaderboard(fn func(protocol.Leaderboard)) events.Dispose {
	return c.state.currentChanged.Subscribe(fn)
}

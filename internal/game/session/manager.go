package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cory-johannsen/covey/internal/protocol"
)

// Player tracks a connected player's state.
type Player struct {
	// ID is the unique player identifier, minted on join.
	ID string
	// UserName is the display name chosen by the client.
	UserName string
	// SessionToken is the per-session secret returned in the initialize snapshot.
	SessionToken string
	// Location is the player's current position. Location.InteractableID names
	// the area that counts the player as an occupant, or is empty.
	Location protocol.Location
	// Outbox queues encoded frames for the player's connection.
	Outbox *Outbox
}

// NewPlayer creates a player at the default location with fresh identifiers.
//
// Precondition: userName must be non-empty.
// Postcondition: Returns a Player with unique ID and SessionToken and an open outbox.
func NewPlayer(userName string, bufferSize int) *Player {
	id := uuid.NewString()
	return &Player{
		ID:           id,
		UserName:     userName,
		SessionToken: uuid.NewString(),
		Location:     protocol.DefaultLocation(),
		Outbox:       NewOutbox(id, bufferSize),
	}
}

// Snapshot returns the public view of p.
func (p *Player) Snapshot() protocol.Player {
	return protocol.Player{ID: p.ID, UserName: p.UserName, Location: p.Location}
}

// Manager tracks all players connected to one town.
// All methods are safe for concurrent use; Player fields themselves are
// owned by the town event loop.
type Manager struct {
	mu      sync.RWMutex
	players map[string]*Player
	order   []string
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{players: make(map[string]*Player)}
}

// AddPlayer registers p.
//
// Precondition: p must be non-nil with a non-empty ID.
// Postcondition: Returns an error if the ID is already registered.
func (m *Manager) AddPlayer(p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.players[p.ID]; exists {
		return fmt.Errorf("player %q already connected", p.ID)
	}
	m.players[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

// RemovePlayer removes a player and closes its outbox.
//
// Precondition: id must be non-empty.
// Postcondition: The player is removed from all tracking. Returns an error if not found.
func (m *Manager) RemovePlayer(id string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.players[id]
	if !exists {
		return nil, fmt.Errorf("player %q not found", id)
	}
	_ = p.Outbox.Close()
	delete(m.players, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return p, nil
}

// GetPlayer returns the player with the given ID.
//
// Postcondition: Returns (player, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPlayer(id string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	return p, ok
}

// GetPlayerBySessionToken finds the player holding token.
//
// Postcondition: Returns (player, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPlayerBySessionToken(token string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players {
		if p.SessionToken == token {
			return p, true
		}
	}
	return nil, false
}

// Players returns every connected player in join order.
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.players[id])
	}
	return out
}

// PlayerCount returns the total number of connected players.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// Send pushes data to one player.
//
// Postcondition: Returns an error if the player is unknown or its buffer rejects the frame.
func (m *Manager) Send(id string, data []byte) error {
	p, ok := m.GetPlayer(id)
	if !ok {
		return fmt.Errorf("player %q not found", id)
	}
	return p.Outbox.Push(data)
}

// Broadcast pushes data to every player.
//
// Postcondition: Returns the IDs of players whose outbox rejected the frame, sorted.
func (m *Manager) Broadcast(data []byte) []string {
	var failed []string
	for _, p := range m.Players() {
		if err := p.Outbox.Push(data); err != nil {
			failed = append(failed, p.ID)
		}
	}
	sort.Strings(failed)
	return failed
}

// CloseAll closes every player's outbox and forgets all players.
//
// Postcondition: PlayerCount() == 0.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		_ = p.Outbox.Close()
	}
	m.players = make(map[string]*Player)
	m.order = nil
}

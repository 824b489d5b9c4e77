package town

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// Manager errors.
var (
	ErrTownNotFound    = errors.New("town not found")
	ErrInvalidPassword = errors.New("invalid town update password")
	ErrInvalidSession  = errors.New("invalid session token")
	ErrInvalidName     = errors.New("friendly name must not be empty")
	ErrUnknownMap      = errors.New("unknown map")
)

// CreatedTown is returned once when a town is created. The password is not
// retrievable afterwards.
type CreatedTown struct {
	TownID             string `json:"townID"`
	TownUpdatePassword string `json:"townUpdatePassword"`
}

// Listing is one row of the public town list.
type Listing struct {
	TownID           string `json:"townID"`
	FriendlyName     string `json:"friendlyName"`
	CurrentOccupancy int    `json:"currentOccupancy"`
	MaximumOccupancy int    `json:"maximumOccupancy"`
}

// SettingsUpdate changes the non-nil fields of a town's settings.
type SettingsUpdate struct {
	FriendlyName     *string `json:"friendlyName,omitempty"`
	IsPubliclyListed *bool   `json:"isPubliclyListed,omitempty"`
}

// ScriptLoader loads and unloads per-town script VMs.
type ScriptLoader interface {
	LoadTown(townID, scriptDir string, instLimit int) error
	Unload(townID string)
}

type hosted struct {
	town         *Town
	passwordHash string
}

// Manager hosts every town of a server.
type Manager struct {
	mu     sync.RWMutex
	towns  map[string]*hosted
	maps   *world.Manager
	defs   Options
	deps   Deps
	logger *zap.Logger
}

// NewManager creates a Manager. defaults supplies every Options field except
// ID, FriendlyName, IsPubliclyListed and Map.
//
// Precondition: maps must be non-nil; deps must satisfy New's preconditions.
// Postcondition: Returns an empty Manager.
func NewManager(maps *world.Manager, defaults Options, deps Deps) *Manager {
	return &Manager{
		towns:  make(map[string]*hosted),
		maps:   maps,
		defs:   defaults,
		deps:   deps,
		logger: deps.Logger,
	}
}

// Create starts a new town on mapName, or on the default map when mapName is empty.
//
// Postcondition: Returns the town ID and its update password, or an error.
func (m *Manager) Create(ctx context.Context, friendlyName string, public bool, mapName string) (CreatedTown, error) {
	if friendlyName == "" {
		return CreatedTown{}, ErrInvalidName
	}
	tm, err := m.maps.Resolve(mapName)
	if err != nil {
		return CreatedTown{}, fmt.Errorf("%w: %w", ErrUnknownMap, err)
	}
	password := newUpdatePassword()
	hash, err := HashPassword(password)
	if err != nil {
		return CreatedTown{}, fmt.Errorf("hashing town password: %w", err)
	}

	opts := m.defs
	opts.ID = uuid.NewString()
	opts.FriendlyName = friendlyName
	opts.IsPubliclyListed = public
	opts.Map = tm
	t, err := New(ctx, opts, m.deps)
	if err != nil {
		return CreatedTown{}, err
	}
	if err := m.loadScripts(t.ID(), tm.Name); err != nil {
		t.Close()
		return CreatedTown{}, err
	}

	m.mu.Lock()
	m.towns[t.ID()] = &hosted{town: t, passwordHash: hash}
	m.mu.Unlock()
	m.logger.Info("town created",
		zap.String("town", t.ID()),
		zap.String("name", friendlyName),
		zap.Bool("public", public),
	)
	return CreatedTown{TownID: t.ID(), TownUpdatePassword: password}, nil
}

// Get returns a hosted town.
func (m *Manager) Get(townID string) (*Town, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.towns[townID]
	if !ok {
		return nil, false
	}
	return h.town, true
}

// List returns the publicly listed towns ordered by friendly name.
func (m *Manager) List() []Listing {
	m.mu.RLock()
	out := make([]Listing, 0, len(m.towns))
	for id, h := range m.towns {
		s := h.town.Settings()
		if !s.IsPubliclyListed {
			continue
		}
		out = append(out, Listing{
			TownID:           id,
			FriendlyName:     s.FriendlyName,
			CurrentOccupancy: h.town.Occupancy(),
			MaximumOccupancy: h.town.Capacity(),
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FriendlyName != out[j].FriendlyName {
			return out[i].FriendlyName < out[j].FriendlyName
		}
		return out[i].TownID < out[j].TownID
	})
	return out
}

// UpdateSettings verifies password and applies upd to the town.
//
// Postcondition: Returns ErrTownNotFound, ErrInvalidPassword, ErrInvalidName or nil.
func (m *Manager) UpdateSettings(ctx context.Context, townID, password string, upd SettingsUpdate) error {
	h, err := m.authorize(townID, password)
	if err != nil {
		return err
	}
	s := h.town.Settings()
	if upd.FriendlyName != nil {
		if *upd.FriendlyName == "" {
			return ErrInvalidName
		}
		s.FriendlyName = *upd.FriendlyName
	}
	if upd.IsPubliclyListed != nil {
		s.IsPubliclyListed = *upd.IsPubliclyListed
	}
	return h.town.UpdateSettings(ctx, s)
}

// Delete verifies password, closes the town and forgets it.
func (m *Manager) Delete(townID, password string) error {
	h, err := m.authorize(townID, password)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.towns, townID)
	m.mu.Unlock()
	h.town.Close()
	m.unloadScripts(townID)
	m.logger.Info("town deleted", zap.String("town", townID))
	return nil
}

// StartConversation sets the topic of a conversation area on behalf of the
// player holding sessionToken.
func (m *Manager) StartConversation(ctx context.Context, townID, sessionToken, areaID, topic string) error {
	t, err := m.session(townID, sessionToken)
	if err != nil {
		return err
	}
	return t.StartConversation(ctx, areaID, topic)
}

// ChatHistory returns a town's retained chat for the player holding sessionToken.
func (m *Manager) ChatHistory(ctx context.Context, townID, sessionToken, interactableID string) ([]protocol.ChatMessage, error) {
	t, err := m.session(townID, sessionToken)
	if err != nil {
		return nil, err
	}
	return t.ChatHistory(ctx, interactableID)
}

// Leaderboards returns a town's all-time and connected-player leaderboards.
func (m *Manager) Leaderboards(ctx context.Context, townID string) (protocol.Leaderboards, error) {
	t, ok := m.Get(townID)
	if !ok {
		return protocol.Leaderboards{}, fmt.Errorf("%w: %s", ErrTownNotFound, townID)
	}
	return t.Leaderboards(ctx)
}

// Close closes every town.
func (m *Manager) Close() {
	m.mu.Lock()
	towns := m.towns
	m.towns = make(map[string]*hosted)
	m.mu.Unlock()
	for id, h := range towns {
		h.town.Close()
		m.unloadScripts(id)
	}
}

// loadScripts gives townID its own VM when the script directory has a
// towns/<mapName> subdirectory.
func (m *Manager) loadScripts(townID, mapName string) error {
	if m.deps.Scripts == nil || m.deps.ScriptDir == "" {
		return nil
	}
	dir := filepath.Join(m.deps.ScriptDir, "towns", mapName)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	if err := m.deps.Scripts.LoadTown(townID, dir, m.deps.ScriptLimit); err != nil {
		return fmt.Errorf("loading scripts for map %q: %w", mapName, err)
	}
	m.logger.Info("town scripts loaded", zap.String("town", townID), zap.String("dir", dir))
	return nil
}

func (m *Manager) unloadScripts(townID string) {
	if m.deps.Scripts != nil {
		m.deps.Scripts.Unload(townID)
	}
}

func (m *Manager) authorize(townID, password string) (*hosted, error) {
	m.mu.RLock()
	h, ok := m.towns[townID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTownNotFound, townID)
	}
	if !CheckPassword(password, h.passwordHash) {
		return nil, ErrInvalidPassword
	}
	return h, nil
}

func (m *Manager) session(townID, sessionToken string) (*Town, error) {
	t, ok := m.Get(townID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTownNotFound, townID)
	}
	if _, ok := t.PlayerBySessionToken(sessionToken); !ok {
		return nil, ErrInvalidSession
	}
	return t, nil
}

package world

import (
	"fmt"
	"sort"
	"sync"
)

// Manager provides thread-safe access to the loaded maps, keyed by name.
type Manager struct {
	mu         sync.RWMutex
	maps       map[string]*TownMap
	defaultMap string
}

// NewManager creates a Manager from the given maps.
//
// Precondition: maps must contain at least one map; the first is the default.
// Postcondition: Returns a Manager with all maps indexed by name, or an error on duplicate names.
func NewManager(maps []*TownMap) (*Manager, error) {
	if len(maps) == 0 {
		return nil, fmt.Errorf("world manager requires at least one map")
	}
	m := &Manager{maps: make(map[string]*TownMap, len(maps))}
	for _, tm := range maps {
		if _, exists := m.maps[tm.Name]; exists {
			return nil, fmt.Errorf("duplicate map name: %q", tm.Name)
		}
		m.maps[tm.Name] = tm
	}
	m.defaultMap = maps[0].Name
	return m, nil
}

// GetMap returns the map with the given name.
//
// Postcondition: Returns (map, true) if found, or (nil, false) otherwise.
func (m *Manager) GetMap(name string) (*TownMap, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tm, ok := m.maps[name]
	return tm, ok
}

// Resolve returns the named map, or the default map when name is empty.
//
// Postcondition: Returns a map or an error naming the unknown map.
func (m *Manager) Resolve(name string) (*TownMap, error) {
	if name == "" {
		name = m.defaultMap
	}
	tm, ok := m.GetMap(name)
	if !ok {
		return nil, fmt.Errorf("unknown map %q", name)
	}
	return tm, nil
}

// DefaultMap returns the first loaded map.
func (m *Manager) DefaultMap() *TownMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maps[m.defaultMap]
}

// MapNames returns every loaded map name, sorted.
func (m *Manager) MapNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.maps))
	for n := range m.maps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

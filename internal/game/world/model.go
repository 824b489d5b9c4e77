// Package world loads town map definitions: the named, axis-aligned interactable
// areas a town is built from.
package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/covey/internal/geom"
)

// ErrMapIntegrity marks a map definition the town must refuse to start with.
var ErrMapIntegrity = errors.New("map integrity violation")

// AreaType is the variant tag of an interactable area.
type AreaType string

// Area types as they appear in map definitions.
const (
	ConversationArea AreaType = "ConversationArea"
	ViewingArea      AreaType = "ViewingArea"
	GameArea         AreaType = "GameArea"
	TicTacToeArea    AreaType = "TicTacToeArea"
	ConnectFourArea  AreaType = "ConnectFourArea"
	PetShopArea      AreaType = "PetShopArea"
	InventoryArea    AreaType = "InventoryArea"
)

// Known reports whether t is a supported area type.
func (t AreaType) Known() bool {
	switch t {
	case ConversationArea, ViewingArea, GameArea, TicTacToeArea, ConnectFourArea, PetShopArea, InventoryArea:
		return true
	}
	return false
}

// AreaDef is one interactable area as declared in a map.
type AreaDef struct {
	// ID is stable across restarts and unique within a map.
	ID string
	// Type selects the area variant.
	Type AreaType
	// Box is the area's bounding box in map coordinates.
	Box geom.Box
	// Properties carries variant settings, e.g. "game" for GameArea or "topic"
	// for a conversation area with a fixed topic.
	Properties map[string]string
}

// TownMap is a parsed map definition.
type TownMap struct {
	// Name identifies the map; it defaults to the file's base name.
	Name string
	// Spawn is where the map suggests new players appear. Informational.
	Spawn geom.Point
	// Areas lists area definitions in declaration order.
	Areas []AreaDef
}

// Validate checks per-area structure: non-empty IDs, known types and
// positive boxes. Duplicate IDs and overlaps are rejected when the area
// registry is built.
//
// Postcondition: Returns nil if valid, or an error wrapping ErrMapIntegrity.
func (m *TownMap) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: map name must not be empty", ErrMapIntegrity)
	}
	for i, a := range m.Areas {
		if a.ID == "" {
			return fmt.Errorf("%w: map %q: area #%d has an empty id", ErrMapIntegrity, m.Name, i)
		}
		if !a.Type.Known() {
			return fmt.Errorf("%w: map %q: area %q has unknown type %q", ErrMapIntegrity, m.Name, a.ID, a.Type)
		}
		if err := a.Box.Validate(); err != nil {
			return fmt.Errorf("%w: map %q: area %q: %w", ErrMapIntegrity, m.Name, a.ID, err)
		}
	}
	return nil
}

// AreaIDs returns the sorted IDs of every declared area.
func (m *TownMap) AreaIDs() []string {
	ids := make([]string, 0, len(m.Areas))
	for _, a := range m.Areas {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids
}

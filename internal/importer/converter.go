package importer

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/geom"
)

// NameToID converts a display name to a stable snake_case identifier.
//
// Postcondition: result is lowercase, contains only [a-z0-9_], and is
// idempotent (NameToID(NameToID(s)) == NameToID(s)).
func NameToID(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FromTownMap converts a parsed map into MapData, normalising the map name
// and every area ID with NameToID.
//
// Postcondition: returns MapData whose areas have unique, non-empty IDs and
// pairwise disjoint boxes, or an error wrapping world.ErrMapIntegrity.
func FromTownMap(m *world.TownMap) (*MapData, error) {
	name := NameToID(m.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: map name %q has no usable characters", world.ErrMapIntegrity, m.Name)
	}
	md := &MapData{Town: TownSpec{Name: name, SpawnX: m.Spawn.X, SpawnY: m.Spawn.Y}}
	seen := make(map[string]geom.Box, len(m.Areas))
	for _, def := range m.Areas {
		id := NameToID(def.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: map %q: area name %q has no usable characters", world.ErrMapIntegrity, name, def.ID)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: map %q: duplicate area id %q", world.ErrMapIntegrity, name, id)
		}
		for other, box := range seen {
			if geom.Overlaps(box, def.Box) {
				return nil, fmt.Errorf("%w: map %q: area %q overlaps area %q", world.ErrMapIntegrity, name, id, other)
			}
		}
		seen[id] = def.Box
		var props map[string]string
		if len(def.Properties) > 0 {
			props = def.Properties
		}
		md.Town.Areas = append(md.Town.Areas, AreaSpec{
			ID:         id,
			Type:       string(def.Type),
			X:          def.Box.X,
			Y:          def.Box.Y,
			Width:      def.Box.Width,
			Height:     def.Box.Height,
			Properties: props,
		})
	}
	return md, nil
}

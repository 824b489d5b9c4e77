package area

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/covey/internal/game/games"
	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/geom"
	"github.com/cory-johannsen/covey/internal/storage"
)

// Registry owns the areas of one town. Areas never overlap, so at most one
// contains any point.
type Registry struct {
	areas []*Area
	byID  map[string]*Area
}

// NewRegistry validates and indexes areas.
//
// Postcondition: Returns a Registry, or an error wrapping world.ErrMapIntegrity
// on a duplicate ID or an overlapping pair. No partial registry is returned.
func NewRegistry(areas ...*Area) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Area, len(areas))}
	for _, a := range areas {
		if err := r.Add(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns the area with id.
func (r *Registry) Get(id string) (*Area, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Find returns the area containing pt, or nil.
func (r *Registry) Find(pt geom.Point) *Area {
	for _, a := range r.areas {
		if a.Box().Contains(pt) {
			return a
		}
	}
	return nil
}

// Areas returns every area in map order.
func (r *Registry) Areas() []*Area {
	return append([]*Area(nil), r.areas...)
}

// Len returns the number of areas.
func (r *Registry) Len() int { return len(r.areas) }

// Add registers a new area created at runtime.
//
// Postcondition: Returns an error wrapping world.ErrMapIntegrity if the area's ID
// is taken or its box overlaps an existing area; the registry is unchanged then.
func (r *Registry) Add(a *Area) error {
	if _, dup := r.byID[a.ID()]; dup {
		return fmt.Errorf("%w: duplicate area id %q", world.ErrMapIntegrity, a.ID())
	}
	for _, prev := range r.areas {
		if prev.Overlaps(a) {
			return fmt.Errorf("%w: area %q overlaps area %q", world.ErrMapIntegrity, a.ID(), prev.ID())
		}
	}
	r.byID[a.ID()] = a
	r.areas = append(r.areas, a)
	return nil
}

// Deps are the collaborators areas are built with.
type Deps struct {
	Pets    storage.PetStore
	Catalog storage.CatalogStore
	Signals *Signals
	// NewID mints game IDs. Nil keeps the default random IDs.
	NewID func() string
}

// Build constructs the registry for m.
//
// Precondition: deps.Signals must be non-nil; deps.Pets and deps.Catalog must be
// non-nil when m declares pet shop or inventory areas.
// Postcondition: Returns a registry holding every area of m, or an error. Map
// defects wrap world.ErrMapIntegrity.
func Build(ctx context.Context, m *world.TownMap, deps Deps) (*Registry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var catalog []storage.CatalogEntry
	areas := make([]*Area, 0, len(m.Areas))
	for _, def := range m.Areas {
		v, err := newVariant(ctx, def, deps, &catalog)
		if err != nil {
			return nil, err
		}
		a, err := New(def.ID, def.Box, v, deps.Signals)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", world.ErrMapIntegrity, err)
		}
		areas = append(areas, a)
	}
	return NewRegistry(areas...)
}

func newVariant(ctx context.Context, def world.AreaDef, deps Deps, catalog *[]storage.CatalogEntry) (Variant, error) {
	switch def.Type {
	case world.ConversationArea:
		return NewConversation(def.Properties["topic"]), nil
	case world.ViewingArea:
		return NewViewing(), nil
	case world.GameArea, world.TicTacToeArea, world.ConnectFourArea:
		kindName := def.Properties["game"]
		if def.Type != world.GameArea {
			kindName = string(def.Type)
		}
		kind, err := games.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("%w: area %q: %w", world.ErrMapIntegrity, def.ID, err)
		}
		g := NewGame(kind)
		if deps.NewID != nil {
			g.newID = deps.NewID
		}
		return g, nil
	case world.PetShopArea:
		if deps.Pets == nil || deps.Catalog == nil {
			return nil, fmt.Errorf("area %q: pet shop requires a pet store and catalog", def.ID)
		}
		if *catalog == nil {
			entries, err := deps.Catalog.Catalog(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading pet catalog: %w", err)
			}
			*catalog = entries
		}
		return NewPetShop(deps.Pets, *catalog), nil
	case world.InventoryArea:
		if deps.Pets == nil || deps.Catalog == nil {
			return nil, fmt.Errorf("area %q: inventory requires a pet store and catalog", def.ID)
		}
		return NewInventory(deps.Pets, deps.Catalog), nil
	}
	return nil, fmt.Errorf("%w: area %q has unknown type %q", world.ErrMapIntegrity, def.ID, def.Type)
}

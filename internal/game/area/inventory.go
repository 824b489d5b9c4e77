package area

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
)

// Inventory lets occupants equip and unequip the pets they own.
type Inventory struct {
	pets     storage.PetStore
	catalog  storage.CatalogStore
	handlers map[protocol.CommandType]Handler
}

// NewInventory creates an inventory variant.
//
// Precondition: pets and catalog must be non-nil.
func NewInventory(pets storage.PetStore, catalog storage.CatalogStore) *Inventory {
	inv := &Inventory{pets: pets, catalog: catalog}
	inv.handlers = map[protocol.CommandType]Handler{
		protocol.CmdEquipPet:   inv.equipPet,
		protocol.CmdUnequipPet: inv.unequipPet,
	}
	return inv
}

func (inv *Inventory) Type() string { return "InventoryArea" }

func (inv *Inventory) Handlers() map[protocol.CommandType]Handler { return inv.handlers }

func (inv *Inventory) State() any { return nil }

func (inv *Inventory) Update(*Area, *session.Player, json.RawMessage) error {
	return NotApplicable("inventory areas cannot be updated")
}

func (inv *Inventory) Leave(*Area, *session.Player) {}

func (inv *Inventory) Reset() {}

// equipPet equips one owned pet. The store unequips the others in the same
// transaction, so a player never has two equipped pets.
func (inv *Inventory) equipPet(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.EquipPet
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if req.PetType == "" {
		return Reply{}, InvalidParameters("petType is required")
	}
	playerID, petType := p.ID, req.PetType
	return Reply{Deferred: &Deferred{
		Key: playerID,
		Run: func(ctx context.Context) (Completion, error) {
			if _, err := inv.pets.EquipPet(ctx, playerID, petType); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return notOwned(petType), nil
				}
				return nil, fmt.Errorf("equipping %s for %s: %w", petType, playerID, err)
			}
			var sprite string
			if entry, err := inv.catalog.CatalogEntry(ctx, petType); err == nil {
				sprite = entry.SpriteID
			}
			return func() (any, error) {
				a.signals.PetEquipped.Publish(protocol.EquippedPet{
					Type:     petType,
					PlayerID: playerID,
					SpriteID: sprite,
				})
				return nil, nil
			}, nil
		},
	}}, nil
}

func (inv *Inventory) unequipPet(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.UnequipPet
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if req.PetType == "" {
		return Reply{}, InvalidParameters("petType is required")
	}
	playerID, petType := p.ID, req.PetType
	return Reply{Deferred: &Deferred{
		Key: playerID,
		Run: func(ctx context.Context) (Completion, error) {
			if err := inv.pets.UnequipPet(ctx, playerID, petType); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return notOwned(petType), nil
				}
				return nil, fmt.Errorf("unequipping %s for %s: %w", petType, playerID, err)
			}
			return func() (any, error) {
				a.signals.PetUnequipped.Publish(protocol.PetUnequipped{Type: petType, PlayerID: playerID})
				return nil, nil
			}, nil
		},
	}}, nil
}

func notOwned(petType string) Completion {
	return func() (any, error) {
		return nil, InvalidParameters("you do not own a %s", petType)
	}
}

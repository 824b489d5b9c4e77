package area

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/covey/internal/game/session"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
)

// PetShopState is the snapshot of a pet shop.
type PetShopState struct {
	Catalog []storage.CatalogEntry `json:"catalog"`
}

// PetShop sells pets from the catalog. Purchases run against the store off
// the event loop, serialized per player.
type PetShop struct {
	pets     storage.PetStore
	catalog  map[string]storage.CatalogEntry
	handlers map[protocol.CommandType]Handler
}

// NewPetShop creates a pet shop variant offering entries.
//
// Precondition: pets must be non-nil.
func NewPetShop(pets storage.PetStore, entries []storage.CatalogEntry) *PetShop {
	s := &PetShop{pets: pets, catalog: make(map[string]storage.CatalogEntry, len(entries))}
	for _, e := range entries {
		s.catalog[e.Type] = e
	}
	s.handlers = map[protocol.CommandType]Handler{
		protocol.CmdAdoptPet: s.adoptPet,
	}
	return s
}

func (s *PetShop) Type() string { return "PetShopArea" }

func (s *PetShop) Handlers() map[protocol.CommandType]Handler { return s.handlers }

func (s *PetShop) State() any {
	st := PetShopState{Catalog: make([]storage.CatalogEntry, 0, len(s.catalog))}
	for _, e := range s.catalog {
		st.Catalog = append(st.Catalog, e)
	}
	sort.Slice(st.Catalog, func(i, j int) bool { return st.Catalog[i].Type < st.Catalog[j].Type })
	return st
}

func (s *PetShop) Update(*Area, *session.Player, json.RawMessage) error {
	return NotApplicable("pet shops cannot be updated")
}

func (s *PetShop) Leave(*Area, *session.Player) {}

func (s *PetShop) Reset() {}

func (s *PetShop) adoptPet(a *Area, p *session.Player, cmd protocol.Command) (Reply, error) {
	var req protocol.AdoptPet
	if err := decode(cmd, &req); err != nil {
		return Reply{}, err
	}
	if _, ok := s.catalog[req.PetType]; !ok {
		return Reply{}, InvalidParameters("unknown pet type %q", req.PetType)
	}
	playerID, petType := p.ID, req.PetType
	return Reply{Deferred: &Deferred{
		Key: playerID,
		Run: func(ctx context.Context) (Completion, error) {
			adoption, err := s.pets.AdoptPet(ctx, playerID, petType)
			switch {
			case errors.Is(err, storage.ErrInsufficientFunds):
				return func() (any, error) {
					a.signals.Notices.Publish(Notice{
						PlayerID: playerID,
						Event:    protocol.EventInsufficientCurrency,
						Payload: protocol.InsufficientCurrency{
							PlayerID: playerID,
							PetType:  petType,
							Price:    adoption.Price,
							Balance:  adoption.Balance,
						},
					})
					return nil, nil
				}, nil
			case errors.Is(err, storage.ErrAlreadyOwned):
				return func() (any, error) {
					return nil, InvalidParameters("you already own a %s", petType)
				}, nil
			case err != nil:
				return nil, fmt.Errorf("adopting %s for %s: %w", petType, playerID, err)
			}
			return func() (any, error) {
				if e, ok := s.catalog[petType]; ok {
					e.Popularity++
					s.catalog[petType] = e
				}
				a.signals.Notices.Publish(Notice{
					PlayerID: playerID,
					Event:    protocol.EventCurrencyChanged,
					Payload:  protocol.CurrencyChanged{PlayerID: playerID, Balance: adoption.Balance},
				})
				a.Changed()
				return nil, nil
			}, nil
		},
	}}, nil
}

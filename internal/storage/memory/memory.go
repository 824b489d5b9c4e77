// Package memory provides an in-process storage.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/covey/internal/storage"
)

// Store is a mutex-guarded map implementation of storage.Store.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	balances map[string]int64
	catalog  map[string]storage.CatalogEntry
	pets     map[string]map[string]*storage.Pet // playerID → type → pet
	awards   map[string]string                  // gameID → playerID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		balances: make(map[string]int64),
		catalog:  make(map[string]storage.CatalogEntry),
		pets:     make(map[string]map[string]*storage.Pet),
		awards:   make(map[string]string),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Health always succeeds.
func (s *Store) Health(context.Context, time.Duration) error { return nil }

func (s *Store) CreateAccount(_ context.Context, playerID string, initial int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[playerID]; !ok {
		s.balances[playerID] = initial
	}
	return nil
}

func (s *Store) Balance(_ context.Context, playerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[playerID]
	if !ok {
		return 0, fmt.Errorf("balance for %q: %w", playerID, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) SetBalance(_ context.Context, playerID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[playerID] = balance
	return nil
}

func (s *Store) Leaderboard(_ context.Context, n int) ([]storage.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.LeaderboardEntry, 0, len(s.balances))
	for id, b := range s.balances {
		out = append(out, storage.LeaderboardEntry{PlayerID: id, Balance: b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) CatalogEntry(_ context.Context, petType string) (storage.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.catalog[petType]
	if !ok {
		return storage.CatalogEntry{}, fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Catalog(_ context.Context) ([]storage.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.CatalogEntry, 0, len(s.catalog))
	for _, e := range s.catalog {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) UpsertCatalogEntry(_ context.Context, e storage.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.catalog[e.Type]; ok {
		e.Popularity = prev.Popularity
	}
	s.catalog[e.Type] = e
	return nil
}

func (s *Store) IncrementPopularity(_ context.Context, petType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.catalog[petType]
	if !ok {
		return fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
	}
	e.Popularity++
	s.catalog[petType] = e
	return nil
}

func (s *Store) Pets(_ context.Context, playerID string) ([]storage.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.pets[playerID]
	out := make([]storage.Pet, 0, len(owned))
	for _, p := range owned {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) AdoptPet(_ context.Context, playerID, petType string) (storage.Adoption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.catalog[petType]
	if !ok {
		return storage.Adoption{}, fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
	}
	balance := s.balances[playerID]
	if _, owned := s.pets[playerID][petType]; owned {
		return storage.Adoption{Price: e.Price, Balance: balance}, storage.ErrAlreadyOwned
	}
	if balance < e.Price {
		return storage.Adoption{Price: e.Price, Balance: balance}, storage.ErrInsufficientFunds
	}

	balance -= e.Price
	s.balances[playerID] = balance
	if s.pets[playerID] == nil {
		s.pets[playerID] = make(map[string]*storage.Pet)
	}
	pet := &storage.Pet{Type: petType, PlayerID: playerID}
	s.pets[playerID][petType] = pet
	e.Popularity++
	s.catalog[petType] = e
	return storage.Adoption{Pet: *pet, Price: e.Price, Balance: balance}, nil
}

func (s *Store) EquipPet(_ context.Context, playerID, petType string) (storage.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.pets[playerID]
	target, ok := owned[petType]
	if !ok {
		return storage.Pet{}, fmt.Errorf("pet %q of %q: %w", petType, playerID, storage.ErrNotFound)
	}
	for _, p := range owned {
		p.Equipped = false
	}
	target.Equipped = true
	return *target, nil
}

func (s *Store) UnequipPet(_ context.Context, playerID, petType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pets[playerID][petType]
	if !ok {
		return fmt.Errorf("pet %q of %q: %w", petType, playerID, storage.ErrNotFound)
	}
	p.Equipped = false
	return nil
}

func (s *Store) AwardOnce(_ context.Context, gameID, playerID string, amount int64) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.awards[gameID]; done {
		return false, s.balances[playerID], nil
	}
	s.balances[playerID] += amount
	s.awards[gameID] = playerID
	return true, s.balances[playerID], nil
}

func (s *Store) Awarded(_ context.Context, gameID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.awards[gameID]
	return done, nil
}

var _ storage.Store = (*Store)(nil)

// Package storage defines the persistence contracts the town depends on: player
// currency, the pet catalog, pet ownership and the game award ledger.
//
// Implementations live in the memory, postgres and sqlite subpackages. Every
// composite operation (AdoptPet, EquipPet, AwardOnce) is atomic: it either
// applies completely or not at all.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors shared by every implementation.
var (
	// ErrNotFound is returned when a player, pet or catalog entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds is returned by AdoptPet when the balance is below the price.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadyOwned is returned by AdoptPet when the player already owns the pet type.
	ErrAlreadyOwned = errors.New("pet already owned")
)

// CatalogEntry describes an adoptable pet type.
type CatalogEntry struct {
	Type       string  `json:"type" yaml:"type"`
	Price      int64   `json:"price" yaml:"price"`
	Popularity int64   `json:"popularity" yaml:"popularity"`
	SpriteID   string  `json:"spriteID" yaml:"sprite_id"`
	Speed      float64 `json:"speed" yaml:"speed"`
}

// Pet is one pet owned by a player.
type Pet struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerID"`
	Equipped bool   `json:"equipped"`
}

// LeaderboardEntry is one row of the currency leaderboard.
type LeaderboardEntry struct {
	PlayerID string `json:"playerID"`
	Balance  int64  `json:"balance"`
}

// Adoption reports the outcome of AdoptPet. On ErrInsufficientFunds it carries
// the price and the unchanged balance.
type Adoption struct {
	Pet     Pet
	Price   int64
	Balance int64
}

// CurrencyStore holds player balances.
type CurrencyStore interface {
	// CreateAccount records a balance for playerID unless one already exists.
	CreateAccount(ctx context.Context, playerID string, initial int64) error
	// Balance returns the player's balance or ErrNotFound.
	Balance(ctx context.Context, playerID string) (int64, error)
	// SetBalance overwrites the player's balance, creating the account if needed.
	SetBalance(ctx context.Context, playerID string, balance int64) error
	// Leaderboard returns the top n balances, highest first.
	Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error)
}

// CatalogStore holds the adoptable pet types.
type CatalogStore interface {
	// CatalogEntry returns the entry for petType or ErrNotFound.
	CatalogEntry(ctx context.Context, petType string) (CatalogEntry, error)
	// Catalog returns every entry ordered by type.
	Catalog(ctx context.Context) ([]CatalogEntry, error)
	// UpsertCatalogEntry inserts or replaces an entry, keeping its popularity.
	UpsertCatalogEntry(ctx context.Context, e CatalogEntry) error
	// IncrementPopularity adds one to petType's popularity counter.
	IncrementPopularity(ctx context.Context, petType string) error
}

// PetStore holds pet ownership.
type PetStore interface {
	// Pets returns the pets owned by playerID ordered by type.
	Pets(ctx context.Context, playerID string) ([]Pet, error)
	// AdoptPet debits the catalog price, records an unequipped pet and increments
	// the type's popularity. It returns ErrInsufficientFunds or ErrAlreadyOwned
	// without changing anything.
	AdoptPet(ctx context.Context, playerID, petType string) (Adoption, error)
	// EquipPet unequips every other pet of playerID and equips petType.
	// It returns ErrNotFound if the player does not own petType.
	EquipPet(ctx context.Context, playerID, petType string) (Pet, error)
	// UnequipPet unequips petType. It returns ErrNotFound if the player does not own it.
	UnequipPet(ctx context.Context, playerID, petType string) error
}

// AwardStore is the durable game award ledger.
type AwardStore interface {
	// AwardOnce credits amount to playerID and marks gameID awarded, unless
	// gameID is already marked. awarded reports whether this call credited.
	AwardOnce(ctx context.Context, gameID, playerID string, amount int64) (awarded bool, balance int64, err error)
	// Awarded reports whether gameID has been marked.
	Awarded(ctx context.Context, gameID string) (bool, error)
}

// Store is the full persistence surface used by a town server.
type Store interface {
	CurrencyStore
	CatalogStore
	PetStore
	AwardStore
	Close() error
}

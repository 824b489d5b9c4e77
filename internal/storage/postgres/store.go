package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/storage"
)

// Store implements storage.Store on PostgreSQL. Composite operations run in a
// single transaction and lock the rows they read.
type Store struct {
	db *pgxpool.Pool
}

// NewStore wraps an existing pool. The Store takes ownership of db and
// closes it.
//
// Precondition: db must be connected and migrated.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Open connects to the database described by cfg and checks it answers.
//
// Precondition: cfg must describe a reachable, migrated database.
// Postcondition: Returns a ready Store or a connection error; no pool is
// left open on error.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database %s: %w", cfg.Name, err)
	}
	return NewStore(db), nil
}

// poolConfig translates the database settings into pgx pool limits.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return poolCfg, nil
}

// DB exposes the pool to maintenance tooling.
func (s *Store) DB() *pgxpool.Pool {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// Health checks that the database responds within timeout.
//
// Postcondition: Returns nil, or an error naming the timeout the ping missed.
func (s *Store) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health within %s: %w", timeout, err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, playerID string, initial int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO player_currency (player_id, balance) VALUES ($1, $2)
		 ON CONFLICT (player_id) DO NOTHING`,
		playerID, initial,
	)
	if err != nil {
		return fmt.Errorf("creating account %q: %w", playerID, err)
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`SELECT balance FROM player_currency WHERE player_id = $1`, playerID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("balance for %q: %w", playerID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, playerID string, balance int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO player_currency (player_id, balance) VALUES ($1, $2)
		 ON CONFLICT (player_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`,
		playerID, balance,
	)
	if err != nil {
		return fmt.Errorf("setting balance for %q: %w", playerID, err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, n int) ([]storage.LeaderboardEntry, error) {
	if n <= 0 {
		n = math.MaxInt32
	}
	rows, err := s.db.Query(ctx,
		`SELECT player_id, balance FROM player_currency
		 ORDER BY balance DESC, player_id LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.LeaderboardEntry, error) {
		var e storage.LeaderboardEntry
		err := row.Scan(&e.PlayerID, &e.Balance)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning leaderboard: %w", err)
	}
	return out, nil
}

func (s *Store) CatalogEntry(ctx context.Context, petType string) (storage.CatalogEntry, error) {
	var e storage.CatalogEntry
	err := s.db.QueryRow(ctx,
		`SELECT pet_type, price, popularity, sprite_id, speed FROM pet_catalog WHERE pet_type = $1`,
		petType,
	).Scan(&e.Type, &e.Price, &e.Popularity, &e.SpriteID, &e.Speed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.CatalogEntry{}, fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
		}
		return storage.CatalogEntry{}, fmt.Errorf("querying catalog entry: %w", err)
	}
	return e, nil
}

func (s *Store) Catalog(ctx context.Context) ([]storage.CatalogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pet_type, price, popularity, sprite_id, speed FROM pet_catalog ORDER BY pet_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.CatalogEntry, error) {
		var e storage.CatalogEntry
		err := row.Scan(&e.Type, &e.Price, &e.Popularity, &e.SpriteID, &e.Speed)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning catalog: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertCatalogEntry(ctx context.Context, e storage.CatalogEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO pet_catalog (pet_type, price, popularity, sprite_id, speed)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (pet_type) DO UPDATE
		 SET price = EXCLUDED.price, sprite_id = EXCLUDED.sprite_id, speed = EXCLUDED.speed`,
		e.Type, e.Price, e.Popularity, e.SpriteID, e.Speed,
	)
	if err != nil {
		return fmt.Errorf("upserting catalog entry %q: %w", e.Type, err)
	}
	return nil
}

func (s *Store) IncrementPopularity(ctx context.Context, petType string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE pet_catalog SET popularity = popularity + 1 WHERE pet_type = $1`, petType,
	)
	if err != nil {
		return fmt.Errorf("incrementing popularity of %q: %w", petType, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) Pets(ctx context.Context, playerID string) ([]storage.Pet, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pet_type, player_id, equipped FROM player_pets WHERE player_id = $1 ORDER BY pet_type`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Pet, error) {
		var p storage.Pet
		err := row.Scan(&p.Type, &p.PlayerID, &p.Equipped)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning pets: %w", err)
	}
	return out, nil
}

// AdoptPet debits the price, records the pet and bumps popularity in one
// transaction. The balance row is locked so concurrent purchases serialize.
func (s *Store) AdoptPet(ctx context.Context, playerID, petType string) (storage.Adoption, error) {
	var res storage.Adoption
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT price FROM pet_catalog WHERE pet_type = $1`, petType,
		).Scan(&res.Price); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
			}
			return fmt.Errorf("querying price: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_currency (player_id, balance) VALUES ($1, 0)
			 ON CONFLICT (player_id) DO NOTHING`, playerID,
		); err != nil {
			return fmt.Errorf("ensuring account: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM player_currency WHERE player_id = $1 FOR UPDATE`, playerID,
		).Scan(&res.Balance); err != nil {
			return fmt.Errorf("locking balance: %w", err)
		}
		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM player_pets WHERE player_id = $1 AND pet_type = $2)`,
			playerID, petType,
		).Scan(&owned); err != nil {
			return fmt.Errorf("checking ownership: %w", err)
		}
		if owned {
			return storage.ErrAlreadyOwned
		}
		if res.Balance < res.Price {
			return storage.ErrInsufficientFunds
		}
		res.Balance -= res.Price
		if _, err := tx.Exec(ctx,
			`UPDATE player_currency SET balance = $2, updated_at = NOW() WHERE player_id = $1`,
			playerID, res.Balance,
		); err != nil {
			return fmt.Errorf("debiting balance: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_pets (player_id, pet_type) VALUES ($1, $2)`, playerID, petType,
		); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrAlreadyOwned
			}
			return fmt.Errorf("recording pet: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE pet_catalog SET popularity = popularity + 1 WHERE pet_type = $1`, petType,
		); err != nil {
			return fmt.Errorf("incrementing popularity: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) || errors.Is(err, storage.ErrAlreadyOwned) {
			return storage.Adoption{Price: res.Price, Balance: res.Balance}, err
		}
		return storage.Adoption{}, err
	}
	res.Pet = storage.Pet{Type: petType, PlayerID: playerID}
	return res, nil
}

// EquipPet locks the player's pets, unequips them all and equips petType.
func (s *Store) EquipPet(ctx context.Context, playerID, petType string) (storage.Pet, error) {
	pet := storage.Pet{Type: petType, PlayerID: playerID, Equipped: true}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT 1 FROM player_pets WHERE player_id = $1 FOR UPDATE`, playerID,
		); err != nil {
			return fmt.Errorf("locking pets: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE player_pets SET equipped = FALSE WHERE player_id = $1 AND equipped`, playerID,
		); err != nil {
			return fmt.Errorf("unequipping pets: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE player_pets SET equipped = TRUE WHERE player_id = $1 AND pet_type = $2`,
			playerID, petType,
		)
		if err != nil {
			return fmt.Errorf("equipping pet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("pet %q of %q: %w", petType, playerID, storage.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return storage.Pet{}, err
	}
	return pet, nil
}

func (s *Store) UnequipPet(ctx context.Context, playerID, petType string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE player_pets SET equipped = FALSE WHERE player_id = $1 AND pet_type = $2`,
		playerID, petType,
	)
	if err != nil {
		return fmt.Errorf("unequipping pet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pet %q of %q: %w", petType, playerID, storage.ErrNotFound)
	}
	return nil
}

// AwardOnce marks gameID and credits the winner in one transaction. A second
// call for the same gameID blocks on the first insert and then does nothing.
func (s *Store) AwardOnce(ctx context.Context, gameID, playerID string, amount int64) (bool, int64, error) {
	var (
		awarded bool
		balance int64
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO game_awards (game_id, player_id, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (game_id) DO NOTHING`,
			gameID, playerID, amount,
		)
		if err != nil {
			return fmt.Errorf("marking game %q: %w", gameID, err)
		}
		if tag.RowsAffected() == 0 {
			err := tx.QueryRow(ctx,
				`SELECT COALESCE((SELECT balance FROM player_currency WHERE player_id = $1), 0)`, playerID,
			).Scan(&balance)
			if err != nil {
				return fmt.Errorf("querying balance: %w", err)
			}
			return nil
		}
		awarded = true
		err = tx.QueryRow(ctx,
			`INSERT INTO player_currency (player_id, balance) VALUES ($1, $2)
			 ON CONFLICT (player_id) DO UPDATE
			 SET balance = player_currency.balance + EXCLUDED.balance, updated_at = NOW()
			 RETURNING balance`,
			playerID, amount,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("crediting %q: %w", playerID, err)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return awarded, balance, nil
}

func (s *Store) Awarded(ctx context.Context, gameID string) (bool, error) {
	var done bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM game_awards WHERE game_id = $1)`, gameID,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("querying award for %q: %w", gameID, err)
	}
	return done, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

var _ storage.Store = (*Store)(nil)

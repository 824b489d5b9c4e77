// Package sqlite provides a single-file storage.Store for small deployments,
// backed by the pure-Go modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/sqlite/migrations"
)

// Store persists town economy state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at path and applies embedded migrations.
//
// Precondition: path must be non-empty.
// Postcondition: Returns a migrated Store or an error; no handle leaks on failure.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Health checks that the database answers within timeout.
func (s *Store) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, playerID string, initial int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO player_currency (player_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (player_id) DO NOTHING`,
		playerID, initial, nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("creating account %q: %w", playerID, err)
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT balance FROM player_currency WHERE player_id = ?`, playerID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("balance for %q: %w", playerID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, playerID string, balance int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO player_currency (player_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (player_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		playerID, balance, nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("setting balance for %q: %w", playerID, err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, n int) ([]storage.LeaderboardEntry, error) {
	if n <= 0 {
		n = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, balance FROM player_currency ORDER BY balance DESC, player_id LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()
	var out []storage.LeaderboardEntry
	for rows.Next() {
		var e storage.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Balance); err != nil {
			return nil, fmt.Errorf("scanning leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CatalogEntry(ctx context.Context, petType string) (storage.CatalogEntry, error) {
	var e storage.CatalogEntry
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT pet_type, price, popularity, sprite_id, speed FROM pet_catalog WHERE pet_type = ?`, petType,
	).Scan(&e.Type, &e.Price, &e.Popularity, &e.SpriteID, &e.Speed)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CatalogEntry{}, fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
	}
	if err != nil {
		return storage.CatalogEntry{}, fmt.Errorf("querying catalog entry: %w", err)
	}
	return e, nil
}

func (s *Store) Catalog(ctx context.Context) ([]storage.CatalogEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT pet_type, price, popularity, sprite_id, speed FROM pet_catalog ORDER BY pet_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()
	var out []storage.CatalogEntry
	for rows.Next() {
		var e storage.CatalogEntry
		if err := rows.Scan(&e.Type, &e.Price, &e.Popularity, &e.SpriteID, &e.Speed); err != nil {
			return nil, fmt.Errorf("scanning catalog: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCatalogEntry(ctx context.Context, e storage.CatalogEntry) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pet_catalog (pet_type, price, popularity, sprite_id, speed) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (pet_type) DO UPDATE
		 SET price = excluded.price, sprite_id = excluded.sprite_id, speed = excluded.speed`,
		e.Type, e.Price, e.Popularity, e.SpriteID, e.Speed,
	)
	if err != nil {
		return fmt.Errorf("upserting catalog entry %q: %w", e.Type, err)
	}
	return nil
}

func (s *Store) IncrementPopularity(ctx context.Context, petType string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE pet_catalog SET popularity = popularity + 1 WHERE pet_type = ?`, petType,
	)
	if err != nil {
		return fmt.Errorf("incrementing popularity of %q: %w", petType, err)
	}
	return requireRow(res, fmt.Sprintf("catalog entry %q", petType))
}

func (s *Store) Pets(ctx context.Context, playerID string) ([]storage.Pet, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT pet_type, player_id, equipped FROM player_pets WHERE player_id = ? ORDER BY pet_type`, playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pets: %w", err)
	}
	defer rows.Close()
	out := []storage.Pet{}
	for rows.Next() {
		var p storage.Pet
		if err := rows.Scan(&p.Type, &p.PlayerID, &p.Equipped); err != nil {
			return nil, fmt.Errorf("scanning pets: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AdoptPet(ctx context.Context, playerID, petType string) (storage.Adoption, error) {
	var res storage.Adoption
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT price FROM pet_catalog WHERE pet_type = ?`, petType).Scan(&res.Price)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("catalog entry %q: %w", petType, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("querying price: %w", err)
		}
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE((SELECT balance FROM player_currency WHERE player_id = ?), 0)`, playerID,
		).Scan(&res.Balance)
		if err != nil {
			return fmt.Errorf("querying balance: %w", err)
		}
		var owned bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM player_pets WHERE player_id = ? AND pet_type = ?)`, playerID, petType,
		).Scan(&owned)
		if err != nil {
			return fmt.Errorf("checking ownership: %w", err)
		}
		if owned {
			return storage.ErrAlreadyOwned
		}
		if res.Balance < res.Price {
			return storage.ErrInsufficientFunds
		}
		now := nowMillis()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_currency (player_id, balance, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (player_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
			playerID, res.Balance-res.Price, now,
		); err != nil {
			return fmt.Errorf("debiting balance: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_pets (player_id, pet_type, equipped, adopted_at) VALUES (?, ?, 0, ?)`,
			playerID, petType, now,
		); err != nil {
			if isConstraintError(err) {
				return storage.ErrAlreadyOwned
			}
			return fmt.Errorf("recording pet: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pet_catalog SET popularity = popularity + 1 WHERE pet_type = ?`, petType,
		); err != nil {
			return fmt.Errorf("incrementing popularity: %w", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds), errors.Is(err, storage.ErrAlreadyOwned):
		return storage.Adoption{Price: res.Price, Balance: res.Balance}, err
	case err != nil:
		return storage.Adoption{}, err
	}
	return storage.Adoption{
		Pet:     storage.Pet{Type: petType, PlayerID: playerID},
		Price:   res.Price,
		Balance: res.Balance - res.Price,
	}, nil
}

func (s *Store) EquipPet(ctx context.Context, playerID, petType string) (storage.Pet, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE player_pets SET equipped = 0 WHERE player_id = ? AND equipped = 1`, playerID,
		); err != nil {
			return fmt.Errorf("unequipping pets: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE player_pets SET equipped = 1 WHERE player_id = ? AND pet_type = ?`, playerID, petType,
		)
		if err != nil {
			return fmt.Errorf("equipping pet: %w", err)
		}
		return requireRow(res, fmt.Sprintf("pet %q of %q", petType, playerID))
	})
	if err != nil {
		return storage.Pet{}, err
	}
	return storage.Pet{Type: petType, PlayerID: playerID, Equipped: true}, nil
}

func (s *Store) UnequipPet(ctx context.Context, playerID, petType string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE player_pets SET equipped = 0 WHERE player_id = ? AND pet_type = ?`, playerID, petType,
	)
	if err != nil {
		return fmt.Errorf("unequipping pet: %w", err)
	}
	return requireRow(res, fmt.Sprintf("pet %q of %q", petType, playerID))
}

func (s *Store) AwardOnce(ctx context.Context, gameID, playerID string, amount int64) (bool, int64, error) {
	var (
		awarded bool
		balance int64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMillis()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO game_awards (game_id, player_id, amount, awarded_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (game_id) DO NOTHING`,
			gameID, playerID, amount, now,
		)
		if err != nil {
			return fmt.Errorf("marking game %q: %w", gameID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("marking game %q: %w", gameID, err)
		}
		if n == 1 {
			awarded = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO player_currency (player_id, balance, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT (player_id) DO UPDATE
				 SET balance = player_currency.balance + excluded.balance, updated_at = excluded.updated_at`,
				playerID, amount, now,
			); err != nil {
				return fmt.Errorf("crediting %q: %w", playerID, err)
			}
		}
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE((SELECT balance FROM player_currency WHERE player_id = ?), 0)`, playerID,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("querying balance: %w", err)
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
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM game_awards WHERE game_id = ?)`, gameID,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("querying award for %q: %w", gameID, err)
	}
	return done, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)

// Package backend opens the storage.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/memory"
	"github.com/cory-johannsen/covey/internal/storage/postgres"
	"github.com/cory-johannsen/covey/internal/storage/sqlite"
)

// Store is a storage.Store that can report its health.
type Store interface {
	storage.Store
	Health(ctx context.Context, timeout time.Duration) error
}

// Open connects to the configured driver. The postgres schema must already be
// migrated with cmd/migrate; sqlite applies its embedded migrations on open.
//
// Precondition: cfg must have passed config validation.
// Postcondition: Returns an open Store or a non-nil error.
func Open(ctx context.Context, cfg config.StoreConfig, db config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	start := time.Now()
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "memory":
		s = memory.New()
	case "postgres":
		s, err = postgres.Open(ctx, db)
	case "sqlite":
		s, err = sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	logger.Info("store opened",
		zap.String("driver", cfg.Driver),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

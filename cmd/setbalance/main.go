// Package main provides a CLI tool for setting player balances and printing
// the currency leaderboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/backend"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	playerID := flag.String("player", "", "target player ID")
	balance := flag.Int64("balance", -1, "balance to assign (required with -player)")
	top := flag.Int("top", 0, "print the top N balances")
	flag.Parse()

	if (*playerID == "" && *top <= 0) || (*playerID != "" && *balance < 0) {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Store.Driver == "memory" {
		log.Fatalf("store driver %q does not persist balances", cfg.Store.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := backend.Open(ctx, cfg.Store, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	if *playerID != "" {
		prev, err := store.Balance(ctx, *playerID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Fatalf("reading balance: %v", err)
		}
		if err := store.SetBalance(ctx, *playerID, *balance); err != nil {
			log.Fatalf("setting balance: %v", err)
		}
		fmt.Fprintf(os.Stdout, "set balance for %s: %d -> %d [%s]\n",
			*playerID, prev, *balance, time.Since(start))
	}

	if *top > 0 {
		rows, err := store.Leaderboard(ctx, *top)
		if err != nil {
			log.Fatalf("reading leaderboard: %v", err)
		}
		for i, row := range rows {
			fmt.Fprintf(os.Stdout, "%3d  %-36s  %d\n", i+1, row.PlayerID, row.Balance)
		}
	}
}

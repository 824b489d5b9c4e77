// Package main converts external map exports into native map files and seeds
// the pet catalog into the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/importer"
	"github.com/cory-johannsen/covey/internal/storage/backend"
)

func main() {
	format := flag.String("format", "tiled", "map source format: tiled")
	sourceDir := flag.String("source", "", "path to map export directory")
	outputDir := flag.String("output", "", "path to output map directory")
	catalogPath := flag.String("catalog", "", "pet catalog YAML to seed into the store")
	configPath := flag.String("config", "configs/dev.yaml", "configuration file selecting the store for -catalog")
	flag.Parse()

	doMaps := *sourceDir != "" || *outputDir != ""
	if (!doMaps && *catalogPath == "") || (doMaps && (*sourceDir == "" || *outputDir == "")) {
		fmt.Fprintln(os.Stderr, "usage: import-content [-format <fmt> -source <dir> -output <dir>] [-catalog <file> -config <file>]")
		os.Exit(1)
	}

	start := time.Now()
	if doMaps {
		var src importer.Source
		switch *format {
		case "tiled":
			src = importer.NewTiledSource()
		default:
			fmt.Fprintf(os.Stderr, "unknown format %q (supported: tiled)\n", *format)
			os.Exit(1)
		}
		if err := importer.New(src, os.Stdout).Run(*sourceDir, *outputDir); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	if *catalogPath != "" {
		if err := seed(*configPath, *catalogPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("import complete in %s\n", time.Since(start).Round(time.Millisecond))
}

func seed(configPath, catalogPath string) error {
	entries, err := importer.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("store driver %q does not persist; nothing to seed", cfg.Store.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := backend.Open(ctx, cfg.Store, cfg.Database, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := importer.SeedCatalog(ctx, store, entries)
	if err != nil {
		return err
	}
	fmt.Printf("seeded  %d catalog entr(ies) into %s store\n", n, cfg.Store.Driver)
	return nil
}

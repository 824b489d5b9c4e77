package importer

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/covey/internal/storage"
)

// catalogFile is the YAML layout of a pet catalog seed file.
type catalogFile struct {
	Pets []storage.CatalogEntry `yaml:"pets"`
}

// LoadCatalog reads a pet catalog seed file.
//
// Precondition: path must point to a YAML file with a top-level pets list.
// Postcondition: Returns entries in file order, or an error naming the first
// empty or duplicate type, negative price, or non-positive speed.
func LoadCatalog(path string) ([]storage.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) ([]storage.CatalogEntry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Pets))
	for i, e := range f.Pets {
		switch {
		case e.Type == "":
			return nil, fmt.Errorf("catalog entry #%d: type must not be empty", i)
		case seen[e.Type]:
			return nil, fmt.Errorf("catalog entry %q: duplicate type", e.Type)
		case e.Price < 0:
			return nil, fmt.Errorf("catalog entry %q: price must not be negative", e.Type)
		case e.Speed <= 0:
			return nil, fmt.Errorf("catalog entry %q: speed must be positive", e.Type)
		}
		seen[e.Type] = true
	}
	return f.Pets, nil
}

// SeedCatalog upserts every entry into store. Existing popularity counters
// are kept.
//
// Postcondition: Returns the number of entries written, or the first store error.
func SeedCatalog(ctx context.Context, store storage.CatalogStore, entries []storage.CatalogEntry) (int, error) {
	for i, e := range entries {
		if err := store.UpsertCatalogEntry(ctx, e); err != nil {
			return i, fmt.Errorf("seeding catalog entry %q: %w", e.Type, err)
		}
	}
	return len(entries), nil
}

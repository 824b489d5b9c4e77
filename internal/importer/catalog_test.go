package importer_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/importer"
	"github.com/cory-johannsen/covey/internal/storage/memory"
)

const petsYAML = `
pets:
  - type: dog
    price: 10
    sprite_id: dog-1
    speed: 1.5
  - type: cat
    price: 5
    sprite_id: cat-1
    speed: 1
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pets.yaml")
	writeFile(t, path, petsYAML)

	entries, err := importer.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dog", entries[0].Type)
	assert.Equal(t, int64(10), entries[0].Price)
	assert.Equal(t, "dog-1", entries[0].SpriteID)
	assert.Equal(t, 1.5, entries[0].Speed)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := importer.LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty type":     "pets:\n  - price: 1\n    speed: 1\n",
		"duplicate type": "pets:\n  - {type: dog, speed: 1}\n  - {type: dog, speed: 1}\n",
		"negative price": "pets:\n  - {type: dog, price: -1, speed: 1}\n",
		"zero speed":     "pets:\n  - {type: dog, price: 1}\n",
		"bad yaml":       "pets: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := importer.ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSeedCatalog_KeepsPopularity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	entries, err := importer.ParseCatalog([]byte(petsYAML))
	require.NoError(t, err)

	n, err := importer.SeedCatalog(ctx, store, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, store.IncrementPopularity(ctx, "dog"))

	entries[0].Price = 12
	_, err = importer.SeedCatalog(ctx, store, entries)
	require.NoError(t, err)

	dog, err := store.CatalogEntry(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, int64(12), dog.Price)
	assert.Equal(t, int64(1), dog.Popularity)
}

package importer_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/importer"
)

const tiledPlaza = `{
  "layers": [
    {"name": "Walls", "type": "tilelayer"},
    {"name": "Objects", "type": "objectgroup", "objects": [
      {"name": "Spawn", "type": "", "x": 40, "y": 50},
      {"name": "Main Lobby", "class": "ConversationArea", "x": 0, "y": 0, "width": 20, "height": 20,
       "properties": [{"name": "topic", "type": "string", "value": "hello"}]},
      {"name": "Tic Tac Toe", "type": "TicTacToeArea", "x": 30, "y": 0, "width": 10, "height": 10},
      {"name": "Tree", "type": "Decoration", "x": 100, "y": 100, "width": 5, "height": 5}
    ]}
  ]
}`

func writeFile(t testing.TB, path, s string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(s), 0644))
}

func TestImporter_Run_WritesMapFile(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "Town Plaza.json"), tiledPlaza)
	writeFile(t, filepath.Join(srcRoot, "notes.txt"), "ignored")

	outDir := t.TempDir()
	var progress strings.Builder
	imp := importer.New(importer.NewTiledSource(), &progress)
	require.NoError(t, imp.Run(srcRoot, outDir))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "town_plaza.yaml", entries[0].Name())
	assert.Contains(t, progress.String(), "(2 areas)")

	m, err := world.LoadMapFromFile(filepath.Join(outDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "town_plaza", m.Name)
	assert.Equal(t, 40.0, m.Spawn.X)
	assert.Equal(t, []string{"main_lobby", "tic_tac_toe"}, m.AreaIDs())
	assert.Equal(t, world.ConversationArea, m.Areas[0].Type)
	assert.Equal(t, "hello", m.Areas[0].Properties["topic"])
}

func TestImporter_Run_InvalidSourceDir(t *testing.T) {
	imp := importer.New(importer.NewTiledSource(), nil)
	err := imp.Run("/nonexistent/dir", t.TempDir())
	require.Error(t, err)
}

func TestImporter_Run_NoExports(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "map.yaml"), "town: {}\n")
	err := importer.New(importer.NewTiledSource(), nil).Run(srcRoot, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Tiled map exports")
}

func TestImporter_Run_RejectsOverlap(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "bad.json"), `{"layers":[{"type":"objectgroup","objects":[
		{"name":"a","type":"ViewingArea","x":0,"y":0,"width":10,"height":10},
		{"name":"b","type":"ViewingArea","x":5,"y":5,"width":10,"height":10}]}]}`)
	outDir := t.TempDir()
	err := importer.New(importer.NewTiledSource(), nil).Run(srcRoot, outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, world.ErrMapIntegrity)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFromTownMap_DuplicateAfterNormalising(t *testing.T) {
	m, err := world.LoadMapFromBytes("dup", []byte(`{"layers":[{"type":"objectgroup","objects":[
		{"name":"Game Room","type":"ViewingArea","x":0,"y":0,"width":10,"height":10},
		{"name":"game_room","type":"ViewingArea","x":50,"y":50,"width":10,"height":10}]}]}`))
	require.NoError(t, err)
	_, err = importer.FromTownMap(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate area id "game_room"`)
}

// TestImporter_Run_NMapsProducesNFiles verifies that Run with N Tiled exports
// in the source produces exactly N output YAML files.
func TestImporter_Run_NMapsProducesNFiles(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "numMaps")

		srcRoot := t.TempDir()
		for i := 0; i < n; i++ {
			content := fmt.Sprintf(`{"layers":[{"type":"objectgroup","objects":[
				{"name":"Area %d","type":"ViewingArea","x":0,"y":0,"width":10,"height":10}]}]}`, i)
			if err := os.WriteFile(filepath.Join(srcRoot, fmt.Sprintf("map_%d.json", i)), []byte(content), 0644); err != nil {
				rt.Fatal(err)
			}
		}

		outDir := t.TempDir()
		if err := importer.New(importer.NewTiledSource(), nil).Run(srcRoot, outDir); err != nil {
			rt.Fatal(err)
		}

		entries, err := os.ReadDir(outDir)
		if err != nil {
			rt.Fatal(err)
		}
		assert.Equal(rt, n, len(entries),
			"Run with %d map file(s) must produce exactly %d output file(s)", n, n)
	})
}

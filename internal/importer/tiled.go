package importer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cory-johannsen/covey/internal/game/world"
)

// TiledSource reads Tiled JSON exports (*.json, *.tmj).
type TiledSource struct{}

// NewTiledSource returns a Source for Tiled JSON map exports.
func NewTiledSource() *TiledSource {
	return &TiledSource{}
}

// Load parses every Tiled export in sourceDir in directory order.
func (s *TiledSource) Load(sourceDir string) ([]*MapData, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	var out []*MapData
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".tmj":
		default:
			continue
		}
		m, err := world.LoadMapFromFile(filepath.Join(sourceDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		md, err := FromTownMap(m)
		if err != nil {
			return nil, fmt.Errorf("converting %s: %w", entry.Name(), err)
		}
		out = append(out, md)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no Tiled map exports found in %s", sourceDir)
	}
	return out, nil
}

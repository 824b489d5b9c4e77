package world

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/covey/internal/geom"
)

// yamlMapFile is the top-level structure of a map file. Native maps use the
// town key; Tiled exports use layers. yaml.v3 parses both since JSON is YAML.
type yamlMapFile struct {
	Town   *yamlTown    `yaml:"town"`
	Layers []tiledLayer `yaml:"layers"`
}

// yamlTown is the native YAML representation of a map.
type yamlTown struct {
	Name   string     `yaml:"name"`
	SpawnX float64    `yaml:"spawn_x"`
	SpawnY float64    `yaml:"spawn_y"`
	Areas  []yamlArea `yaml:"areas"`
}

// yamlArea is the native YAML representation of an area.
type yamlArea struct {
	ID         string            `yaml:"id"`
	Type       string            `yaml:"type"`
	X          float64           `yaml:"x"`
	Y          float64           `yaml:"y"`
	Width      *float64          `yaml:"width"`
	Height     *float64          `yaml:"height"`
	Properties map[string]string `yaml:"properties"`
}

// tiledLayer is the subset of a Tiled layer the loader reads.
type tiledLayer struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	Objects []tiledObject `yaml:"objects"`
}

// tiledObject is a Tiled map object. Tiled 1.9 renamed type to class.
type tiledObject struct {
	Name       string          `yaml:"name"`
	Type       string          `yaml:"type"`
	Class      string          `yaml:"class"`
	X          float64         `yaml:"x"`
	Y          float64         `yaml:"y"`
	Width      *float64        `yaml:"width"`
	Height     *float64        `yaml:"height"`
	Properties []tiledProperty `yaml:"properties"`
}

type tiledProperty struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// LoadMapFromFile reads and validates a single map file.
//
// Precondition: path must point to a YAML or Tiled JSON map file.
// Postcondition: Returns a validated TownMap or a non-nil error.
func LoadMapFromFile(path string) (*TownMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadMapFromBytes(name, data)
}

// LoadMapFromBytes parses and validates a map.
//
// Precondition: data must be YAML or Tiled JSON conforming to the map schema.
// Postcondition: Returns a validated TownMap or a non-nil error. Areas without
// a width or height fail with ErrMapIntegrity.
func LoadMapFromBytes(name string, data []byte) (*TownMap, error) {
	var file yamlMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing map %s: %w", name, err)
	}

	var (
		m   *TownMap
		err error
	)
	switch {
	case file.Town != nil:
		m, err = convertYAMLTown(name, *file.Town)
	case file.Layers != nil:
		m, err = convertTiled(name, file.Layers)
	default:
		return nil, fmt.Errorf("parsing map %s: neither a town nor a Tiled layer list", name)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating map: %w", err)
	}
	return m, nil
}

// LoadMapsFromDir loads every map file in a directory.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns all validated maps or the first error encountered.
func LoadMapsFromDir(dir string) ([]*TownMap, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading map directory %s: %w", dir, err)
	}

	var maps []*TownMap
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch filepath.Ext(name) {
		case ".yaml", ".yml", ".json", ".tmj":
		default:
			continue
		}
		m, err := LoadMapFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading map from %s: %w", name, err)
		}
		maps = append(maps, m)
	}

	if len(maps) == 0 {
		return nil, fmt.Errorf("no map files found in %s", dir)
	}
	return maps, nil
}

func convertYAMLTown(fileName string, yt yamlTown) (*TownMap, error) {
	m := &TownMap{Name: yt.Name, Spawn: geom.Point{X: yt.SpawnX, Y: yt.SpawnY}}
	if m.Name == "" {
		m.Name = fileName
	}
	for _, ya := range yt.Areas {
		if ya.Width == nil || ya.Height == nil {
			return nil, fmt.Errorf("%w: map %q: area %q is missing width or height", ErrMapIntegrity, m.Name, ya.ID)
		}
		props := ya.Properties
		if props == nil {
			props = make(map[string]string)
		}
		m.Areas = append(m.Areas, AreaDef{
			ID:         ya.ID,
			Type:       AreaType(ya.Type),
			Box:        geom.Box{X: ya.X, Y: ya.Y, Width: *ya.Width, Height: *ya.Height},
			Properties: props,
		})
	}
	return m, nil
}

// convertTiled reads interactable objects from every object layer. Objects
// whose type is not an area type (spawn points, decorations) are skipped,
// except a "Spawn" object which sets the spawn point.
func convertTiled(name string, layers []tiledLayer) (*TownMap, error) {
	m := &TownMap{Name: name}
	for _, layer := range layers {
		if layer.Type != "objectgroup" {
			continue
		}
		for _, obj := range layer.Objects {
			kind := obj.Class
			if kind == "" {
				kind = obj.Type
			}
			if kind == "Spawn" || obj.Name == "Spawn" {
				m.Spawn = geom.Point{X: obj.X, Y: obj.Y}
				continue
			}
			if !AreaType(kind).Known() {
				continue
			}
			if obj.Width == nil || obj.Height == nil {
				return nil, fmt.Errorf("%w: map %q: area %q is missing width or height", ErrMapIntegrity, name, obj.Name)
			}
			props := make(map[string]string, len(obj.Properties))
			for _, p := range obj.Properties {
				props[p.Name] = fmt.Sprint(p.Value)
			}
			m.Areas = append(m.Areas, AreaDef{
				ID:         obj.Name,
				Type:       AreaType(kind),
				Box:        geom.Box{X: obj.X, Y: obj.Y, Width: *obj.Width, Height: *obj.Height},
				Properties: props,
			})
		}
	}
	return m, nil
}

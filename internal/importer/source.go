package importer

// MapData is the common intermediate format produced by all Source
// implementations. Its YAML tags match the native map file schema exactly,
// so it can be marshalled directly and validated by world.LoadMapFromBytes.
type MapData struct {
	Town TownSpec `yaml:"town"`
}

// TownSpec holds map-level metadata and its areas.
type TownSpec struct {
	Name   string     `yaml:"name"`
	SpawnX float64    `yaml:"spawn_x"`
	SpawnY float64    `yaml:"spawn_y"`
	Areas  []AreaSpec `yaml:"areas"`
}

// AreaSpec holds a single interactable area.
type AreaSpec struct {
	ID         string            `yaml:"id"`
	Type       string            `yaml:"type"`
	X          float64           `yaml:"x"`
	Y          float64           `yaml:"y"`
	Width      float64           `yaml:"width"`
	Height     float64           `yaml:"height"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Source loads maps from a format-specific source directory and produces
// MapData ready to be written as native map files.
//
// Precondition: sourceDir must exist and contain at least one file in the
// source's format.
// Postcondition: returns at least one MapData, or a non-nil error.
type Source interface {
	Load(sourceDir string) ([]*MapData, error)
}

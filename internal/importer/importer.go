// Package importer converts external map exports into native map files and
// seeds the pet catalog.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/covey/internal/game/world"
)

// Importer orchestrates map import from a Source to an output directory.
type Importer struct {
	source Source
	out    io.Writer
}

// New constructs an Importer backed by the given Source. Progress lines are
// written to out; a nil out discards them.
//
// Precondition: source must be non-nil.
// Postcondition: returns a non-nil Importer.
func New(source Source, out io.Writer) *Importer {
	if out == nil {
		out = io.Discard
	}
	return &Importer{source: source, out: out}
}

// Run loads maps from sourceDir, validates each, and writes them as YAML
// files to outputDir. Each output file is named <map_name>.yaml.
//
// Precondition: sourceDir must satisfy the source's layout requirements;
// outputDir must exist or be creatable.
// Postcondition: one map YAML per map is written to outputDir, or an error
// is returned.
func (imp *Importer) Run(sourceDir, outputDir string) error {
	overall := time.Now()

	t0 := time.Now()
	maps, err := imp.source.Load(sourceDir)
	if err != nil {
		return fmt.Errorf("loading source: %w", err)
	}
	fmt.Fprintf(imp.out, "load    %d map(s) in %s\n", len(maps), time.Since(t0).Round(time.Millisecond))

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}

	for _, md := range maps {
		t1 := time.Now()

		data, err := yaml.Marshal(md)
		if err != nil {
			return fmt.Errorf("serialising map %q: %w", md.Town.Name, err)
		}

		// The output must load exactly like a hand-written map.
		if _, err := world.LoadMapFromBytes(md.Town.Name, data); err != nil {
			return fmt.Errorf("map %q failed validation: %w", md.Town.Name, err)
		}

		outPath := filepath.Join(outputDir, md.Town.Name+".yaml")
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("writing map %q to %s: %w", md.Town.Name, outPath, err)
		}

		fmt.Fprintf(imp.out, "wrote   %s  (%d areas)  in %s\n",
			outPath, len(md.Town.Areas), time.Since(t1).Round(time.Millisecond))
	}

	fmt.Fprintf(imp.out, "total   %s\n", time.Since(overall).Round(time.Millisecond))
	return nil
}

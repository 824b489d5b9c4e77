// Package geom provides the axis-aligned bounding box primitives used for
// interactable area containment and map validation.
package geom

import (
	"errors"
	"fmt"
)

// ErrMalformedBox is returned when a bounding box has a non-positive width or height.
var ErrMalformedBox = errors.New("malformed bounding box")

// Point is a location on the town map.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Box is an axis-aligned rectangle anchored at its top-left corner.
type Box struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Validate reports whether b has a positive extent on both axes.
//
// Postcondition: Returns nil, or an error wrapping ErrMalformedBox.
func (b Box) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: width=%g height=%g", ErrMalformedBox, b.Width, b.Height)
	}
	return nil
}

// MaxX returns the right edge.
func (b Box) MaxX() float64 { return b.X + b.Width }

// MaxY returns the bottom edge.
func (b Box) MaxY() float64 { return b.Y + b.Height }

// Contains reports whether p lies within b, edges included.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.MaxX() && p.Y >= b.Y && p.Y <= b.MaxY()
}

// Overlaps reports whether b and o share any point, edges included. Containment
// is edge-inclusive, so boxes that merely touch would both claim the shared edge.
func (b Box) Overlaps(o Box) bool {
	return b.X <= o.MaxX() && o.X <= b.MaxX() && b.Y <= o.MaxY() && o.Y <= b.MaxY()
}

// Contains is the free-function form of Box.Contains.
func Contains(b Box, p Point) bool { return b.Contains(p) }

// Overlaps is the free-function form of Box.Overlaps.
func Overlaps(a, b Box) bool { return a.Overlaps(b) }

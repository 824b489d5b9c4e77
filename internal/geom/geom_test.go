package geom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBox_Validate(t *testing.T) {
	assert.NoError(t, Box{X: 0, Y: 0, Width: 1, Height: 1}.Validate())
	assert.True(t, errors.Is(Box{Width: 0, Height: 5}.Validate(), ErrMalformedBox))
	assert.True(t, errors.Is(Box{Width: 5, Height: -1}.Validate(), ErrMalformedBox))
}

func TestBox_ContainsEdgesInclusive(t *testing.T) {
	b := Box{X: 10, Y: 5, Width: 10, Height: 5}
	assert.True(t, b.Contains(Point{X: 10, Y: 5}))
	assert.True(t, b.Contains(Point{X: 20, Y: 10}))
	assert.True(t, b.Contains(Point{X: 12, Y: 8}))
	assert.False(t, b.Contains(Point{X: 9.99, Y: 8}))
	assert.False(t, b.Contains(Point{X: 12, Y: 10.01}))
}

func TestBox_Overlaps(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 10, Height: 10}
	assert.True(t, a.Overlaps(Box{X: 5, Y: 5, Width: 10, Height: 10}))
	assert.True(t, a.Overlaps(Box{X: 2, Y: 2, Width: 1, Height: 1}), "nested boxes overlap")
	assert.True(t, a.Overlaps(Box{X: 10, Y: 0, Width: 5, Height: 5}), "shared edge counts")
	assert.False(t, a.Overlaps(Box{X: 11, Y: 0, Width: 5, Height: 5}))
	assert.False(t, a.Overlaps(Box{X: 0, Y: 20, Width: 5, Height: 5}))
}

func genBox(t *rapid.T, label string) Box {
	return Box{
		X:      float64(rapid.IntRange(-100, 100).Draw(t, label+"_x")),
		Y:      float64(rapid.IntRange(-100, 100).Draw(t, label+"_y")),
		Width:  float64(rapid.IntRange(1, 50).Draw(t, label+"_w")),
		Height: float64(rapid.IntRange(1, 50).Draw(t, label+"_h")),
	}
}

// Property: Overlaps is symmetric.
func TestPropertyOverlapsSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b := genBox(t, "a"), genBox(t, "b")
		if a.Overlaps(b) != b.Overlaps(a) {
			t.Fatalf("overlap not symmetric for %+v %+v", a, b)
		}
	})
}

// Property: a point contained by two boxes implies those boxes overlap.
func TestPropertySharedPointImpliesOverlap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b := genBox(t, "a"), genBox(t, "b")
		p := Point{
			X: float64(rapid.IntRange(-150, 150).Draw(t, "px")),
			Y: float64(rapid.IntRange(-150, 150).Draw(t, "py")),
		}
		if a.Contains(p) && b.Contains(p) && !a.Overlaps(b) {
			t.Fatalf("point %+v in both %+v and %+v but no overlap", p, a, b)
		}
	})
}

// Property: Contains matches the inclusive interval definition.
func TestPropertyContainsInclusive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := genBox(t, "b")
		p := Point{
			X: float64(rapid.IntRange(-150, 150).Draw(t, "px")),
			Y: float64(rapid.IntRange(-150, 150).Draw(t, "py")),
		}
		want := p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
		if b.Contains(p) != want || Contains(b, p) != want {
			t.Fatalf("Contains(%+v, %+v) != %v", b, p, want)
		}
	})
}

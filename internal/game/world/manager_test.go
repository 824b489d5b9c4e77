package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Resolve(t *testing.T) {
	a := &TownMap{Name: "a"}
	b := &TownMap{Name: "b"}
	m, err := NewManager([]*TownMap{a, b})
	require.NoError(t, err)

	got, err := m.Resolve("")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Same(t, a, m.DefaultMap())

	got, err = m.Resolve("b")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = m.Resolve("c")
	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, m.MapNames())
}

func TestManager_Errors(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)
	_, err = NewManager([]*TownMap{{Name: "a"}, {Name: "a"}})
	assert.Error(t, err)
}

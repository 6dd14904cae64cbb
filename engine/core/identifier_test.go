package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRegistryReleasesInReverseOrder(t *testing.T) {
	r := NewResourceRegistry()

	var order []string
	for _, name := range []string{"device", "pipeline", "vertex buffer", "texture"} {
		name := name
		r.Track(name, func() { order = append(order, name) })
	}
	assert.Equal(t, 4, r.Live())

	assert.Equal(t, 4, r.ReleaseAll())
	assert.Equal(t, []string{"texture", "vertex buffer", "pipeline", "device"}, order)
	assert.Equal(t, 0, r.Live())

	// nothing left to release
	assert.Equal(t, 0, r.ReleaseAll())
	assert.Len(t, order, 4)
}

func TestResourceRegistryReleaseOnce(t *testing.T) {
	r := NewResourceRegistry()

	calls := map[string]int{}
	vs := r.Track("vertex shader", func() { calls["vs"]++ })
	r.Track("pipeline", func() { calls["pipeline"]++ })

	require.NoError(t, r.Release(vs))
	assert.Error(t, r.Release(vs))
	assert.Error(t, r.Release(uuid.New()))
	assert.Equal(t, 1, r.Live())

	assert.Equal(t, 1, r.ReleaseAll())
	assert.Equal(t, map[string]int{"vs": 1, "pipeline": 1}, calls)
}

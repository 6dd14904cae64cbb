package renderer

import (
	"encoding/binary"
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuadMeshEncoding(t *testing.T) {
	mesh := QuadMesh()
	require.Len(t, mesh.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)

	vertices, err := mesh.VertexData()
	require.NoError(t, err)
	assert.Len(t, vertices, 4*20)

	// second vertex: (0.5, 0.5, 0) (1, 0)
	v := vertices[20:40]
	floats := make([]float32, 5)
	for i := range floats {
		floats[i] = stdmath.Float32frombits(binary.LittleEndian.Uint32(v[i*4:]))
	}
	assert.Equal(t, []float32{0.5, 0.5, 0, 1, 0}, floats)

	indices, err := mesh.IndexData()
	require.NoError(t, err)
	assert.Len(t, indices, 24)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(indices[20:]))
}

func TestPositionTextureLayoutCoversStride(t *testing.T) {
	var end uint32
	for _, a := range PositionTextureLayout.Attributes {
		if e := a.Offset + a.Format.Size(); e > end {
			end = e
		}
	}
	assert.Equal(t, PositionTextureLayout.Buffers[0].Pitch, end)
}

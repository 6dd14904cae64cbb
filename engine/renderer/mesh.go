package renderer

import (
	"encoding/binary"

	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/math"
)

// Mesh is an indexed list of textured vertices.
type Mesh struct {
	Vertices []math.PositionTextureVertex
	Indices  []uint32
}

// QuadMesh returns a unit quad centred on the origin, two triangles wound
// clockwise, texture origin at the top left corner.
func QuadMesh() Mesh {
	return Mesh{
		Vertices: []math.PositionTextureVertex{
			{Position: math.NewVec3(-0.5, 0.5, 0), Texcoord: math.NewVec2(0, 0)},
			{Position: math.NewVec3(0.5, 0.5, 0), Texcoord: math.NewVec2(1, 0)},
			{Position: math.NewVec3(0.5, -0.5, 0), Texcoord: math.NewVec2(1, 1)},
			{Position: math.NewVec3(-0.5, -0.5, 0), Texcoord: math.NewVec2(0, 1)},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// VertexData encodes the vertices as tightly packed little endian floats.
func (m Mesh) VertexData() ([]byte, error) {
	return binary.Append(nil, binary.LittleEndian, m.Vertices)
}

// IndexData encodes the indices as 32-bit little endian values.
func (m Mesh) IndexData() ([]byte, error) {
	return binary.Append(nil, binary.LittleEndian, m.Indices)
}

// PositionTextureLayout matches math.PositionTextureVertex: location 0 is
// the position, location 1 the texture coordinate, both from slot 0.
var PositionTextureLayout = VertexLayout{
	Buffers: []gpu.VertexBufferDescription{
		{Slot: 0, Pitch: math.PositionTextureVertexSize, InputRate: gpu.VertexInputRateVertex},
	},
	Attributes: []gpu.VertexAttribute{
		{Location: 0, BufferSlot: 0, Format: gpu.VertexElementFormatFloat3, Offset: 0},
		{Location: 1, BufferSlot: 0, Format: gpu.VertexElementFormatFloat2, Offset: 12},
	},
}

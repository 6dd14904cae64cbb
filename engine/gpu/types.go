package gpu

import "strings"

// ShaderFormat is a bit set of shader bytecode formats.
type ShaderFormat uint32

const ShaderFormatInvalid ShaderFormat = 0

const (
	ShaderFormatPrivate ShaderFormat = 1 << iota
	ShaderFormatSPIRV
	ShaderFormatDXBC
	ShaderFormatDXIL
	ShaderFormatMSL
	ShaderFormatMetalLib
)

var shaderFormatNames = []struct {
	f    ShaderFormat
	name string
}{
	{ShaderFormatPrivate, "PRIVATE"},
	{ShaderFormatSPIRV, "SPIRV"},
	{ShaderFormatDXBC, "DXBC"},
	{ShaderFormatDXIL, "DXIL"},
	{ShaderFormatMSL, "MSL"},
	{ShaderFormatMetalLib, "METALLIB"},
}

func (f ShaderFormat) Has(other ShaderFormat) bool {
	return other != ShaderFormatInvalid && f&other == other
}

func (f ShaderFormat) String() string {
	if f == ShaderFormatInvalid {
		return "INVALID"
	}
	var names []string
	for _, n := range shaderFormatNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	}
	return "unknown"
}

type ShaderCreateInfo struct {
	Code               []byte
	Entrypoint         string
	Format             ShaderFormat
	Stage              ShaderStage
	NumSamplers        uint32
	NumStorageTextures uint32
	NumStorageBuffers  uint32
	NumUniformBuffers  uint32
}

type VertexElementFormat uint8

const (
	VertexElementFormatInvalid VertexElementFormat = iota
	VertexElementFormatFloat
	VertexElementFormatFloat2
	VertexElementFormatFloat3
	VertexElementFormatFloat4
	VertexElementFormatUByte4Norm
)

// Size returns the byte size of one element, 0 for invalid formats.
func (f VertexElementFormat) Size() uint32 {
	switch f {
	case VertexElementFormatFloat:
		return 4
	case VertexElementFormatFloat2:
		return 8
	case VertexElementFormatFloat3:
		return 12
	case VertexElementFormatFloat4:
		return 16
	case VertexElementFormatUByte4Norm:
		return 4
	}
	return 0
}

type VertexInputRate uint8

const (
	VertexInputRateVertex VertexInputRate = iota
	VertexInputRateInstance
)

type VertexBufferDescription struct {
	Slot      uint32
	Pitch     uint32
	InputRate VertexInputRate
}

type VertexAttribute struct {
	Location   uint32
	BufferSlot uint32
	Format     VertexElementFormat
	Offset     uint32
}

type VertexInputState struct {
	VertexBufferDescriptions []VertexBufferDescription
	VertexAttributes         []VertexAttribute
}

type PrimitiveType uint8

const (
	PrimitiveTypeTriangleList PrimitiveType = iota
	PrimitiveTypeTriangleStrip
	PrimitiveTypeLineList
	PrimitiveTypeLineStrip
	PrimitiveTypePointList
)

type FillMode uint8

const (
	FillModeFill FillMode = iota
	FillModeLine
)

type TextureFormat uint8

const (
	TextureFormatInvalid TextureFormat = iota
	TextureFormatR8G8B8A8Unorm
	TextureFormatB8G8R8A8Unorm
	TextureFormatR8G8B8A8UnormSRGB
	TextureFormatB8G8R8A8UnormSRGB
)

// BytesPerPixel returns the texel size, 0 for invalid formats.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatR8G8B8A8Unorm, TextureFormatB8G8R8A8Unorm,
		TextureFormatR8G8B8A8UnormSRGB, TextureFormatB8G8R8A8UnormSRGB:
		return 4
	}
	return 0
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case TextureFormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case TextureFormatR8G8B8A8UnormSRGB:
		return "R8G8B8A8_UNORM_SRGB"
	case TextureFormatB8G8R8A8UnormSRGB:
		return "B8G8R8A8_UNORM_SRGB"
	}
	return "INVALID"
}

type ColorTargetDescription struct {
	Format TextureFormat
}

type GraphicsPipelineCreateInfo struct {
	VertexShader            Shader
	FragmentShader          Shader
	VertexInputState        VertexInputState
	PrimitiveType           PrimitiveType
	FillMode                FillMode
	ColorTargetDescriptions []ColorTargetDescription
}

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageIndirect
)

type BufferCreateInfo struct {
	Usage BufferUsage
	Size  uint32
}

type TransferBufferUsage uint8

const (
	TransferBufferUsageUpload TransferBufferUsage = iota
	TransferBufferUsageDownload
)

type TransferBufferCreateInfo struct {
	Usage TransferBufferUsage
	Size  uint32
}

type TextureType uint8

const (
	TextureType2D TextureType = iota
)

type TextureUsage uint32

const (
	TextureUsageSampler TextureUsage = 1 << iota
	TextureUsageColorTarget
)

type TextureCreateInfo struct {
	Type              TextureType
	Format            TextureFormat
	Usage             TextureUsage
	Width             uint32
	Height            uint32
	LayerCountOrDepth uint32
	NumLevels         uint32
}

type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

type SamplerMipmapMode uint8

const (
	SamplerMipmapModeNearest SamplerMipmapMode = iota
	SamplerMipmapModeLinear
)

type SamplerAddressMode uint8

const (
	SamplerAddressModeRepeat SamplerAddressMode = iota
	SamplerAddressModeMirroredRepeat
	SamplerAddressModeClampToEdge
)

type SamplerCreateInfo struct {
	MinFilter    Filter
	MagFilter    Filter
	MipmapMode   SamplerMipmapMode
	AddressModeU SamplerAddressMode
	AddressModeV SamplerAddressMode
	AddressModeW SamplerAddressMode
}

type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type Color struct {
	R, G, B, A float32
}

type ColorTargetInfo struct {
	Texture    Texture
	ClearColor Color
	LoadOp     LoadOp
	StoreOp    StoreOp
}

type TransferBufferLocation struct {
	TransferBuffer TransferBuffer
	Offset         uint32
}

type BufferRegion struct {
	Buffer Buffer
	Offset uint32
	Size   uint32
}

type TextureTransferInfo struct {
	TransferBuffer TransferBuffer
	Offset         uint32
	// Texels per row in the transfer buffer, 0 means tightly packed.
	PixelsPerRow uint32
	// Rows per layer in the transfer buffer, 0 means tightly packed.
	RowsPerLayer uint32
}

type TextureRegion struct {
	Texture Texture
	X, Y, Z uint32
	W, H, D uint32
}

type BufferBinding struct {
	Buffer Buffer
	Offset uint32
}

type IndexElementSize uint8

const (
	IndexElementSize16Bit IndexElementSize = iota
	IndexElementSize32Bit
)

// Bytes returns the size in bytes of one index.
func (s IndexElementSize) Bytes() uint32 {
	if s == IndexElementSize16Bit {
		return 2
	}
	return 4
}

// PresentMode selects how swapchain images are queued for display.
type PresentMode uint8

const (
	PresentModeVSync PresentMode = iota
	PresentModeImmediate
	PresentModeMailbox
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeVSync:
		return "vsync"
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	}
	return "unknown"
}

// ParsePresentMode accepts the names returned by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, bool) {
	for _, m := range []PresentMode{PresentModeVSync, PresentModeImmediate, PresentModeMailbox} {
		if m.String() == s {
			return m, true
		}
	}
	return PresentModeVSync, false
}

type TextureSamplerBinding struct {
	Texture Texture
	Sampler Sampler
}

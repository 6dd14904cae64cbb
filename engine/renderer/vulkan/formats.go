package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

var textureFormats = map[gpu.TextureFormat]vk.Format{
	gpu.TextureFormatR8G8B8A8Unorm:     vk.FormatR8g8b8a8Unorm,
	gpu.TextureFormatB8G8R8A8Unorm:     vk.FormatB8g8r8a8Unorm,
	gpu.TextureFormatR8G8B8A8UnormSRGB: vk.FormatR8g8b8a8Srgb,
	gpu.TextureFormatB8G8R8A8UnormSRGB: vk.FormatB8g8r8a8Srgb,
}

func toVulkanFormat(f gpu.TextureFormat) (vk.Format, bool) {
	vf, ok := textureFormats[f]
	return vf, ok
}

func fromVulkanFormat(vf vk.Format) gpu.TextureFormat {
	for f, candidate := range textureFormats {
		if candidate == vf {
			return f
		}
	}
	return gpu.TextureFormatInvalid
}

func toVulkanVertexFormat(f gpu.VertexElementFormat) (vk.Format, bool) {
	switch f {
	case gpu.VertexElementFormatFloat:
		return vk.FormatR32Sfloat, true
	case gpu.VertexElementFormatFloat2:
		return vk.FormatR32g32Sfloat, true
	case gpu.VertexElementFormatFloat3:
		return vk.FormatR32g32b32Sfloat, true
	case gpu.VertexElementFormatFloat4:
		return vk.FormatR32g32b32a32Sfloat, true
	case gpu.VertexElementFormatUByte4Norm:
		return vk.FormatR8g8b8a8Unorm, true
	}
	return vk.FormatUndefined, false
}

func toVulkanTopology(p gpu.PrimitiveType) vk.PrimitiveTopology {
	switch p {
	case gpu.PrimitiveTypeTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.PrimitiveTypeLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.PrimitiveTypeLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gpu.PrimitiveTypePointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toVulkanPolygonMode(m gpu.FillMode) vk.PolygonMode {
	if m == gpu.FillModeLine {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func toVulkanFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func toVulkanMipmapMode(m gpu.SamplerMipmapMode) vk.SamplerMipmapMode {
	if m == gpu.SamplerMipmapModeLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func toVulkanAddressMode(m gpu.SamplerAddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.SamplerAddressModeMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.SamplerAddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func toVulkanLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gpu.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func toVulkanStoreOp(op gpu.StoreOp) vk.AttachmentStoreOp {
	if op == gpu.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func toVulkanIndexType(s gpu.IndexElementSize) vk.IndexType {
	if s == gpu.IndexElementSize16Bit {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toVulkanBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	// every buffer can be the target of an upload and the source of a readback
	flags := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) | vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	if u&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	return flags
}

func toVulkanImageUsage(u gpu.TextureUsage) vk.ImageUsageFlags {
	flags := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	if u&gpu.TextureUsageSampler != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&gpu.TextureUsageColorTarget != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	return flags
}

func toVulkanPresentMode(m gpu.PresentMode) vk.PresentMode {
	switch m {
	case gpu.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentModeMailbox:
		return vk.PresentModeMailbox
	}
	return vk.PresentModeFifo
}

package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type VulkanSampler struct {
	resource
	Handle vk.Sampler
}

func SamplerCreate(context *VulkanContext, info *gpu.SamplerCreateInfo) (*VulkanSampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               toVulkanFilter(info.MagFilter),
		MinFilter:               toVulkanFilter(info.MinFilter),
		MipmapMode:              toVulkanMipmapMode(info.MipmapMode),
		AddressModeU:            toVulkanAddressMode(info.AddressModeU),
		AddressModeV:            toVulkanAddressMode(info.AddressModeV),
		AddressModeW:            toVulkanAddressMode(info.AddressModeW),
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	}

	var sampler vk.Sampler
	if err := resultError("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler)); err != nil {
		return nil, err
	}
	return &VulkanSampler{resource: newResource(), Handle: sampler}, nil
}

func (s *VulkanSampler) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullSampler {
		vk.DestroySampler(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullSampler
	}
}

package vulkan

import (
	vk "github.com/goki/vulkan"
)

// DescriptorSetLayoutCreate builds the fragment sampler layout of a
// pipeline: for slot i, binding 2*i is the sampled image and binding 2*i+1
// the sampler.
func DescriptorSetLayoutCreate(context *VulkanContext, samplerCount uint32) (vk.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, 2*samplerCount)
	for i := uint32(0); i < samplerCount; i++ {
		bindings = append(bindings,
			vk.DescriptorSetLayoutBinding{
				Binding:         2 * i,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
			vk.DescriptorSetLayoutBinding{
				Binding:         2*i + 1,
				DescriptorType:  vk.DescriptorTypeSampler,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
		)
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout)); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return layout, nil
}

// descriptorPoolCreate sizes a pool for VULKAN_MAX_DESCRIPTOR_SETS sets of
// the largest sampler layout.
func descriptorPoolCreate(context *VulkanContext) (vk.DescriptorPool, error) {
	perType := VULKAN_MAX_DESCRIPTOR_SETS * VULKAN_MAX_SAMPLER_SLOTS
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: perType},
		{Type: vk.DescriptorTypeSampler, DescriptorCount: perType},
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS,
	}

	var pool vk.DescriptorPool
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool)); err != nil {
		return vk.NullDescriptorPool, err
	}
	return pool, nil
}

// allocateDescriptorSet allocates from the command buffer's own pool, which
// is destroyed together with the command buffer.
func (v *VulkanCommandBuffer) allocateDescriptorSet(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	context := v.device.context
	var set vk.DescriptorSet
	if v.descriptorPool == vk.NullDescriptorPool {
		pool, err := descriptorPoolCreate(context)
		if err != nil {
			return set, err
		}
		v.descriptorPool = pool
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     v.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &set))
	return set, err
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	// only set when validation is enabled
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// Windows claimed by the device.
	Windows map[gpu.Window]*VulkanWindow

	PresentMode gpu.PresentMode
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has all of propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches filter 0x%x with properties 0x%x", typeFilter, uint32(propertyFlags))
}

// allocateMemory allocates memory for requirements with propertyFlags.
func (vc *VulkanContext) allocateMemory(requirements vk.MemoryRequirements, propertyFlags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	requirements.Deref()
	index, err := vc.FindMemoryIndex(requirements.MemoryTypeBits, propertyFlags)
	if err != nil {
		return vk.NullDeviceMemory, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory)); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

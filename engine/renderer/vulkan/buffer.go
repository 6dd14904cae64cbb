package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type resource struct {
	id uuid.UUID
}

func newResource() resource {
	return resource{id: uuid.New()}
}

func (r resource) ID() uuid.UUID {
	return r.id
}

// VulkanBuffer is a buffer and the memory bound to it.
type VulkanBuffer struct {
	resource
	Handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint32
	usage  gpu.BufferUsage
}

func (b *VulkanBuffer) Size() uint32 {
	return b.size
}

func (b *VulkanBuffer) Usage() gpu.BufferUsage {
	return b.usage
}

// VulkanTransferBuffer is host visible, coherent memory that stays mapped
// for its whole lifetime.
type VulkanTransferBuffer struct {
	VulkanBuffer
	usage  gpu.TransferBufferUsage
	view   []byte
	mapped bool
}

func (tb *VulkanTransferBuffer) Usage() gpu.TransferBufferUsage {
	return tb.usage
}

func BufferCreate(context *VulkanContext, size uint32, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be greater than zero")
	}
	buffer := &VulkanBuffer{resource: newResource(), size: size}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle)); err != nil {
		return nil, err
	}
	buffer.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	memory, err := context.allocateMemory(requirements, memoryFlags)
	if err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	buffer.Memory = memory

	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0)); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

func TransferBufferCreate(context *VulkanContext, size uint32, usage gpu.TransferBufferUsage) (*VulkanTransferBuffer, error) {
	buffer, err := BufferCreate(
		context,
		size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, err
	}

	var data unsafe.Pointer
	if err := resultError("vkMapMemory", vk.MapMemory(context.Device.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(size), 0, &data)); err != nil {
		buffer.Destroy(context)
		return nil, err
	}

	return &VulkanTransferBuffer{
		VulkanBuffer: *buffer,
		usage:        usage,
		view:         unsafe.Slice((*byte)(data), size),
	}, nil
}

func (tb *VulkanTransferBuffer) Destroy(context *VulkanContext) {
	if tb.view != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, tb.Memory)
		tb.view = nil
	}
	tb.VulkanBuffer.Destroy(context)
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/core"
)

// VulkanFence is signalled when the command buffer it was submitted with
// completed. It is a gpu.Fence when handed out by SubmitAndAcquireFence.
type VulkanFence struct {
	resource
	Handle     vk.Fence
	IsSignaled bool
	// held by the caller until ReleaseFence
	acquired bool
	// the command buffer no longer needs it
	retired bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		resource:   newResource(),
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence)); err != nil {
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence is signalled or timeoutNs elapsed.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("fence wait timed out after %d ns", timeoutNs)
	}
	return resultError("vkWaitForFences", result)
}

// FenceStatus polls the fence without blocking.
func (vf *VulkanFence) FenceStatus(context *VulkanContext) (bool, error) {
	if vf.IsSignaled {
		return true, nil
	}
	switch result := vk.GetFenceStatus(context.Device.LogicalDevice, vf.Handle); result {
	case vk.Success:
		vf.IsSignaled = true
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, resultError("vkGetFenceStatus", result)
	}
}

package vulkan

// Number of frames the CPU may record ahead of the GPU per window.
const VULKAN_MAX_FRAMES_IN_FLIGHT uint32 = 2

// Descriptor sets a single command buffer may allocate before its pool is
// exhausted.
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 64

// Fragment sampler slots a pipeline may declare. Slot i uses binding 2*i for
// the sampled image and 2*i+1 for the sampler, both in set 0.
const VULKAN_MAX_SAMPLER_SLOTS uint32 = 8

const VULKAN_VALIDATION_LAYER = "VK_LAYER_KHRONOS_validation"

// Timeout used for every fence and swapchain wait.
const VULKAN_WAIT_TIMEOUT_NS uint64 = ^uint64(0)

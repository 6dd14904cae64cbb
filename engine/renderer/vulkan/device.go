package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// A single family serves graphics, transfer and presentation.
	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	PortabilitySubset bool
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

// DeviceCreate selects a physical device and creates the logical device, its
// graphics queue and command pool.
func DeviceCreate(context *VulkanContext) error {
	device, err := SelectPhysicalDevice(context)
	if err != nil {
		return err
	}
	context.Device = device

	core.LogInfo("Creating logical device...")

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if device.PortabilitySubset {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logicalDevice vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice)); err != nil {
		return err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &queue)
	device.GraphicsQueue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
		return err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	device := context.Device
	device.GraphicsQueue = nil

	if device.GraphicsCommandPool != vk.NullCommandPool {
		core.LogDebug("Destroying command pools...")
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = vk.NullCommandPool
	}

	if device.LogicalDevice != nil {
		core.LogDebug("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	context.Device = nil
}

func SelectPhysicalDevice(context *VulkanContext) (*VulkanDevice, error) {
	var physicalDeviceCount uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return nil, err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A discrete GPU wins, otherwise the first device that qualifies.
	var selected *VulkanDevice
	for _, physicalDevice := range physicalDevices {
		candidate, ok := PhysicalDeviceMeetsRequirements(physicalDevice, &requirements)
		if !ok {
			continue
		}
		if selected == nil || (candidate.Properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu && selected.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = candidate
		}
	}
	if selected == nil {
		return nil, fmt.Errorf("no physical devices were found which meet the requirements")
	}

	properties := selected.Properties
	core.LogInfo("Selected device: '%s'.", vulkanName(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	for j := uint32(0); j < selected.Memory.MemoryHeapCount; j++ {
		heap := selected.Memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
	return selected, nil
}

// PhysicalDeviceMeetsRequirements checks one device and returns its
// description when it qualifies.
func PhysicalDeviceMeetsRequirements(physicalDevice vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) (*VulkanDevice, bool) {
	device := &VulkanDevice{PhysicalDevice: physicalDevice}

	vk.GetPhysicalDeviceProperties(physicalDevice, &device.Properties)
	device.Properties.Deref()
	vk.GetPhysicalDeviceFeatures(physicalDevice, &device.Features)
	device.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &device.Memory)
	device.Memory.Deref()

	name := vulkanName(device.Properties.DeviceName[:])

	if requirements.DiscreteGPU && device.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return nil, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)

	graphicsFound := false
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			device.GraphicsQueueIndex = uint32(i)
			graphicsFound = true
			break
		}
	}
	if requirements.Graphics && !graphicsFound {
		core.LogInfo("Device '%s' has no graphics queue, skipping.", name)
		return nil, false
	}

	available, err := deviceExtensions(physicalDevice)
	if err != nil {
		core.LogWarn("Device '%s': %s, skipping.", name, err)
		return nil, false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if _, ok := available[required]; !ok {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return nil, false
		}
	}
	_, device.PortabilitySubset = available["VK_KHR_portability_subset"]

	core.LogDebug("Device '%s' meets the requirements, graphics family index %d.", name, device.GraphicsQueueIndex)
	return device, true
}

func deviceExtensions(physicalDevice vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil)); err != nil {
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, properties)); err != nil {
			return nil, err
		}
	}

	names := make(map[string]struct{}, count)
	for i := range properties {
		properties[i].Deref()
		names[vulkanName(properties[i].ExtensionName[:])] = struct{}{}
	}
	return names, nil
}

package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	tmath "github.com/spaghettifunk/texel/engine/math"
)

// SurfaceWindow is a window the backend can create a Vulkan surface for.
type SurfaceWindow interface {
	gpu.Window
	CreateWindowSurface(instance interface{}) (uintptr, error)
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	Images      []vk.Image
	// one texture per swapchain image, wrapping its view
	Textures []*VulkanTexture
}

// VulkanWindow is the presentation state of a claimed window.
type VulkanWindow struct {
	window    gpu.Window
	Surface   vk.Surface
	Support   VulkanSwapchainSupportInfo
	Swapchain *VulkanSwapchain

	ImageAvailableSemaphores []vk.Semaphore
	QueueCompleteSemaphores  []vk.Semaphore
	// fence of the last submission that used each frame slot
	InFlightFences []*VulkanFence

	CurrentFrame  uint32
	NeedsRecreate bool
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil)); err != nil {
		return err
	}
	if supportInfo.FormatCount == 0 {
		return fmt.Errorf("surface reports no formats")
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats)); err != nil {
		return err
	}
	for i := range supportInfo.Formats {
		supportInfo.Formats[i].Deref()
	}

	// Present modes
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil)); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes)); err != nil {
			return err
		}
	}
	return nil
}

// chooseSurfaceFormat prefers 8 bit BGRA in the sRGB color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	for _, format := range formats {
		if format.Format == vk.FormatR8g8b8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode returns preferred if the surface supports it, FIFO
// otherwise. FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, preferred vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == preferred {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	return vk.Extent2D{
		Width:  tmath.Clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: tmath.Clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func createSwapchain(context *VulkanContext, window *VulkanWindow, width, height uint32, old vk.Swapchain) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, window.Surface, &window.Support); err != nil {
		return nil, err
	}
	support := window.Support

	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(support.PresentModes, toVulkanPresentMode(context.PresentMode)),
		Extent:      chooseExtent(support.Capabilities, width, height),
	}
	if _, ok := toVulkanFormat(fromVulkanFormat(swapchain.ImageFormat.Format)); !ok {
		return nil, fmt.Errorf("surface format %d is not supported", swapchain.ImageFormat.Format)
	}
	if swapchain.Extent.Width == 0 || swapchain.Extent.Height == 0 {
		return nil, fmt.Errorf("surface extent is empty")
	}

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	// The graphics family presents too, so images are never shared.
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          window.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var swapchainHandle vk.Swapchain
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle)); err != nil {
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &count, nil)); err != nil {
		swapchain.destroy(context)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &count, swapchain.Images)); err != nil {
		swapchain.destroy(context)
		return nil, err
	}

	// Views, wrapped as textures so render passes can target them.
	swapchain.Textures = make([]*VulkanTexture, 0, count)
	for _, image := range swapchain.Images {
		view, err := ImageViewCreate(context, image, swapchain.ImageFormat.Format)
		if err != nil {
			swapchain.destroy(context)
			return nil, err
		}
		swapchain.Textures = append(swapchain.Textures, &VulkanTexture{
			resource: newResource(),
			VulkanImage: VulkanImage{
				Handle: image,
				View:   view,
				Width:  swapchain.Extent.Width,
				Height: swapchain.Extent.Height,
				Format: swapchain.ImageFormat.Format,
				Layout: vk.ImageLayoutUndefined,
			},
			format:    fromVulkanFormat(swapchain.ImageFormat.Format),
			usage:     gpu.TextureUsageColorTarget,
			swapchain: swapchain,
		})
	}

	core.LogInfo("swapchain created: %dx%d, %d images, present mode %d", swapchain.Extent.Width, swapchain.Extent.Height, count, swapchain.PresentMode)
	return swapchain, nil
}

// destroy releases the views and the swapchain. The images are owned by the
// swapchain and go with it.
func (vs *VulkanSwapchain) destroy(context *VulkanContext) {
	for _, texture := range vs.Textures {
		texture.Destroy(context)
		if texture.View != vk.NullImageView {
			vk.DestroyImageView(context.Device.LogicalDevice, texture.View, context.Allocator)
			texture.View = vk.NullImageView
		}
	}
	vs.Textures = nil
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vw *VulkanWindow) createSyncObjects(context *VulkanContext) error {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	vw.ImageAvailableSemaphores = make([]vk.Semaphore, VULKAN_MAX_FRAMES_IN_FLIGHT)
	vw.QueueCompleteSemaphores = make([]vk.Semaphore, VULKAN_MAX_FRAMES_IN_FLIGHT)
	for i := uint32(0); i < VULKAN_MAX_FRAMES_IN_FLIGHT; i++ {
		if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &vw.ImageAvailableSemaphores[i])); err != nil {
			return err
		}
		if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &vw.QueueCompleteSemaphores[i])); err != nil {
			return err
		}
	}
	if vw.InFlightFences == nil {
		vw.InFlightFences = make([]*VulkanFence, VULKAN_MAX_FRAMES_IN_FLIGHT)
	}
	return nil
}

func (vw *VulkanWindow) destroySyncObjects(context *VulkanContext) {
	for _, semaphore := range vw.ImageAvailableSemaphores {
		if semaphore != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, semaphore, context.Allocator)
		}
	}
	for _, semaphore := range vw.QueueCompleteSemaphores {
		if semaphore != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, semaphore, context.Allocator)
		}
	}
	vw.ImageAvailableSemaphores = nil
	vw.QueueCompleteSemaphores = nil
}

// recreate waits for the device to go idle and replaces the swapchain and
// its semaphores. A signalled but never waited semaphore is dropped with it.
func (vw *VulkanWindow) recreate(d *Device, width, height uint32) error {
	context := d.context
	if err := d.WaitForIdle(); err != nil {
		return err
	}

	old := vw.Swapchain
	oldHandle := vk.NullSwapchain
	if old != nil {
		oldHandle = old.Handle
	}
	swapchain, err := createSwapchain(context, vw, width, height, oldHandle)
	if old != nil {
		old.destroy(context)
	}
	vw.Swapchain = nil
	if err != nil {
		return err
	}
	vw.Swapchain = swapchain

	vw.destroySyncObjects(context)
	if err := vw.createSyncObjects(context); err != nil {
		return err
	}
	vw.CurrentFrame = 0
	vw.NeedsRecreate = false
	return nil
}

func (vw *VulkanWindow) destroy(context *VulkanContext) {
	vw.destroySyncObjects(context)
	if vw.Swapchain != nil {
		vw.Swapchain.destroy(context)
		vw.Swapchain = nil
	}
	if vw.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, vw.Surface, context.Allocator)
		vw.Surface = vk.NullSurface
	}
}

func (v *VulkanCommandBuffer) WaitAndAcquireSwapchainTexture(w gpu.Window) (gpu.Texture, error) {
	if !v.isRecording() {
		return nil, ErrCommandBufferDone
	}
	if v.pass != nil {
		return nil, ErrPassOpen
	}
	if v.swapchainTexture != nil {
		return nil, fmt.Errorf("a swapchain texture was already acquired by this command buffer")
	}

	d := v.device
	window, ok := d.window(w)
	if !ok {
		return nil, fmt.Errorf("window was not claimed by the device")
	}

	width, height := w.FramebufferSize()
	if width <= 0 || height <= 0 {
		return nil, nil
	}
	if window.NeedsRecreate || window.Swapchain == nil ||
		window.Swapchain.Extent.Width != uint32(width) || window.Swapchain.Extent.Height != uint32(height) {
		if err := window.recreate(d, uint32(width), uint32(height)); err != nil {
			return nil, err
		}
	}

	frame := window.CurrentFrame
	if fence := window.InFlightFences[frame]; fence != nil && fence.Handle != vk.NullFence {
		if err := fence.FenceWait(d.context, VULKAN_WAIT_TIMEOUT_NS); err != nil {
			return nil, err
		}
	}
	window.InFlightFences[frame] = nil
	d.retire()

	var imageIndex uint32
	result := vk.AcquireNextImage(
		d.context.Device.LogicalDevice,
		window.Swapchain.Handle,
		VULKAN_WAIT_TIMEOUT_NS,
		window.ImageAvailableSemaphores[frame],
		vk.NullFence,
		&imageIndex,
	)
	switch result {
	case vk.Success:
	case vk.Suboptimal:
		// Usable this frame, recreated on the next acquire.
		window.NeedsRecreate = true
	case vk.ErrorOutOfDate:
		window.NeedsRecreate = true
		return nil, nil
	default:
		return nil, resultError("vkAcquireNextImage", result)
	}

	texture := window.Swapchain.Textures[imageIndex]
	v.window = window
	v.frame = frame
	v.imageIndex = imageIndex
	v.swapchainTexture = texture
	v.swapchainRendered = false
	return texture, nil
}

// SwapchainPresent queues the acquired image of cb for presentation once its
// rendering completed, then moves to the next frame slot.
func (vw *VulkanWindow) SwapchainPresent(d *Device, cb *VulkanCommandBuffer) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vw.QueueCompleteSemaphores[cb.frame]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vw.Swapchain.Handle},
		PImageIndices:      []uint32{cb.imageIndex},
	}

	var result vk.Result
	d.locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(d.context.Device.GraphicsQueue, &presentInfo)
		return nil
	})

	vw.InFlightFences[cb.frame] = cb.fence
	vw.CurrentFrame = (vw.CurrentFrame + 1) % VULKAN_MAX_FRAMES_IN_FLIGHT

	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Swapchain is out of date, suboptimal or a framebuffer resize has occurred.
		vw.NeedsRecreate = true
		return nil
	}
	return resultError("vkQueuePresent", result)
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	// Layout the image is in once all recorded work completed.
	Layout vk.ImageLayout
}

// VulkanTexture is a gpu.Texture. Swapchain textures wrap images owned by
// the swapchain and are never released by the caller.
type VulkanTexture struct {
	resource
	VulkanImage
	format    gpu.TextureFormat
	usage     gpu.TextureUsage
	swapchain *VulkanSwapchain
	// framebuffers keyed by the render pass they were created for
	framebuffers map[vk.RenderPass]*VulkanFramebuffer
}

func (t *VulkanTexture) Width() uint32 {
	return t.VulkanImage.Width
}

func (t *VulkanTexture) Height() uint32 {
	return t.VulkanImage.Height
}

func (t *VulkanTexture) Format() gpu.TextureFormat {
	return t.format
}

// ImageCreate creates a 2D image with device memory bound to it and, when
// createView is set, a view over its color aspect.
func ImageCreate(
	context *VulkanContext,
	width, height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
) (*VulkanImage, error) {
	image := &VulkanImage{
		Width:  width,
		Height: height,
		Format: format,
		Layout: vk.ImageLayoutUndefined,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if err := resultError("vkCreateImage", vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle)); err != nil {
		return nil, err
	}
	image.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	memory, err := context.allocateMemory(requirements, memoryFlags)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	image.Memory = memory

	if err := resultError("vkBindImageMemory", vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0)); err != nil {
		image.ImageDestroy(context)
		return nil, err
	}

	if createView {
		view, err := ImageViewCreate(context, handle, format)
		if err != nil {
			image.ImageDestroy(context)
			return nil, err
		}
		image.View = view
	}
	return image, nil
}

func ImageViewCreate(context *VulkanContext, image vk.Image, format vk.Format) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := resultError("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, vi.View, context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = vk.NullImage
	}
}

func TextureCreate(context *VulkanContext, info *gpu.TextureCreateInfo) (*VulkanTexture, error) {
	if info.Type != gpu.TextureType2D || info.LayerCountOrDepth > 1 || info.NumLevels > 1 {
		return nil, fmt.Errorf("only single level 2D textures are supported")
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("empty texture %dx%d", info.Width, info.Height)
	}
	format, ok := toVulkanFormat(info.Format)
	if !ok {
		return nil, fmt.Errorf("unsupported texture format %s", info.Format)
	}

	image, err := ImageCreate(
		context,
		info.Width,
		info.Height,
		format,
		vk.ImageTilingOptimal,
		toVulkanImageUsage(info.Usage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
	)
	if err != nil {
		return nil, err
	}
	return &VulkanTexture{
		resource:    newResource(),
		VulkanImage: *image,
		format:      info.Format,
		usage:       info.Usage,
	}, nil
}

func (t *VulkanTexture) Destroy(context *VulkanContext) {
	for _, fb := range t.framebuffers {
		fb.Destroy(context)
	}
	t.framebuffers = nil
	if t.swapchain == nil {
		t.ImageDestroy(context)
	}
}

// Framebuffer returns the framebuffer for renderpass, creating it on first
// use.
func (t *VulkanTexture) Framebuffer(context *VulkanContext, renderpass *VulkanRenderpass) (*VulkanFramebuffer, error) {
	if fb, ok := t.framebuffers[renderpass.Handle]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(context, renderpass, t.VulkanImage.Width, t.VulkanImage.Height, []vk.ImageView{t.View})
	if err != nil {
		return nil, err
	}
	if t.framebuffers == nil {
		t.framebuffers = make(map[vk.RenderPass]*VulkanFramebuffer)
	}
	t.framebuffers[renderpass.Handle] = fb
	return fb, nil
}

// transitionImageLayout records a barrier moving image from its tracked
// layout to newLayout.
func transitionImageLayout(commandBuffer vk.CommandBuffer, image *VulkanImage, newLayout vk.ImageLayout) {
	oldLayout := image.Layout
	if oldLayout == newLayout {
		return
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	srcAccess, srcStage := layoutAccess(oldLayout)
	dstAccess, dstStage := layoutAccess(newLayout)
	barrier.SrcAccessMask = srcAccess
	barrier.DstAccessMask = dstAccess

	vk.CmdPipelineBarrier(
		commandBuffer,
		srcStage, dstStage,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)
	image.Layout = newLayout
}

// layoutAccess returns the accesses that use an image in layout and the
// stage they happen in.
func layoutAccess(layout vk.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case vk.ImageLayoutPresentSrc:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

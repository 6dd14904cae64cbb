package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

var (
	ErrCommandBufferDone = errors.New("command buffer already submitted or cancelled")
	ErrPassOpen          = errors.New("a pass is still open")
)

// VulkanCommandBuffer is a single use primary command buffer. It keeps every
// resource it references alive until its fence signalled.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	device *Device
	// first recording error, reported by Submit
	err        error
	refs       map[uuid.UUID]struct{}
	onComplete []func()

	descriptorPool vk.DescriptorPool
	fence          *VulkanFence

	// open copy or render pass
	pass any

	// presentation state, set once a swapchain image was acquired
	window            *VulkanWindow
	frame             uint32
	imageIndex        uint32
	swapchainTexture  *VulkanTexture
	swapchainRendered bool
}

func NewVulkanCommandBuffer(device *Device, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb := &VulkanCommandBuffer{
		State:  COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		device: device,
		refs:   make(map[uuid.UUID]struct{}),
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	err := device.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(device.context.Device.LogicalDevice, &allocateInfo, handles))
	})
	if err != nil {
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Free returns the command buffer and its descriptor pool to the device.
func (v *VulkanCommandBuffer) Free() {
	context := v.device.context
	if v.Handle != nil {
		v.device.locks.SafeCall(CommandBufferManagement, func() error {
			vk.FreeCommandBuffers(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
			return nil
		})
		v.Handle = nil
	}
	if v.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, v.descriptorPool, context.Allocator)
		v.descriptorPool = vk.NullDescriptorPool
	}
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		v.err = err
		core.LogError("command buffer recording failed: %s", err)
	}
}

func (v *VulkanCommandBuffer) reference(r gpu.Resource) {
	v.refs[r.ID()] = struct{}{}
}

func (v *VulkanCommandBuffer) isRecording() bool {
	return v.State == COMMAND_BUFFER_STATE_RECORDING || v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) recording() bool {
	if !v.isRecording() {
		v.fail(fmt.Errorf("command buffer is not recording: %w", ErrCommandBufferDone))
		return false
	}
	if v.pass != nil {
		v.fail(ErrPassOpen)
		return false
	}
	return true
}

func (v *VulkanCommandBuffer) BeginCopyPass() gpu.CopyPass {
	pass := &VulkanCopyPass{commandBuffer: v}
	if !v.recording() {
		pass.ended = true
		return pass
	}
	v.pass = pass
	return pass
}

func (v *VulkanCommandBuffer) BeginRenderPass(colorTargets []gpu.ColorTargetInfo) gpu.RenderPass {
	if !v.recording() {
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}
	if len(colorTargets) != 1 {
		v.fail(fmt.Errorf("render pass needs exactly one color target, got %d", len(colorTargets)))
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}
	target := colorTargets[0]
	texture, ok := target.Texture.(*VulkanTexture)
	if !ok || texture.View == vk.NullImageView {
		v.fail(fmt.Errorf("render pass target is not a valid texture"))
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}
	if texture.swapchain == nil && texture.usage&gpu.TextureUsageColorTarget == 0 {
		v.fail(fmt.Errorf("texture %s was not created as a color target", texture.ID()))
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}

	renderpass, err := v.device.getRenderpass(targetRenderpassKey(texture, target))
	if err != nil {
		v.fail(err)
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}
	framebuffer, err := texture.Framebuffer(v.device.context, renderpass)
	if err != nil {
		v.fail(err)
		return &VulkanRenderPassEncoder{commandBuffer: v, ended: true}
	}
	if texture.swapchain == nil {
		v.reference(texture)
	}

	renderpass.RenderpassBegin(v, framebuffer, texture.VulkanImage.Width, texture.VulkanImage.Height, target.ClearColor)
	encoder := &VulkanRenderPassEncoder{
		commandBuffer: v,
		renderpass:    renderpass,
		target:        texture,
	}
	v.pass = encoder
	return encoder
}

func (v *VulkanCommandBuffer) Submit() error {
	_, err := v.submit()
	return err
}

func (v *VulkanCommandBuffer) SubmitAndAcquireFence() (gpu.Fence, error) {
	fence, err := v.submit()
	if err != nil {
		return nil, err
	}
	fence.acquired = true
	return fence, nil
}

func (v *VulkanCommandBuffer) submit() (*VulkanFence, error) {
	if !v.isRecording() {
		return nil, ErrCommandBufferDone
	}
	if v.pass != nil {
		v.abandon()
		return nil, ErrPassOpen
	}
	if v.err != nil {
		v.abandon()
		return nil, v.err
	}

	// an acquired image must reach the present layout even when nothing
	// rendered to it
	if v.swapchainTexture != nil && !v.swapchainRendered {
		transitionImageLayout(v.Handle, &v.swapchainTexture.VulkanImage, vk.ImageLayoutPresentSrc)
	}

	if err := v.End(); err != nil {
		v.abandon()
		return nil, err
	}

	fence, err := NewFence(v.device.context, false)
	if err != nil {
		v.abandon()
		return nil, err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if v.window != nil {
		// Wait until the image is available, signal once rendering completed.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{v.window.ImageAvailableSemaphores[v.frame]}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{v.window.QueueCompleteSemaphores[v.frame]}
	}

	context := v.device.context
	err = v.device.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	})
	if err != nil {
		fence.FenceDestroy(context)
		v.abandon()
		return nil, err
	}

	v.State = COMMAND_BUFFER_STATE_SUBMITTED
	v.fence = fence
	v.device.track(v)

	if v.window != nil {
		if err := v.window.SwapchainPresent(v.device, v); err != nil {
			return nil, err
		}
	}
	return fence, nil
}

func (v *VulkanCommandBuffer) Cancel() error {
	if !v.isRecording() {
		return ErrCommandBufferDone
	}
	if v.swapchainTexture != nil {
		return fmt.Errorf("cannot cancel a command buffer after acquiring a swapchain texture")
	}
	v.abandon()
	return nil
}

// abandon drops a command buffer that never reached the queue.
func (v *VulkanCommandBuffer) abandon() {
	if v.window != nil {
		// the image available semaphore was signalled but never waited on
		v.window.NeedsRecreate = true
	}
	v.device.untrack(v)
	v.Free()
	v.complete()
}

// complete runs the deferred releases of the resources it referenced.
func (v *VulkanCommandBuffer) complete() {
	callbacks := v.onComplete
	v.onComplete = nil
	v.refs = nil
	for _, fn := range callbacks {
		fn()
	}
}

// VulkanCopyPass records transfers between transfer buffers, buffers and
// textures.
type VulkanCopyPass struct {
	commandBuffer *VulkanCommandBuffer
	ended         bool
	hasDownloads  bool
}

func (p *VulkanCopyPass) open() bool {
	if p.ended {
		p.commandBuffer.fail(fmt.Errorf("copy pass used after End"))
		return false
	}
	return true
}

func (p *VulkanCopyPass) UploadToBuffer(src gpu.TransferBufferLocation, dst gpu.BufferRegion) {
	if !p.open() {
		return
	}
	tb, ok := src.TransferBuffer.(*VulkanTransferBuffer)
	if !ok || tb.Handle == vk.NullBuffer {
		p.commandBuffer.fail(fmt.Errorf("upload from an invalid transfer buffer"))
		return
	}
	buffer, ok := dst.Buffer.(*VulkanBuffer)
	if !ok || buffer.Handle == vk.NullBuffer {
		p.commandBuffer.fail(fmt.Errorf("upload to an invalid buffer"))
		return
	}
	if uint64(src.Offset)+uint64(dst.Size) > uint64(tb.size) || uint64(dst.Offset)+uint64(dst.Size) > uint64(buffer.size) {
		p.commandBuffer.fail(fmt.Errorf("buffer upload of %d bytes out of range", dst.Size))
		return
	}

	vk.CmdCopyBuffer(p.commandBuffer.Handle, tb.Handle, buffer.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(src.Offset),
		DstOffset: vk.DeviceSize(dst.Offset),
		Size:      vk.DeviceSize(dst.Size),
	}})
	p.commandBuffer.reference(tb)
	p.commandBuffer.reference(buffer)
}

func (p *VulkanCopyPass) UploadToTexture(src gpu.TextureTransferInfo, dst gpu.TextureRegion) {
	if !p.open() {
		return
	}
	tb, ok := src.TransferBuffer.(*VulkanTransferBuffer)
	if !ok || tb.Handle == vk.NullBuffer {
		p.commandBuffer.fail(fmt.Errorf("upload from an invalid transfer buffer"))
		return
	}
	texture, ok := dst.Texture.(*VulkanTexture)
	if !ok || texture.Handle == vk.NullImage || texture.swapchain != nil {
		p.commandBuffer.fail(fmt.Errorf("upload to an invalid texture"))
		return
	}
	if dst.W == 0 || dst.H == 0 {
		p.commandBuffer.fail(fmt.Errorf("empty texture region"))
		return
	}
	if dst.X+dst.W > texture.VulkanImage.Width || dst.Y+dst.H > texture.VulkanImage.Height || dst.Z != 0 || dst.D > 1 {
		p.commandBuffer.fail(fmt.Errorf("texture region %dx%d+%d+%d out of range", dst.W, dst.H, dst.X, dst.Y))
		return
	}
	pixelsPerRow := src.PixelsPerRow
	if pixelsPerRow == 0 {
		pixelsPerRow = dst.W
	}
	rowsPerLayer := src.RowsPerLayer
	if rowsPerLayer == 0 {
		rowsPerLayer = dst.H
	}
	bpp := texture.format.BytesPerPixel()
	needed := uint64(pixelsPerRow)*uint64(rowsPerLayer-1)*uint64(bpp) + uint64(dst.W)*uint64(bpp)
	if uint64(src.Offset)+needed > uint64(tb.size) {
		p.commandBuffer.fail(fmt.Errorf("texture upload reads past the transfer buffer"))
		return
	}

	transitionImageLayout(p.commandBuffer.Handle, &texture.VulkanImage, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(
		p.commandBuffer.Handle,
		tb.Handle,
		texture.Handle,
		vk.ImageLayoutTransferDstOptimal,
		1,
		[]vk.BufferImageCopy{{
			BufferOffset:      vk.DeviceSize(src.Offset),
			BufferRowLength:   pixelsPerRow,
			BufferImageHeight: rowsPerLayer,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: int32(dst.X), Y: int32(dst.Y), Z: 0},
			ImageExtent: vk.Extent3D{Width: dst.W, Height: dst.H, Depth: 1},
		}},
	)
	if texture.usage&gpu.TextureUsageSampler != 0 {
		transitionImageLayout(p.commandBuffer.Handle, &texture.VulkanImage, vk.ImageLayoutShaderReadOnlyOptimal)
	}
	p.commandBuffer.reference(tb)
	p.commandBuffer.reference(texture)
}

func (p *VulkanCopyPass) DownloadFromBuffer(src gpu.BufferRegion, dst gpu.TransferBufferLocation) {
	if !p.open() {
		return
	}
	buffer, ok := src.Buffer.(*VulkanBuffer)
	if !ok || buffer.Handle == vk.NullBuffer {
		p.commandBuffer.fail(fmt.Errorf("download from an invalid buffer"))
		return
	}
	tb, ok := dst.TransferBuffer.(*VulkanTransferBuffer)
	if !ok || tb.Handle == vk.NullBuffer || tb.usage != gpu.TransferBufferUsageDownload {
		p.commandBuffer.fail(fmt.Errorf("download to an invalid transfer buffer"))
		return
	}
	if uint64(src.Offset)+uint64(src.Size) > uint64(buffer.size) || uint64(dst.Offset)+uint64(src.Size) > uint64(tb.size) {
		p.commandBuffer.fail(fmt.Errorf("buffer download of %d bytes out of range", src.Size))
		return
	}

	vk.CmdCopyBuffer(p.commandBuffer.Handle, buffer.Handle, tb.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(src.Offset),
		DstOffset: vk.DeviceSize(dst.Offset),
		Size:      vk.DeviceSize(src.Size),
	}})
	p.hasDownloads = true
	p.commandBuffer.reference(buffer)
	p.commandBuffer.reference(tb)
}

// End makes the copies visible to vertex input, shaders and, for downloads,
// the host.
func (p *VulkanCopyPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.commandBuffer.pass = nil

	dstAccess := vk.AccessFlags(vk.AccessVertexAttributeReadBit) | vk.AccessFlags(vk.AccessIndexReadBit) | vk.AccessFlags(vk.AccessShaderReadBit)
	dstStage := vk.PipelineStageFlags(vk.PipelineStageVertexInputBit) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	if p.hasDownloads {
		dstAccess |= vk.AccessFlags(vk.AccessHostReadBit)
		dstStage |= vk.PipelineStageFlags(vk.PipelineStageHostBit)
	}
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: dstAccess,
	}
	vk.CmdPipelineBarrier(
		p.commandBuffer.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit), dstStage,
		0,
		1, []vk.MemoryBarrier{barrier},
		0, nil,
		0, nil,
	)
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// renderpassKey identifies a single color attachment render pass. Render
// passes that only differ in load/store ops and layouts are compatible, so
// pipelines are built against the key with clear/store/present.
type renderpassKey struct {
	Format        vk.Format
	LoadOp        vk.AttachmentLoadOp
	StoreOp       vk.AttachmentStoreOp
	InitialLayout vk.ImageLayout
	FinalLayout   vk.ImageLayout
}

func compatibleRenderpassKey(format vk.Format) renderpassKey {
	return renderpassKey{
		Format:        format,
		LoadOp:        vk.AttachmentLoadOpClear,
		StoreOp:       vk.AttachmentStoreOpStore,
		InitialLayout: vk.ImageLayoutUndefined,
		FinalLayout:   vk.ImageLayoutPresentSrc,
	}
}

// targetRenderpassKey derives the render pass a color target needs from the
// texture's current layout.
func targetRenderpassKey(texture *VulkanTexture, target gpu.ColorTargetInfo) renderpassKey {
	key := renderpassKey{
		Format:        texture.VulkanImage.Format,
		LoadOp:        toVulkanLoadOp(target.LoadOp),
		StoreOp:       toVulkanStoreOp(target.StoreOp),
		InitialLayout: vk.ImageLayoutUndefined,
		FinalLayout:   vk.ImageLayoutColorAttachmentOptimal,
	}
	if target.LoadOp == gpu.LoadOpLoad {
		key.InitialLayout = texture.Layout
	}
	switch {
	case texture.swapchain != nil:
		key.FinalLayout = vk.ImageLayoutPresentSrc
	case texture.usage&gpu.TextureUsageSampler != 0:
		key.FinalLayout = vk.ImageLayoutShaderReadOnlyOptimal
	}
	return key
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	Key    renderpassKey
}

func RenderpassCreate(context *VulkanContext, key renderpassKey) (*VulkanRenderpass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         key.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         key.LoadOp,
		StoreOp:        key.StoreOp,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  key.InitialLayout,
		FinalLayout:    key.FinalLayout,
	}

	colorAttachmentReference := []vk.AttachmentReference{
		{
			Attachment: 0, // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentReference,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := resultError("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass)); err != nil {
		return nil, err
	}
	return &VulkanRenderpass{Handle: pRenderPass, Key: key}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, width, height uint32, clear gpu.Color) {
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor([]float32{clear.R, clear.G, clear.B, clear.A})

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS

	// The viewport is flipped so that clip space y points up, like the
	// other backends of the device API.
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(height),
		Width:    float32(width),
		Height:   -float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

// getRenderpass returns the cached render pass for key.
func (d *Device) getRenderpass(key renderpassKey) (*VulkanRenderpass, error) {
	var renderpass *VulkanRenderpass
	err := d.locks.SafeCall(RenderpassManagement, func() error {
		if rp, ok := d.renderpasses[key]; ok {
			renderpass = rp
			return nil
		}
		rp, err := RenderpassCreate(d.context, key)
		if err != nil {
			return err
		}
		d.renderpasses[key] = rp
		renderpass = rp
		return nil
	})
	return renderpass, err
}

// VulkanRenderPassEncoder records draws into a command buffer between
// BeginRenderPass and End.
type VulkanRenderPassEncoder struct {
	commandBuffer *VulkanCommandBuffer
	renderpass    *VulkanRenderpass
	target        *VulkanTexture

	pipeline        *VulkanPipeline
	samplers        []gpu.TextureSamplerBinding
	samplersChanged bool
	ended           bool
}

func (e *VulkanRenderPassEncoder) fail(err error) {
	e.commandBuffer.fail(err)
}

func (e *VulkanRenderPassEncoder) BindGraphicsPipeline(p gpu.GraphicsPipeline) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok || pipeline.Handle == vk.NullPipeline {
		e.fail(fmt.Errorf("bind of an invalid graphics pipeline"))
		return
	}
	if pipeline.ColorFormat != e.target.VulkanImage.Format {
		e.fail(fmt.Errorf("pipeline color format does not match the render target"))
		return
	}
	vk.CmdBindPipeline(e.commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
	e.commandBuffer.reference(pipeline)
	e.pipeline = pipeline
	e.samplersChanged = true
}

func (e *VulkanRenderPassEncoder) BindVertexBuffers(firstSlot uint32, bindings []gpu.BufferBinding) {
	if len(bindings) == 0 {
		return
	}
	buffers := make([]vk.Buffer, len(bindings))
	offsets := make([]vk.DeviceSize, len(bindings))
	for i, b := range bindings {
		buffer, ok := b.Buffer.(*VulkanBuffer)
		if !ok || buffer.Handle == vk.NullBuffer {
			e.fail(fmt.Errorf("vertex buffer slot %d: invalid buffer", firstSlot+uint32(i)))
			return
		}
		buffers[i] = buffer.Handle
		offsets[i] = vk.DeviceSize(b.Offset)
		e.commandBuffer.reference(buffer)
	}
	vk.CmdBindVertexBuffers(e.commandBuffer.Handle, firstSlot, uint32(len(buffers)), buffers, offsets)
}

func (e *VulkanRenderPassEncoder) BindIndexBuffer(binding gpu.BufferBinding, size gpu.IndexElementSize) {
	buffer, ok := binding.Buffer.(*VulkanBuffer)
	if !ok || buffer.Handle == vk.NullBuffer {
		e.fail(fmt.Errorf("invalid index buffer"))
		return
	}
	vk.CmdBindIndexBuffer(e.commandBuffer.Handle, buffer.Handle, vk.DeviceSize(binding.Offset), toVulkanIndexType(size))
	e.commandBuffer.reference(buffer)
}

func (e *VulkanRenderPassEncoder) BindFragmentSamplers(firstSlot uint32, bindings []gpu.TextureSamplerBinding) {
	needed := int(firstSlot) + len(bindings)
	if needed > int(VULKAN_MAX_SAMPLER_SLOTS) {
		e.fail(fmt.Errorf("sampler slot %d exceeds the maximum of %d", needed-1, VULKAN_MAX_SAMPLER_SLOTS))
		return
	}
	if len(e.samplers) < needed {
		e.samplers = append(e.samplers, make([]gpu.TextureSamplerBinding, needed-len(e.samplers))...)
	}
	copy(e.samplers[firstSlot:], bindings)
	e.samplersChanged = true
}

// flushSamplers writes and binds a descriptor set for the sampler slots the
// bound pipeline declares.
func (e *VulkanRenderPassEncoder) flushSamplers() bool {
	if e.pipeline == nil {
		e.fail(fmt.Errorf("draw without a bound graphics pipeline"))
		return false
	}
	if !e.samplersChanged || e.pipeline.SamplerCount == 0 {
		return true
	}
	if len(e.samplers) < int(e.pipeline.SamplerCount) {
		e.fail(fmt.Errorf("pipeline uses %d sampler slots, %d bound", e.pipeline.SamplerCount, len(e.samplers)))
		return false
	}

	set, err := e.commandBuffer.allocateDescriptorSet(e.pipeline.DescriptorSetLayout)
	if err != nil {
		e.fail(err)
		return false
	}

	writes := make([]vk.WriteDescriptorSet, 0, 2*e.pipeline.SamplerCount)
	for i := uint32(0); i < e.pipeline.SamplerCount; i++ {
		texture, ok := e.samplers[i].Texture.(*VulkanTexture)
		if !ok || texture.View == vk.NullImageView {
			e.fail(fmt.Errorf("sampler slot %d: invalid texture", i))
			return false
		}
		sampler, ok := e.samplers[i].Sampler.(*VulkanSampler)
		if !ok || sampler.Handle == vk.NullSampler {
			e.fail(fmt.Errorf("sampler slot %d: invalid sampler", i))
			return false
		}
		e.commandBuffer.reference(texture)
		e.commandBuffer.reference(sampler)

		writes = append(writes,
			vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      2 * i,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				PImageInfo: []vk.DescriptorImageInfo{{
					ImageView:   texture.View,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}},
			},
			vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      2*i + 1,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampler,
				PImageInfo: []vk.DescriptorImageInfo{{
					Sampler: sampler.Handle,
				}},
			},
		)
	}
	vk.UpdateDescriptorSets(e.commandBuffer.device.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	vk.CmdBindDescriptorSets(
		e.commandBuffer.Handle,
		vk.PipelineBindPointGraphics,
		e.pipeline.PipelineLayout,
		0,
		1,
		[]vk.DescriptorSet{set},
		0,
		nil,
	)
	e.samplersChanged = false
	return true
}

func (e *VulkanRenderPassEncoder) DrawPrimitives(numVertices, numInstances, firstVertex, firstInstance uint32) {
	if !e.flushSamplers() {
		return
	}
	vk.CmdDraw(e.commandBuffer.Handle, numVertices, numInstances, firstVertex, firstInstance)
}

func (e *VulkanRenderPassEncoder) DrawIndexedPrimitives(numIndices, numInstances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !e.flushSamplers() {
		return
	}
	vk.CmdDrawIndexed(e.commandBuffer.Handle, numIndices, numInstances, firstIndex, vertexOffset, firstInstance)
}

func (e *VulkanRenderPassEncoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	e.renderpass.RenderpassEnd(e.commandBuffer)
	e.target.Layout = e.renderpass.Key.FinalLayout
	if e.target.swapchain != nil {
		e.commandBuffer.swapchainRendered = true
	}
	e.commandBuffer.pass = nil
}

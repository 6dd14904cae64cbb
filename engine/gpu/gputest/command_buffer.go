package gputest

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/texel/engine/gpu"
)

var (
	ErrCommandBufferDone = errors.New("command buffer already submitted or cancelled")
	ErrPassOpen          = errors.New("a pass is still open")
)

type CommandBuffer struct {
	device *Device

	ops       []func() error
	draws     []Draw
	transfers []*TransferBuffer
	err       error
	passOpen  bool
	acquired  bool
	done      bool
}

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *CommandBuffer) reference(tb gpu.TransferBuffer) *TransferBuffer {
	t, ok := tb.(*TransferBuffer)
	if !ok || t == nil {
		cb.fail(errors.New("invalid transfer buffer"))
		return nil
	}
	if t.mapped {
		cb.fail(errors.New("transfer buffer used in a copy while mapped"))
	}
	cb.device.mu.Lock()
	cb.device.pending[t]++
	cb.device.mu.Unlock()
	cb.transfers = append(cb.transfers, t)
	return t
}

func (cb *CommandBuffer) WaitAndAcquireSwapchainTexture(w gpu.Window) (gpu.Texture, error) {
	d := cb.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitAndAcquireSwapchainTexture")
	if cb.done {
		return nil, ErrCommandBufferDone
	}
	if !d.claimed[w] {
		return nil, errors.New("window not claimed by device")
	}
	if cb.acquired {
		return nil, errors.New("swapchain texture already acquired for this command buffer")
	}
	width, height := w.FramebufferSize()
	if d.SwapchainUnavailable || width <= 0 || height <= 0 {
		return nil, nil
	}
	cb.acquired = true
	return &Texture{
		handle: newHandle(),
		Info: gpu.TextureCreateInfo{
			Type:              gpu.TextureType2D,
			Format:            d.swapchainFormat,
			Usage:             gpu.TextureUsageColorTarget,
			Width:             uint32(width),
			Height:            uint32(height),
			LayerCountOrDepth: 1,
			NumLevels:         1,
		},
		swapchain: true,
	}, nil
}

func (cb *CommandBuffer) BeginCopyPass() gpu.CopyPass {
	cb.device.mu.Lock()
	cb.device.record("BeginCopyPass")
	cb.device.mu.Unlock()
	if cb.passOpen {
		cb.fail(ErrPassOpen)
	}
	cb.passOpen = true
	return &CopyPass{cb: cb}
}

func (cb *CommandBuffer) BeginRenderPass(colorTargets []gpu.ColorTargetInfo) gpu.RenderPass {
	cb.device.mu.Lock()
	cb.device.record("BeginRenderPass")
	cb.device.mu.Unlock()
	if cb.passOpen {
		cb.fail(ErrPassOpen)
	}
	if len(colorTargets) == 0 || colorTargets[0].Texture == nil {
		cb.fail(errors.New("render pass without color target"))
	}
	cb.passOpen = true
	rp := &RenderPass{cb: cb}
	if len(colorTargets) > 0 {
		rp.target = colorTargets[0]
	}
	return rp
}

func (cb *CommandBuffer) Submit() error {
	_, err := cb.submit("Submit")
	return err
}

func (cb *CommandBuffer) SubmitAndAcquireFence() (gpu.Fence, error) {
	f, err := cb.submit("SubmitAndAcquireFence")
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (cb *CommandBuffer) submit(call string) (*Fence, error) {
	d := cb.device
	d.mu.Lock()
	d.record(call)
	if cb.done {
		d.mu.Unlock()
		return nil, ErrCommandBufferDone
	}
	cb.done = true
	for _, t := range cb.transfers {
		d.pending[t]--
	}
	d.submitted++
	n := d.submitted
	failure := d.Failures.Submit
	if failure == nil && d.Failures.SubmitAt != 0 && n == d.Failures.SubmitAt {
		failure = fmt.Errorf("%w: submission %d", ErrInjected, n)
	}
	d.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if cb.passOpen {
		return nil, ErrPassOpen
	}
	if cb.err != nil {
		return nil, cb.err
	}
	for _, op := range cb.ops {
		if err := op(); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.draws = append(d.draws, cb.draws...)
	d.mu.Unlock()
	return &Fence{handle: newHandle(), signalled: true}, nil
}

func (cb *CommandBuffer) Cancel() error {
	d := cb.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Cancel")
	if cb.done {
		return ErrCommandBufferDone
	}
	if cb.acquired {
		return errors.New("cannot cancel a command buffer that acquired a swapchain texture")
	}
	cb.done = true
	for _, t := range cb.transfers {
		d.pending[t]--
	}
	return nil
}

type CopyPass struct {
	cb *CommandBuffer
}

func (cp *CopyPass) UploadToBuffer(src gpu.TransferBufferLocation, dst gpu.BufferRegion) {
	cp.cb.device.mu.Lock()
	cp.cb.device.record("UploadToBuffer")
	cp.cb.device.mu.Unlock()
	tb := cp.cb.reference(src.TransferBuffer)
	buf, ok := dst.Buffer.(*Buffer)
	if tb == nil || !ok {
		cp.cb.fail(errors.New("invalid upload to buffer"))
		return
	}
	cp.cb.ops = append(cp.cb.ops, func() error {
		if uint64(src.Offset)+uint64(dst.Size) > uint64(len(tb.data)) {
			return fmt.Errorf("upload source range [%d, %d) exceeds transfer buffer size %d", src.Offset, src.Offset+dst.Size, len(tb.data))
		}
		if uint64(dst.Offset)+uint64(dst.Size) > uint64(len(buf.Data)) {
			return fmt.Errorf("upload destination range [%d, %d) exceeds buffer size %d", dst.Offset, dst.Offset+dst.Size, len(buf.Data))
		}
		copy(buf.Data[dst.Offset:dst.Offset+dst.Size], tb.data[src.Offset:src.Offset+dst.Size])
		return nil
	})
}

func (cp *CopyPass) UploadToTexture(src gpu.TextureTransferInfo, dst gpu.TextureRegion) {
	cp.cb.device.mu.Lock()
	cp.cb.device.record("UploadToTexture")
	cp.cb.device.mu.Unlock()
	tb := cp.cb.reference(src.TransferBuffer)
	tex, ok := dst.Texture.(*Texture)
	if tb == nil || !ok {
		cp.cb.fail(errors.New("invalid upload to texture"))
		return
	}
	cp.cb.ops = append(cp.cb.ops, func() error {
		if dst.D != 1 || dst.Z != 0 {
			return errors.New("only 2D texture regions are supported")
		}
		if dst.X+dst.W > tex.Info.Width || dst.Y+dst.H > tex.Info.Height {
			return errors.New("texture region exceeds texture bounds")
		}
		bpp := tex.Info.Format.BytesPerPixel()
		pixelsPerRow := src.PixelsPerRow
		if pixelsPerRow == 0 {
			pixelsPerRow = dst.W
		}
		srcPitch := pixelsPerRow * bpp
		rowBytes := dst.W * bpp
		need := uint64(src.Offset) + uint64(srcPitch)*uint64(dst.H-1) + uint64(rowBytes)
		if need > uint64(len(tb.data)) {
			return fmt.Errorf("texture upload needs %d bytes, transfer buffer holds %d", need, len(tb.data))
		}
		for row := uint32(0); row < dst.H; row++ {
			s := src.Offset + row*srcPitch
			o := ((dst.Y+row)*tex.Info.Width + dst.X) * bpp
			copy(tex.Data[o:o+rowBytes], tb.data[s:s+rowBytes])
		}
		return nil
	})
}

func (cp *CopyPass) DownloadFromBuffer(src gpu.BufferRegion, dst gpu.TransferBufferLocation) {
	cp.cb.device.mu.Lock()
	cp.cb.device.record("DownloadFromBuffer")
	cp.cb.device.mu.Unlock()
	tb := cp.cb.reference(dst.TransferBuffer)
	buf, ok := src.Buffer.(*Buffer)
	if tb == nil || !ok {
		cp.cb.fail(errors.New("invalid download from buffer"))
		return
	}
	cp.cb.ops = append(cp.cb.ops, func() error {
		if uint64(src.Offset)+uint64(src.Size) > uint64(len(buf.Data)) ||
			uint64(dst.Offset)+uint64(src.Size) > uint64(len(tb.data)) {
			return errors.New("download range out of bounds")
		}
		copy(tb.data[dst.Offset:dst.Offset+src.Size], buf.Data[src.Offset:src.Offset+src.Size])
		return nil
	})
}

func (cp *CopyPass) End() {
	cp.cb.device.mu.Lock()
	cp.cb.device.record("EndCopyPass")
	cp.cb.device.mu.Unlock()
	cp.cb.passOpen = false
}

type RenderPass struct {
	cb *CommandBuffer

	target        gpu.ColorTargetInfo
	pipeline      *GraphicsPipeline
	vertexBuffers []gpu.BufferBinding
	indexBuffer   *gpu.BufferBinding
	indexSize     gpu.IndexElementSize
	samplers      []gpu.TextureSamplerBinding
}

func (rp *RenderPass) log(call string) {
	rp.cb.device.mu.Lock()
	rp.cb.device.record(call)
	rp.cb.device.mu.Unlock()
}

func (rp *RenderPass) BindGraphicsPipeline(p gpu.GraphicsPipeline) {
	rp.log("BindGraphicsPipeline")
	gp, ok := p.(*GraphicsPipeline)
	if !ok || gp == nil {
		rp.cb.fail(errors.New("invalid graphics pipeline"))
		return
	}
	rp.pipeline = gp
}

func (rp *RenderPass) BindVertexBuffers(firstSlot uint32, bindings []gpu.BufferBinding) {
	rp.log("BindVertexBuffers")
	need := int(firstSlot) + len(bindings)
	for len(rp.vertexBuffers) < need {
		rp.vertexBuffers = append(rp.vertexBuffers, gpu.BufferBinding{})
	}
	for i, b := range bindings {
		if b.Buffer == nil || b.Buffer.Usage()&gpu.BufferUsageVertex == 0 {
			rp.cb.fail(fmt.Errorf("buffer bound at vertex slot %d is not a vertex buffer", int(firstSlot)+i))
		}
		rp.vertexBuffers[int(firstSlot)+i] = b
	}
}

func (rp *RenderPass) BindIndexBuffer(binding gpu.BufferBinding, size gpu.IndexElementSize) {
	rp.log("BindIndexBuffer")
	if binding.Buffer == nil || binding.Buffer.Usage()&gpu.BufferUsageIndex == 0 {
		rp.cb.fail(errors.New("bound index buffer is not an index buffer"))
	}
	rp.indexBuffer = &binding
	rp.indexSize = size
}

func (rp *RenderPass) BindFragmentSamplers(firstSlot uint32, bindings []gpu.TextureSamplerBinding) {
	rp.log("BindFragmentSamplers")
	need := int(firstSlot) + len(bindings)
	for len(rp.samplers) < need {
		rp.samplers = append(rp.samplers, gpu.TextureSamplerBinding{})
	}
	for i, b := range bindings {
		if b.Texture == nil || b.Sampler == nil {
			rp.cb.fail(fmt.Errorf("incomplete texture sampler binding at slot %d", int(firstSlot)+i))
		}
		rp.samplers[int(firstSlot)+i] = b
	}
}

func (rp *RenderPass) validateDraw() bool {
	if rp.pipeline == nil {
		rp.cb.fail(errors.New("draw without a bound graphics pipeline"))
		return false
	}
	for _, vb := range rp.pipeline.Info.VertexInputState.VertexBufferDescriptions {
		if int(vb.Slot) >= len(rp.vertexBuffers) || rp.vertexBuffers[vb.Slot].Buffer == nil {
			rp.cb.fail(fmt.Errorf("pipeline expects a vertex buffer at slot %d", vb.Slot))
			return false
		}
	}
	samplers := rp.pipeline.Info.FragmentShader.(*Shader).Info.NumSamplers
	if uint32(len(rp.samplers)) < samplers {
		rp.cb.fail(fmt.Errorf("fragment shader expects %d samplers, %d bound", samplers, len(rp.samplers)))
		return false
	}
	return true
}

func (rp *RenderPass) draw(d Draw) {
	d.Pipeline = rp.pipeline
	d.VertexBuffers = append([]gpu.BufferBinding(nil), rp.vertexBuffers...)
	d.IndexBuffer = rp.indexBuffer
	d.IndexSize = rp.indexSize
	d.Samplers = append([]gpu.TextureSamplerBinding(nil), rp.samplers...)
	d.Target = rp.target
	rp.cb.draws = append(rp.cb.draws, d)
}

func (rp *RenderPass) DrawPrimitives(numVertices, numInstances, firstVertex, firstInstance uint32) {
	rp.log("DrawPrimitives")
	if !rp.validateDraw() {
		return
	}
	rp.draw(Draw{Count: numVertices, Instances: numInstances, First: firstVertex, FirstInstance: firstInstance})
}

func (rp *RenderPass) DrawIndexedPrimitives(numIndices, numInstances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	rp.log("DrawIndexedPrimitives")
	if !rp.validateDraw() {
		return
	}
	if rp.indexBuffer == nil {
		rp.cb.fail(errors.New("indexed draw without an index buffer"))
		return
	}
	end := uint64(rp.indexBuffer.Offset) + uint64(firstIndex+numIndices)*uint64(rp.indexSize.Bytes())
	if end > uint64(rp.indexBuffer.Buffer.Size()) {
		rp.cb.fail(fmt.Errorf("indexed draw reads past the end of the index buffer (%d > %d)", end, rp.indexBuffer.Buffer.Size()))
		return
	}
	rp.draw(Draw{
		Indexed:       true,
		Count:         numIndices,
		Instances:     numInstances,
		First:         firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

func (rp *RenderPass) End() {
	rp.log("EndRenderPass")
	rp.cb.passOpen = false
}

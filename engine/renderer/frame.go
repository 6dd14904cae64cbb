package renderer

import (
	"fmt"

	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// FrameState is the step a FrameRenderer is at within the current frame. It
// returns to FrameStateIdle after every submission.
type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateCommandAcquired
	FrameStateSurfaceAcquired
	FrameStateInRenderPass
	FrameStateSubmitted
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "Idle"
	case FrameStateCommandAcquired:
		return "CommandAcquired"
	case FrameStateSurfaceAcquired:
		return "SurfaceAcquired"
	case FrameStateInRenderPass:
		return "InRenderPass"
	case FrameStateSubmitted:
		return "Submitted"
	}
	return "Unknown"
}

// MeshBindings are the resources of an indexed, textured draw. Indices are
// 32-bit.
type MeshBindings struct {
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	Texture      gpu.Texture
	Sampler      gpu.Sampler
}

// FrameStats counts frames since the renderer was created.
type FrameStats struct {
	Frames   uint64
	Rendered uint64
	// Frames submitted without a render pass because no swapchain image was available.
	Skipped uint64
}

// FrameRenderer records and submits one render pass per frame.
type FrameRenderer struct {
	device     gpu.Device
	window     gpu.Window
	pipeline   gpu.GraphicsPipeline
	mesh       *MeshBindings
	clearColor gpu.Color

	state    FrameState
	observer func(FrameState)
	stats    FrameStats
}

// NewFrameRenderer draws mesh when set, otherwise a three vertex triangle
// generated by the vertex shader.
func NewFrameRenderer(device gpu.Device, window gpu.Window, pipeline gpu.GraphicsPipeline, mesh *MeshBindings, clearColor gpu.Color) *FrameRenderer {
	return &FrameRenderer{
		device:     device,
		window:     window,
		pipeline:   pipeline,
		mesh:       mesh,
		clearColor: clearColor,
		state:      FrameStateIdle,
	}
}

// OnStateChange registers fn to be called on every state transition.
func (fr *FrameRenderer) OnStateChange(fn func(FrameState)) {
	fr.observer = fn
}

func (fr *FrameRenderer) setState(s FrameState) {
	fr.state = s
	if fr.observer != nil {
		fr.observer(s)
	}
}

// State returns the current step, FrameStateIdle between frames.
func (fr *FrameRenderer) State() FrameState {
	return fr.state
}

// Stats returns the frame counters.
func (fr *FrameRenderer) Stats() FrameStats {
	return fr.stats
}

// IndexCount is the number of 32-bit indices in the bound index buffer.
func (fr *FrameRenderer) IndexCount() uint32 {
	if fr.mesh == nil || fr.mesh.IndexBuffer == nil {
		return 0
	}
	return fr.mesh.IndexBuffer.Size() / gpu.IndexElementSize32Bit.Bytes()
}

// RenderFrame runs one full frame. Any error is fatal for the render loop.
func (fr *FrameRenderer) RenderFrame() error {
	if fr.state != FrameStateIdle {
		return fmt.Errorf("frame renderer in state %s, expected %s", fr.state, FrameStateIdle)
	}

	cmd, err := fr.device.AcquireCommandBuffer()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCommandBufferAcquireFailed, err)
	}
	fr.setState(FrameStateCommandAcquired)

	swapchain, err := cmd.WaitAndAcquireSwapchainTexture(fr.window)
	if err != nil {
		if cerr := cmd.Cancel(); cerr != nil {
			core.LogWarn("failed to cancel command buffer: %s", cerr)
		}
		return fmt.Errorf("%w: %w", core.ErrSwapchainAcquireFailed, err)
	}

	if swapchain != nil {
		fr.setState(FrameStateSurfaceAcquired)
		pass := cmd.BeginRenderPass([]gpu.ColorTargetInfo{{
			Texture:    swapchain,
			ClearColor: fr.clearColor,
			LoadOp:     gpu.LoadOpClear,
			StoreOp:    gpu.StoreOpStore,
		}})
		fr.setState(FrameStateInRenderPass)
		fr.record(pass)
		pass.End()
	}

	if err := cmd.Submit(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSubmitFailed, err)
	}
	fr.setState(FrameStateSubmitted)

	fr.stats.Frames++
	if swapchain != nil {
		fr.stats.Rendered++
	} else {
		fr.stats.Skipped++
	}
	fr.setState(FrameStateIdle)
	return nil
}

func (fr *FrameRenderer) record(pass gpu.RenderPass) {
	pass.BindGraphicsPipeline(fr.pipeline)

	if fr.mesh == nil {
		pass.DrawPrimitives(3, 1, 0, 0)
		return
	}

	pass.BindVertexBuffers(0, []gpu.BufferBinding{{Buffer: fr.mesh.VertexBuffer, Offset: 0}})
	pass.BindIndexBuffer(gpu.BufferBinding{Buffer: fr.mesh.IndexBuffer, Offset: 0}, gpu.IndexElementSize32Bit)
	pass.BindFragmentSamplers(0, []gpu.TextureSamplerBinding{{Texture: fr.mesh.Texture, Sampler: fr.mesh.Sampler}})
	pass.DrawIndexedPrimitives(fr.IndexCount(), 1, 0, 0, 0)
}

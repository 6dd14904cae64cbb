package gputest

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/texel/engine/gpu"
)

type handle struct {
	id uuid.UUID
}

func newHandle() handle {
	return handle{id: uuid.New()}
}

func (h handle) ID() uuid.UUID {
	return h.id
}

type Shader struct {
	handle
	Info gpu.ShaderCreateInfo
}

func (s *Shader) Stage() gpu.ShaderStage {
	return s.Info.Stage
}

type GraphicsPipeline struct {
	handle
	Info gpu.GraphicsPipelineCreateInfo
}

type Buffer struct {
	handle
	usage gpu.BufferUsage
	// Data is the device side content of the buffer.
	Data []byte
}

func (b *Buffer) Size() uint32 {
	return uint32(len(b.Data))
}

func (b *Buffer) Usage() gpu.BufferUsage {
	return b.usage
}

type TransferBuffer struct {
	handle
	usage  gpu.TransferBufferUsage
	data   []byte
	mapped bool
}

func (tb *TransferBuffer) Size() uint32 {
	return uint32(len(tb.data))
}

func (tb *TransferBuffer) Usage() gpu.TransferBufferUsage {
	return tb.usage
}

type Texture struct {
	handle
	Info gpu.TextureCreateInfo
	// Data holds tightly packed texels, row by row.
	Data      []byte
	swapchain bool
}

func (t *Texture) Width() uint32 {
	return t.Info.Width
}

func (t *Texture) Height() uint32 {
	return t.Info.Height
}

func (t *Texture) Format() gpu.TextureFormat {
	return t.Info.Format
}

// Swapchain reports whether the texture was handed out by WaitAndAcquireSwapchainTexture.
func (t *Texture) Swapchain() bool {
	return t.swapchain
}

type Sampler struct {
	handle
	Info gpu.SamplerCreateInfo
}

type Fence struct {
	handle
	signalled bool
}

// Window is a fake presentation target.
type Window struct {
	Width  int
	Height int
}

func (w *Window) FramebufferSize() (int, int) {
	return w.Width, w.Height
}

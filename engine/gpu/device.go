// Package gpu describes a small explicit graphics device API: a device hands
// out resources, command buffers record copy and render passes, and work
// reaches the device only on submission.
package gpu

import "github.com/google/uuid"

// Resource is implemented by every device owned handle.
type Resource interface {
	ID() uuid.UUID
}

type Shader interface {
	Resource
	Stage() ShaderStage
}

type GraphicsPipeline interface {
	Resource
}

type Buffer interface {
	Resource
	Size() uint32
	Usage() BufferUsage
}

type TransferBuffer interface {
	Resource
	Size() uint32
	Usage() TransferBufferUsage
}

type Texture interface {
	Resource
	Width() uint32
	Height() uint32
	Format() TextureFormat
}

type Sampler interface {
	Resource
}

// Fence is signalled once the command buffer it was acquired from completed.
type Fence interface {
	Resource
}

// Window is a presentation target a device can claim.
type Window interface {
	FramebufferSize() (width, height int)
}

type DeviceOptions struct {
	ApplicationName string
	// Enables backend validation and debug output.
	Debug bool
	// Instance extensions required by the windowing layer.
	InstanceExtensions []string
	// Shader formats the caller is able to provide, 0 means any.
	ShaderFormats ShaderFormat
	// Preferred present mode, the backend falls back to vsync.
	PresentMode PresentMode
}

type DeviceFactory func(opts DeviceOptions) (Device, error)

// Device owns every resource it creates. Releasing a resource twice, or
// using it after release, is a programming error.
type Device interface {
	// Driver returns the backend name.
	Driver() string
	ShaderFormats() ShaderFormat

	ClaimWindow(w Window) error
	ReleaseWindow(w Window)
	SwapchainTextureFormat(w Window) TextureFormat

	CreateShader(info *ShaderCreateInfo) (Shader, error)
	ReleaseShader(s Shader)

	CreateGraphicsPipeline(info *GraphicsPipelineCreateInfo) (GraphicsPipeline, error)
	ReleaseGraphicsPipeline(p GraphicsPipeline)

	CreateBuffer(info *BufferCreateInfo) (Buffer, error)
	ReleaseBuffer(b Buffer)

	CreateTransferBuffer(info *TransferBufferCreateInfo) (TransferBuffer, error)
	// ReleaseTransferBuffer may be called while a submitted copy still
	// references the buffer; the backend keeps the memory alive until the
	// copy completed.
	ReleaseTransferBuffer(tb TransferBuffer)
	// MapTransferBuffer returns a host view of the whole buffer. The view is
	// invalid after UnmapTransferBuffer.
	MapTransferBuffer(tb TransferBuffer) ([]byte, error)
	UnmapTransferBuffer(tb TransferBuffer)

	CreateTexture(info *TextureCreateInfo) (Texture, error)
	ReleaseTexture(t Texture)

	CreateSampler(info *SamplerCreateInfo) (Sampler, error)
	ReleaseSampler(s Sampler)

	AcquireCommandBuffer() (CommandBuffer, error)
	WaitForFences(waitAll bool, fences ...Fence) error
	ReleaseFence(f Fence)
	WaitForIdle() error

	Destroy()
}

// CommandBuffer is single use: it is invalid after Submit, SubmitAndAcquireFence or Cancel.
type CommandBuffer interface {
	// WaitAndAcquireSwapchainTexture blocks until the window has a presentable
	// image. A nil texture with a nil error means no image is available,
	// e.g. while the window is minimized.
	WaitAndAcquireSwapchainTexture(w Window) (Texture, error)

	BeginCopyPass() CopyPass
	BeginRenderPass(colorTargets []ColorTargetInfo) RenderPass

	Submit() error
	SubmitAndAcquireFence() (Fence, error)
	Cancel() error
}

type CopyPass interface {
	UploadToBuffer(src TransferBufferLocation, dst BufferRegion)
	UploadToTexture(src TextureTransferInfo, dst TextureRegion)
	DownloadFromBuffer(src BufferRegion, dst TransferBufferLocation)
	End()
}

type RenderPass interface {
	BindGraphicsPipeline(p GraphicsPipeline)
	BindVertexBuffers(firstSlot uint32, bindings []BufferBinding)
	BindIndexBuffer(binding BufferBinding, size IndexElementSize)
	BindFragmentSamplers(firstSlot uint32, bindings []TextureSamplerBinding)
	DrawPrimitives(numVertices, numInstances, firstVertex, firstInstance uint32)
	DrawIndexedPrimitives(numIndices, numInstances, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	End()
}

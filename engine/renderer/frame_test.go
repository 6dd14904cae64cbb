package renderer

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/gpu/gputest"
)

func trianglePipeline(t *testing.T, d *gputest.Device, w *gputest.Window) gpu.GraphicsPipeline {
	t.Helper()
	vs, fs := loadPair(t, d, "RawTriangle.vert", "SolidColor.frag", 0)
	p, err := BuildPipeline(d, vs, fs, nil, d.SwapchainTextureFormat(w))
	require.NoError(t, err)
	d.ReleaseShader(vs)
	d.ReleaseShader(fs)
	return p
}

func quadScene(t *testing.T, d *gputest.Device, w *gputest.Window, indices []uint32) (gpu.GraphicsPipeline, *MeshBindings) {
	t.Helper()
	vs, fs := loadPair(t, d, "TexturedQuad.vert", "TexturedQuad.frag", 1)
	p, err := BuildPipeline(d, vs, fs, &PositionTextureLayout, d.SwapchainTextureFormat(w))
	require.NoError(t, err)
	d.ReleaseShader(vs)
	d.ReleaseShader(fs)

	mesh := QuadMesh()
	mesh.Indices = indices
	vertices, err := mesh.VertexData()
	require.NoError(t, err)
	idx, err := mesh.IndexData()
	require.NoError(t, err)

	u := NewUploader(d)
	buffers, err := u.UploadBuffers(
		BufferPayload{Data: vertices, Usage: gpu.BufferUsageVertex},
		BufferPayload{Data: idx, Usage: gpu.BufferUsageIndex},
	)
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	tex, err := u.UploadImage(img)
	require.NoError(t, err)

	sampler, err := d.CreateSampler(&gpu.SamplerCreateInfo{})
	require.NoError(t, err)

	return p, &MeshBindings{VertexBuffer: buffers[0], IndexBuffer: buffers[1], Texture: tex, Sampler: sampler}
}

func TestTriangleFrame(t *testing.T) {
	d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
	p := trianglePipeline(t, d, w)

	fr := NewFrameRenderer(d, w, p, nil, gpu.Color{A: 1})
	var states []FrameState
	fr.OnStateChange(func(s FrameState) { states = append(states, s) })

	require.NoError(t, fr.RenderFrame())
	assert.Equal(t, []FrameState{
		FrameStateCommandAcquired,
		FrameStateSurfaceAcquired,
		FrameStateInRenderPass,
		FrameStateSubmitted,
		FrameStateIdle,
	}, states)

	draws := d.Draws()
	require.Len(t, draws, 1)
	draw := draws[0]
	assert.False(t, draw.Indexed)
	assert.Equal(t, uint32(3), draw.Count)
	assert.Equal(t, uint32(1), draw.Instances)
	assert.Zero(t, draw.First)
	assert.Zero(t, draw.FirstInstance)
	assert.Same(t, p, draw.Pipeline)
	assert.Empty(t, draw.VertexBuffers)
	assert.Nil(t, draw.IndexBuffer)

	assert.Equal(t, gpu.Color{R: 0, G: 0, B: 0, A: 1}, draw.Target.ClearColor)
	assert.Equal(t, gpu.LoadOpClear, draw.Target.LoadOp)
	assert.Equal(t, gpu.StoreOpStore, draw.Target.StoreOp)
	assert.True(t, draw.Target.Texture.(*gputest.Texture).Swapchain())

	assert.Equal(t, FrameStats{Frames: 1, Rendered: 1}, fr.Stats())
}

func TestTexturedQuadFrame(t *testing.T) {
	d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
	p, mesh := quadScene(t, d, w, QuadMesh().Indices)

	clear := gpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}
	fr := NewFrameRenderer(d, w, p, mesh, clear)
	require.NoError(t, fr.RenderFrame())

	draws := d.Draws()
	require.Len(t, draws, 1)
	draw := draws[0]
	assert.True(t, draw.Indexed)
	assert.Equal(t, uint32(6), draw.Count)
	assert.Equal(t, uint32(1), draw.Instances)
	assert.Zero(t, draw.First)
	assert.Zero(t, draw.VertexOffset)
	assert.Equal(t, gpu.IndexElementSize32Bit, draw.IndexSize)
	require.Len(t, draw.VertexBuffers, 1)
	assert.Same(t, mesh.VertexBuffer, draw.VertexBuffers[0].Buffer)
	assert.Same(t, mesh.IndexBuffer, draw.IndexBuffer.Buffer)
	require.Len(t, draw.Samplers, 1)
	assert.Same(t, mesh.Texture, draw.Samplers[0].Texture)
	assert.Same(t, mesh.Sampler, draw.Samplers[0].Sampler)
	assert.Equal(t, clear, draw.Target.ClearColor)
}

func TestIndexCountMatchesStagedIndices(t *testing.T) {
	for _, indices := range [][]uint32{
		{0, 1, 2},
		{0, 1, 2, 0, 2, 3},
		{0, 1, 2, 0, 2, 3, 3, 2, 1, 1, 0, 3},
	} {
		d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
		p, mesh := quadScene(t, d, w, indices)

		fr := NewFrameRenderer(d, w, p, mesh, gpu.Color{})
		assert.Equal(t, uint32(len(indices)), fr.IndexCount())
		require.NoError(t, fr.RenderFrame())
		require.Len(t, d.Draws(), 1)
		assert.Equal(t, uint32(len(indices)), d.Draws()[0].Count)
	}
}

func TestFrameWithoutSwapchainImageIsSkipped(t *testing.T) {
	d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
	p := trianglePipeline(t, d, w)
	fr := NewFrameRenderer(d, w, p, nil, gpu.Color{A: 1})

	w.Width, w.Height = 0, 0
	var states []FrameState
	fr.OnStateChange(func(s FrameState) { states = append(states, s) })

	require.NoError(t, fr.RenderFrame())
	assert.Equal(t, []FrameState{FrameStateCommandAcquired, FrameStateSubmitted, FrameStateIdle}, states)
	assert.Zero(t, d.CallCount("BeginRenderPass"))
	assert.Empty(t, d.Draws())
	assert.Equal(t, FrameStats{Frames: 1, Skipped: 1}, fr.Stats())

	w.Width, w.Height = 640, 480
	require.NoError(t, fr.RenderFrame())
	assert.Equal(t, FrameStats{Frames: 2, Rendered: 1, Skipped: 1}, fr.Stats())
	assert.Len(t, d.Draws(), 1)
}

func TestFrameFailuresAreFatal(t *testing.T) {
	d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
	p := trianglePipeline(t, d, w)

	fr := NewFrameRenderer(d, w, p, nil, gpu.Color{A: 1})
	d.Failures.AcquireCommandBuffer = errors.New("device lost")
	err := fr.RenderFrame()
	assert.ErrorIs(t, err, core.ErrCommandBufferAcquireFailed)
	assert.Equal(t, core.RuntimeSubmissionFailure, core.Classify(err))
	assert.Equal(t, FrameStateIdle, fr.State())

	d.Failures.AcquireCommandBuffer = nil
	d.Failures.Submit = errors.New("device lost")
	err = fr.RenderFrame()
	assert.ErrorIs(t, err, core.ErrSubmitFailed)
	assert.Contains(t, err.Error(), "device lost")
	assert.Equal(t, FrameStateInRenderPass, fr.State())

	// a failed renderer does not start another frame
	d.Failures.Submit = nil
	assert.Error(t, fr.RenderFrame())
}

func TestSwapchainAcquireErrorCancelsCommandBuffer(t *testing.T) {
	d, w := claimedDevice(t, gpu.ShaderFormatSPIRV)
	p := trianglePipeline(t, d, w)

	d.ReleaseWindow(w)
	fr := NewFrameRenderer(d, w, p, nil, gpu.Color{A: 1})
	err := fr.RenderFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainAcquireFailed)
	assert.Equal(t, 1, d.CallCount("Cancel"))
}

func TestFrameStateString(t *testing.T) {
	assert.Equal(t, "InRenderPass", FrameStateInRenderPass.String())
	assert.Equal(t, "Unknown", FrameState(99).String())
}

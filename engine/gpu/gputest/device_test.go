package gputest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/gpu"
)

func TestCopiesRunOnSubmit(t *testing.T) {
	d := New(gpu.ShaderFormatSPIRV)

	buf, err := d.CreateBuffer(&gpu.BufferCreateInfo{Usage: gpu.BufferUsageVertex, Size: 4})
	require.NoError(t, err)
	tb, err := d.CreateTransferBuffer(&gpu.TransferBufferCreateInfo{Usage: gpu.TransferBufferUsageUpload, Size: 8})
	require.NoError(t, err)

	view, err := d.MapTransferBuffer(tb)
	require.NoError(t, err)
	_, err = d.MapTransferBuffer(tb)
	assert.ErrorIs(t, err, ErrAlreadyMapped)
	copy(view[4:], []byte{1, 2, 3, 4})
	d.UnmapTransferBuffer(tb)

	cb, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	cp := cb.BeginCopyPass()
	cp.UploadToBuffer(gpu.TransferBufferLocation{TransferBuffer: tb, Offset: 4}, gpu.BufferRegion{Buffer: buf, Size: 4})
	cp.End()

	assert.Equal(t, []byte{0, 0, 0, 0}, buf.(*Buffer).Data)

	d.ReleaseTransferBuffer(tb)
	assert.Len(t, d.Violations(), 1)

	require.NoError(t, cb.Submit())
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.(*Buffer).Data)
	assert.ErrorIs(t, cb.Submit(), ErrCommandBufferDone)
}

func TestTextureUploadHonoursRowPitch(t *testing.T) {
	d := New(gpu.ShaderFormatSPIRV)

	tex, err := d.CreateTexture(&gpu.TextureCreateInfo{
		Format: gpu.TextureFormatR8G8B8A8Unorm,
		Usage:  gpu.TextureUsageSampler,
		Width:  1, Height: 2, LayerCountOrDepth: 1, NumLevels: 1,
	})
	require.NoError(t, err)

	// two rows, each padded to two texels
	tb, err := d.CreateTransferBuffer(&gpu.TransferBufferCreateInfo{Size: 16})
	require.NoError(t, err)
	view, err := d.MapTransferBuffer(tb)
	require.NoError(t, err)
	copy(view, []byte{1, 1, 1, 1, 9, 9, 9, 9, 2, 2, 2, 2, 9, 9, 9, 9})
	d.UnmapTransferBuffer(tb)

	cb, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	cp := cb.BeginCopyPass()
	cp.UploadToTexture(
		gpu.TextureTransferInfo{TransferBuffer: tb, PixelsPerRow: 2, RowsPerLayer: 2},
		gpu.TextureRegion{Texture: tex, W: 1, H: 2, D: 1},
	)
	cp.End()
	require.NoError(t, cb.Submit())

	assert.Equal(t, []byte{1, 1, 1, 1, 2, 2, 2, 2}, tex.(*Texture).Data)
}

func TestSubmitWithOpenPassFails(t *testing.T) {
	d := New(gpu.ShaderFormatSPIRV)
	cb, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	cb.BeginCopyPass()
	assert.ErrorIs(t, cb.Submit(), ErrPassOpen)
}

func TestReleaseTwiceIsReported(t *testing.T) {
	d := New(gpu.ShaderFormatSPIRV)
	s, err := d.CreateSampler(&gpu.SamplerCreateInfo{})
	require.NoError(t, err)

	d.ReleaseSampler(s)
	assert.Empty(t, d.DoubleReleases())
	d.ReleaseSampler(s)
	assert.Len(t, d.DoubleReleases(), 1)
	assert.Empty(t, d.Live())
}

func TestSwapchainAcquisition(t *testing.T) {
	d := New(gpu.ShaderFormatSPIRV)
	w := &Window{Width: 640, Height: 480}

	cb, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	_, err = cb.WaitAndAcquireSwapchainTexture(w)
	assert.Error(t, err, "window must be claimed first")

	require.NoError(t, d.ClaimWindow(w))
	assert.Equal(t, gpu.TextureFormatB8G8R8A8Unorm, d.SwapchainTextureFormat(w))

	tex, err := cb.WaitAndAcquireSwapchainTexture(w)
	require.NoError(t, err)
	require.NotNil(t, tex)
	assert.Equal(t, uint32(640), tex.Width())
	require.NoError(t, cb.Submit())

	w.Width, w.Height = 0, 0
	cb, err = d.AcquireCommandBuffer()
	require.NoError(t, err)
	tex, err = cb.WaitAndAcquireSwapchainTexture(w)
	require.NoError(t, err)
	assert.Nil(t, tex)
	require.NoError(t, cb.Submit())
}

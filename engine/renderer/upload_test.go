package renderer

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/gpu/gputest"
)

func TestUploadBufferRoundTrip(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	payloads := [][]byte{
		{0x2a},
		{1, 2, 3, 4, 5, 6, 7},
		make([]byte, 4096),
	}
	for i := range payloads[2] {
		payloads[2][i] = byte(i * 7)
	}

	for _, data := range payloads {
		buf, err := u.UploadBuffer(data, gpu.BufferUsageVertex)
		require.NoError(t, err)
		assert.Equal(t, uint32(len(data)), buf.Size())

		back, err := u.Readback(buf)
		require.NoError(t, err)
		assert.Equal(t, data, back)
	}
	assert.Empty(t, d.Violations())
	assert.Zero(t, d.CallCount("Cancel"))
}

func TestUploadBuffersSharesOneTransfer(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	mesh := QuadMesh()
	vertices, err := mesh.VertexData()
	require.NoError(t, err)
	indices, err := mesh.IndexData()
	require.NoError(t, err)
	odd := []byte{9, 8, 7}

	buffers, err := u.UploadBuffers(
		BufferPayload{Data: odd, Usage: gpu.BufferUsageVertex},
		BufferPayload{Data: vertices, Usage: gpu.BufferUsageVertex},
		BufferPayload{Data: indices, Usage: gpu.BufferUsageIndex},
	)
	require.NoError(t, err)
	require.Len(t, buffers, 3)

	assert.Equal(t, 1, d.CallCount("CreateTransferBuffer"))
	assert.Equal(t, 1, d.CallCount("SubmitAndAcquireFence"))
	assert.Equal(t, 3, d.CallCount("UploadToBuffer"))
	assert.Equal(t, 1, d.CallCount("WaitForFences"))

	assert.Equal(t, odd, buffers[0].(*gputest.Buffer).Data)
	assert.Equal(t, vertices, buffers[1].(*gputest.Buffer).Data)
	assert.Equal(t, indices, buffers[2].(*gputest.Buffer).Data)
	assert.Equal(t, uint32(6*4), buffers[2].Size())

	// only the three destination buffers outlive the upload
	assert.ElementsMatch(t, []string{"buffer", "buffer", "buffer"}, d.Live())
}

func TestUploadProtocolOrder(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	_, err := u.UploadBuffer([]byte{1, 2, 3, 4}, gpu.BufferUsageIndex)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CreateBuffer",
		"CreateTransferBuffer",
		"MapTransferBuffer",
		"UnmapTransferBuffer",
		"AcquireCommandBuffer",
		"BeginCopyPass",
		"UploadToBuffer",
		"EndCopyPass",
		"SubmitAndAcquireFence",
		"WaitForFences",
		"ReleaseFence",
		"ReleaseTransferBuffer",
	}, d.Calls())
}

func TestUploadFailuresReleaseEverything(t *testing.T) {
	cases := []struct {
		name   string
		inject func(*gputest.Failures)
		want   error
		kind   core.FailureKind
	}{
		{"map", func(f *gputest.Failures) { f.Map = errors.New("out of host memory") }, core.ErrTransferMapFailed, core.ResourceCreationFailure},
		{"submit", func(f *gputest.Failures) { f.Submit = errors.New("device lost") }, core.ErrSubmitFailed, core.RuntimeSubmissionFailure},
		{"acquire", func(f *gputest.Failures) { f.AcquireCommandBuffer = errors.New("device lost") }, core.ErrCommandBufferAcquireFailed, core.RuntimeSubmissionFailure},
		{"transfer buffer", func(f *gputest.Failures) { f.CreateTransferBuffer = errors.New("oom") }, core.ErrResourceCreationFailed, core.ResourceCreationFailure},
		{"buffer", func(f *gputest.Failures) { f.CreateBuffer = errors.New("oom") }, core.ErrResourceCreationFailed, core.ResourceCreationFailure},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := gputest.New(gpu.ShaderFormatSPIRV)
			c.inject(&d.Failures)
			u := NewUploader(d)

			buffers, err := u.UploadBuffers(
				BufferPayload{Data: []byte{1, 2, 3, 4}, Usage: gpu.BufferUsageVertex},
				BufferPayload{Data: []byte{5, 6, 7, 8}, Usage: gpu.BufferUsageIndex},
			)
			assert.ErrorIs(t, err, c.want)
			assert.Equal(t, c.kind, core.Classify(err))
			assert.Nil(t, buffers)
			assert.Empty(t, d.Live())
			assert.Empty(t, d.DoubleReleases())
			assert.Equal(t, d.CallCount("CreateTransferBuffer")-boolToInt(c.name == "transfer buffer"), d.CallCount("ReleaseTransferBuffer"))
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestUploadTexture(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	// 2x2 texels, rows padded to 3 texels
	pixels := []byte{
		1, 1, 1, 1, 2, 2, 2, 2, 0, 0, 0, 0,
		3, 3, 3, 3, 4, 4, 4, 4, 0, 0, 0, 0,
	}
	tex, err := u.UploadTexture(pixels, 2, 2, 12, gpu.TextureFormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tex.Width())
	assert.Equal(t, gpu.TextureFormatR8G8B8A8Unorm, tex.Format())
	assert.Equal(t, []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}, tex.(*gputest.Texture).Data)
	assert.Equal(t, []string{"texture"}, d.Live())
}

func TestUploadImage(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	tex, err := u.UploadImage(img)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, tex.(*gputest.Texture).Data)
}

func TestUploadTextureValidation(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	_, err := u.UploadTexture(make([]byte, 16), 2, 2, 4, gpu.TextureFormatR8G8B8A8Unorm)
	assert.ErrorIs(t, err, core.ErrResourceCreationFailed, "pitch smaller than a row")
	_, err = u.UploadTexture(make([]byte, 8), 2, 2, 8, gpu.TextureFormatR8G8B8A8Unorm)
	assert.ErrorIs(t, err, core.ErrResourceCreationFailed, "not enough pixels")
	_, err = u.UploadTexture(make([]byte, 16), 2, 2, 8, gpu.TextureFormatInvalid)
	assert.ErrorIs(t, err, core.ErrResourceCreationFailed)
	assert.Empty(t, d.Calls())
}

func TestTransferLayout(t *testing.T) {
	offsets, total, err := transferLayout(3, 6, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 4, 12}, offsets)
	assert.Equal(t, uint32(13), total)

	// exactly 4 GiB minus one still fits
	_, total, err = transferLayout(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), total)

	// the sum wraps in 32 bits
	_, _, err = transferLayout(math.MaxUint32-8, 16)
	assert.ErrorIs(t, err, core.ErrTransferTooLarge)
	assert.Equal(t, core.ResourceCreationFailure, core.Classify(err))
}

func TestUploadTextureTooLarge(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	u := NewUploader(d)

	// 65536 rows of 256 KiB is 16 GiB, which wraps to 0 in 32 bits
	_, err := u.UploadTexture(make([]byte, 16), 1<<16, 1<<16, 1<<18, gpu.TextureFormatR8G8B8A8Unorm)
	assert.ErrorIs(t, err, core.ErrTransferTooLarge)
	assert.Empty(t, d.Calls())
	assert.Empty(t, d.Live())
}

func TestUploadTextureFailureReleasesTexture(t *testing.T) {
	d := gputest.New(gpu.ShaderFormatSPIRV)
	d.Failures.Submit = errors.New("device lost")
	u := NewUploader(d)

	tex, err := u.UploadTexture(make([]byte, 16), 2, 2, 8, gpu.TextureFormatR8G8B8A8Unorm)
	assert.ErrorIs(t, err, core.ErrSubmitFailed)
	assert.Nil(t, tex)
	assert.Empty(t, d.Live())
	assert.Equal(t, 1, d.CallCount("ReleaseTexture"))
}

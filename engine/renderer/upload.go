package renderer

import (
	"fmt"
	"image"
	"math"

	"github.com/spaghettifunk/texel/engine/assets"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// payload offsets inside a shared transfer buffer are aligned to this
const transferAlignment = 4

// BufferPayload is the content and role of one buffer to upload.
type BufferPayload struct {
	Data  []byte
	Usage gpu.BufferUsage
}

// Uploader moves host data into device resources through transfer buffers.
// Every upload waits for its copy to complete, so a returned resource can be
// bound right away.
type Uploader struct {
	device gpu.Device
}

// NewUploader returns an uploader creating its resources on device.
func NewUploader(device gpu.Device) *Uploader {
	return &Uploader{device: device}
}

// stagedUpload runs one transfer: it creates a transfer buffer of size
// bytes, lets write fill it, records the copies, submits, waits for
// completion and hands the mapped buffer to read when set. The transfer
// buffer is released on every path.
func (u *Uploader) stagedUpload(
	usage gpu.TransferBufferUsage,
	size uint32,
	write func(view []byte),
	record func(cp gpu.CopyPass, tb gpu.TransferBuffer),
	read func(view []byte),
) error {
	tb, err := u.device.CreateTransferBuffer(&gpu.TransferBufferCreateInfo{
		Usage: usage,
		Size:  size,
	})
	if err != nil {
		return fmt.Errorf("%w: transfer buffer of %d bytes: %w", core.ErrResourceCreationFailed, size, err)
	}
	defer u.device.ReleaseTransferBuffer(tb)

	if write != nil {
		view, err := u.device.MapTransferBuffer(tb)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransferMapFailed, err)
		}
		write(view)
		u.device.UnmapTransferBuffer(tb)
	}

	cmd, err := u.device.AcquireCommandBuffer()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCommandBufferAcquireFailed, err)
	}
	cp := cmd.BeginCopyPass()
	record(cp, tb)
	cp.End()

	fence, err := cmd.SubmitAndAcquireFence()
	if err != nil {
		return fmt.Errorf("%w: upload: %w", core.ErrSubmitFailed, err)
	}
	defer u.device.ReleaseFence(fence)
	if err := u.device.WaitForFences(true, fence); err != nil {
		return fmt.Errorf("%w: waiting for upload: %w", core.ErrSubmitFailed, err)
	}

	if read != nil {
		view, err := u.device.MapTransferBuffer(tb)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransferMapFailed, err)
		}
		read(view)
		u.device.UnmapTransferBuffer(tb)
	}
	return nil
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) / alignment * alignment
}

// transferLayout places payloads of the given sizes in one transfer buffer
// and returns their offsets and the total size.
func transferLayout(sizes ...uint64) ([]uint32, uint32, error) {
	offsets := make([]uint32, len(sizes))
	var total uint64
	for i, size := range sizes {
		offset := alignUp(total, transferAlignment)
		total = offset + size
		if total > math.MaxUint32 {
			return nil, 0, fmt.Errorf("%w: payload %d ends at byte %d", core.ErrTransferTooLarge, i, total)
		}
		offsets[i] = uint32(offset)
	}
	return offsets, uint32(total), nil
}

// UploadBuffer creates a buffer holding a copy of data.
func (u *Uploader) UploadBuffer(data []byte, usage gpu.BufferUsage) (gpu.Buffer, error) {
	buffers, err := u.UploadBuffers(BufferPayload{Data: data, Usage: usage})
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

// UploadBuffers creates one buffer per payload and fills all of them with a
// single transfer buffer and a single submission. On failure no buffer is
// returned and the ones already created are released.
func (u *Uploader) UploadBuffers(payloads ...BufferPayload) (_ []gpu.Buffer, err error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	buffers := make([]gpu.Buffer, 0, len(payloads))
	defer func() {
		if err != nil {
			for _, b := range buffers {
				u.device.ReleaseBuffer(b)
			}
		}
	}()

	sizes := make([]uint64, len(payloads))
	for i, p := range payloads {
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%w: payload %d is empty", core.ErrResourceCreationFailed, i)
		}
		sizes[i] = uint64(len(p.Data))
	}
	offsets, total, err := transferLayout(sizes...)
	if err != nil {
		return nil, err
	}

	for _, p := range payloads {
		buf, err := u.device.CreateBuffer(&gpu.BufferCreateInfo{
			Usage: p.Usage,
			Size:  uint32(len(p.Data)),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: buffer of %d bytes: %w", core.ErrResourceCreationFailed, len(p.Data), err)
		}
		buffers = append(buffers, buf)
	}

	err = u.stagedUpload(gpu.TransferBufferUsageUpload, total,
		func(view []byte) {
			for i, p := range payloads {
				copy(view[offsets[i]:], p.Data)
			}
		},
		func(cp gpu.CopyPass, tb gpu.TransferBuffer) {
			for i, p := range payloads {
				cp.UploadToBuffer(
					gpu.TransferBufferLocation{TransferBuffer: tb, Offset: offsets[i]},
					gpu.BufferRegion{Buffer: buffers[i], Offset: 0, Size: uint32(len(p.Data))},
				)
			}
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	core.LogDebug("uploaded %d buffer(s), %d bytes staged", len(buffers), total)
	return buffers, nil
}

// UploadTexture creates a sampled 2D texture and fills it from pixels,
// rowPitch bytes per row. On failure the texture is released.
func (u *Uploader) UploadTexture(pixels []byte, width, height, rowPitch uint32, format gpu.TextureFormat) (_ gpu.Texture, err error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: unsupported texture format %s", core.ErrResourceCreationFailed, format)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty texture %dx%d", core.ErrResourceCreationFailed, width, height)
	}
	if uint64(rowPitch) < uint64(width)*uint64(bpp) || rowPitch%bpp != 0 {
		return nil, fmt.Errorf("%w: row pitch %d invalid for width %d", core.ErrResourceCreationFailed, rowPitch, width)
	}
	_, size, err := transferLayout(uint64(rowPitch) * uint64(height))
	if err != nil {
		return nil, err
	}
	if uint64(len(pixels)) < uint64(size) {
		return nil, fmt.Errorf("%w: %d bytes of pixel data, %d required", core.ErrResourceCreationFailed, len(pixels), size)
	}

	texture, err := u.device.CreateTexture(&gpu.TextureCreateInfo{
		Type:              gpu.TextureType2D,
		Format:            format,
		Usage:             gpu.TextureUsageSampler,
		Width:             width,
		Height:            height,
		LayerCountOrDepth: 1,
		NumLevels:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: texture %dx%d: %w", core.ErrResourceCreationFailed, width, height, err)
	}
	defer func() {
		if err != nil {
			u.device.ReleaseTexture(texture)
		}
	}()

	err = u.stagedUpload(gpu.TransferBufferUsageUpload, size,
		func(view []byte) {
			copy(view, pixels[:size])
		},
		func(cp gpu.CopyPass, tb gpu.TransferBuffer) {
			cp.UploadToTexture(
				gpu.TextureTransferInfo{TransferBuffer: tb, Offset: 0, PixelsPerRow: rowPitch / bpp, RowsPerLayer: height},
				gpu.TextureRegion{Texture: texture, W: width, H: height, D: 1},
			)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	core.LogDebug("uploaded texture %dx%d (%s)", width, height, format)
	return texture, nil
}

// UploadImage uploads a decoded RGBA image.
func (u *Uploader) UploadImage(img *image.NRGBA) (gpu.Texture, error) {
	img = assets.Normalize(img)
	return u.UploadTexture(img.Pix, uint32(img.Rect.Dx()), uint32(img.Rect.Dy()), uint32(img.Stride), gpu.TextureFormatR8G8B8A8Unorm)
}

// Readback copies the content of a buffer back to the host.
func (u *Uploader) Readback(buffer gpu.Buffer) ([]byte, error) {
	size := buffer.Size()
	out := make([]byte, size)
	err := u.stagedUpload(gpu.TransferBufferUsageDownload, size,
		nil,
		func(cp gpu.CopyPass, tb gpu.TransferBuffer) {
			cp.DownloadFromBuffer(
				gpu.BufferRegion{Buffer: buffer, Offset: 0, Size: size},
				gpu.TransferBufferLocation{TransferBuffer: tb, Offset: 0},
			)
		},
		func(view []byte) {
			copy(out, view)
		},
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

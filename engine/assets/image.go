package assets

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/spaghettifunk/texel/engine/core"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RequiredChannels is the only channel count textures are uploaded with.
const RequiredChannels = 4

type ImageOptions struct {
	// Channels requested by the caller. Anything but RequiredChannels is rejected.
	Channels int
	// Flip the image vertically after decoding.
	FlipY bool
}

// LoadImage decodes Images/<filename> and returns it as tightly packed
// 8-bit RGBA.
func LoadImage(ac *AssetContext, filename string, opts ImageOptions) (*image.NRGBA, error) {
	if opts.Channels != RequiredChannels {
		return nil, fmt.Errorf("%w: requested %d, supported %d", core.ErrUnsupportedChannelCount, opts.Channels, RequiredChannels)
	}

	name := ImagePath(filename)
	f, err := ac.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrImageDecodeFailed, ac.FullPath(name), err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrImageDecodeFailed, ac.FullPath(name), err)
	}

	if opts.FlipY {
		img = imaging.FlipV(img)
	}

	out := Normalize(img)
	core.LogDebug("loaded image %s (%dx%d, pitch %d)", name, out.Rect.Dx(), out.Rect.Dy(), out.Stride)
	return out, nil
}

// Normalize converts img to an *image.NRGBA anchored at the origin with a
// stride of exactly 4*width. Images already in that layout are returned
// unchanged.
func Normalize(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && IsNormalized(n) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

func IsNormalized(img *image.NRGBA) bool {
	return img.Rect.Min == (image.Point{}) && img.Stride == 4*img.Rect.Dx()
}

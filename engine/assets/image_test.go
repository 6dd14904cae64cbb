package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/texel/engine/core"
)

type countingFS struct {
	fs.FS
	opens []string
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens = append(c.opens, name)
	return c.FS.Open(name)
}

func checker() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadImageRejectsChannelCountBeforeIO(t *testing.T) {
	fsys := &countingFS{FS: fstest.MapFS{
		"Images/checker.png": {Data: encodePNG(t, checker())},
	}}
	ac := NewAssetContextFS("Content", fsys)

	for _, channels := range []int{0, 1, 3, 5} {
		img, err := LoadImage(ac, "checker.png", ImageOptions{Channels: channels})
		assert.ErrorIs(t, err, core.ErrUnsupportedChannelCount)
		assert.Nil(t, img)
	}
	assert.Empty(t, fsys.opens)
}

func TestLoadImage(t *testing.T) {
	src := checker()
	ac := NewAssetContextFS("Content", fstest.MapFS{
		"Images/checker.png": {Data: encodePNG(t, src)},
	})

	img, err := LoadImage(ac, "checker.png", ImageOptions{Channels: 4})
	require.NoError(t, err)
	assert.True(t, IsNormalized(img))
	assert.Equal(t, 2, img.Rect.Dx())
	assert.Equal(t, 8, img.Stride)
	assert.Equal(t, src.Pix, img.Pix)
}

func TestLoadImageFlipY(t *testing.T) {
	src := checker()
	ac := NewAssetContextFS("Content", fstest.MapFS{
		"Images/checker.png": {Data: encodePNG(t, src)},
	})

	img, err := LoadImage(ac, "checker.png", ImageOptions{Channels: 4, FlipY: true})
	require.NoError(t, err)
	assert.Equal(t, src.Pix[8:16], img.Pix[0:8])
	assert.Equal(t, src.Pix[0:8], img.Pix[8:16])
}

func TestLoadImageConvertsOtherFormats(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.Pix = []uint8{0, 100, 255}

	var bmpData bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpData, gray))

	ac := NewAssetContextFS("Content", fstest.MapFS{
		"Images/gray.png": {Data: encodePNG(t, gray)},
		"Images/gray.bmp": {Data: bmpData.Bytes()},
	})

	want := []uint8{0, 0, 0, 255, 100, 100, 100, 255, 255, 255, 255, 255}
	for _, name := range []string{"gray.png", "gray.bmp"} {
		img, err := LoadImage(ac, name, ImageOptions{Channels: 4})
		require.NoError(t, err, name)
		assert.True(t, IsNormalized(img), name)
		assert.Equal(t, want, img.Pix, name)
	}
}

func TestLoadImageFailures(t *testing.T) {
	ac := NewAssetContextFS("Content", fstest.MapFS{
		"Images/broken.png": {Data: []byte("not a png")},
	})

	_, err := LoadImage(ac, "missing.png", ImageOptions{Channels: 4})
	assert.ErrorIs(t, err, core.ErrImageDecodeFailed)
	assert.Equal(t, core.AssetFailure, core.Classify(err))

	_, err = LoadImage(ac, "broken.png", ImageOptions{Channels: 4})
	assert.ErrorIs(t, err, core.ErrImageDecodeFailed)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	img := checker()
	before := append([]uint8(nil), img.Pix...)

	out := Normalize(img)
	assert.Same(t, img, out)
	assert.Equal(t, before, out.Pix)
	assert.Same(t, out, Normalize(out))
}

func TestNormalizeRepacksSubImages(t *testing.T) {
	sub := checker().SubImage(image.Rect(1, 0, 2, 2)).(*image.NRGBA)
	require.False(t, IsNormalized(sub))

	out := Normalize(sub)
	assert.True(t, IsNormalized(out))
	assert.Equal(t, 4, out.Stride)
	assert.Equal(t, []uint8{0, 255, 0, 255, 255, 255, 255, 128}, out.Pix)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "Shaders/Compiled/SPIRV/RawTriangle.vert.spv", ShaderPath("SPIRV", "RawTriangle.vert", ".spv"))
	assert.Equal(t, "Images/ravioli.bmp", ImagePath("ravioli.bmp"))

	ac := NewAssetContextFS("/opt/texel/Content", fstest.MapFS{})
	assert.Equal(t, "/opt/texel/Content/Images/a.png", ac.FullPath("Images/a.png"))
}

func TestNewAssetContext(t *testing.T) {
	dir := t.TempDir()
	ac, err := NewAssetContext(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, ac.Root())

	_, err = NewAssetContext(dir + "/missing")
	assert.Error(t, err)
}

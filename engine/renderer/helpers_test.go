package renderer

import (
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/assets"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/gpu/gputest"
)

func init() {
	core.SetLogOutput(io.Discard)
}

type countingFS struct {
	fs.FS
	opens []string
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens = append(c.opens, name)
	return c.FS.Open(name)
}

func shaderFS() *countingFS {
	files := fstest.MapFS{}
	for _, name := range []string{"RawTriangle.vert", "SolidColor.frag", "TexturedQuad.vert", "TexturedQuad.frag"} {
		files["Shaders/Compiled/SPIRV/"+name+".spv"] = &fstest.MapFile{Data: []byte("spirv:" + name)}
		files["Shaders/Compiled/MSL/"+name+".msl"] = &fstest.MapFile{Data: []byte("msl:" + name)}
		files["Shaders/Compiled/DXIL/"+name+".dxil"] = &fstest.MapFile{Data: []byte("dxil:" + name)}
	}
	return &countingFS{FS: files}
}

func shaderAssets() (*assets.AssetContext, *countingFS) {
	fsys := shaderFS()
	return assets.NewAssetContextFS("Content", fsys), fsys
}

// claimedDevice returns a device with a claimed 640x480 window.
func claimedDevice(t *testing.T, formats gpu.ShaderFormat) (*gputest.Device, *gputest.Window) {
	t.Helper()
	d := gputest.New(formats)
	w := &gputest.Window{Width: 640, Height: 480}
	require.NoError(t, d.ClaimWindow(w))
	return d, w
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

package engine

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/texel/engine/assets"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/gpu/gputest"
	"github.com/spaghettifunk/texel/engine/platform"
)

func init() {
	core.SetLogOutput(io.Discard)
}

type fakeWindow struct {
	width, height int
	shown         bool
	destroyed     int
	pumps         int
	// events delivered on the nth pump, 1 based
	script  map[int][]platform.Event
	pending []platform.Event
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.width, w.height }
func (w *fakeWindow) Show()                       { w.shown = true }
func (w *fakeWindow) Destroy()                    { w.destroyed++ }

func (w *fakeWindow) PumpEvents() {
	w.pumps++
	w.pending = append(w.pending, w.script[w.pumps]...)
}

func (w *fakeWindow) PollEvent() (platform.Event, bool) {
	if len(w.pending) == 0 {
		return platform.Event{}, false
	}
	e := w.pending[0]
	w.pending = w.pending[1:]
	return e, true
}

type fakePlatform struct {
	window     *fakeWindow
	startErr   error
	started    bool
	shutdowns  int
	flags      platform.WindowFlags
	title      string
	extensions []string
}

func (p *fakePlatform) Startup() error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *fakePlatform) CreateWindow(title string, width, height int, flags platform.WindowFlags) (platform.Window, error) {
	p.title = title
	p.flags = flags
	if p.window == nil {
		p.window = &fakeWindow{}
	}
	p.window.width, p.window.height = width, height
	return p.window, nil
}

func (p *fakePlatform) RequiredInstanceExtensions() []string {
	return p.extensions
}

func (p *fakePlatform) Shutdown() {
	p.shutdowns++
}

func contentFS(t *testing.T) fstest.MapFS {
	t.Helper()
	files := fstest.MapFS{}
	for _, name := range []string{"RawTriangle.vert", "SolidColor.frag", "TexturedQuad.vert", "TexturedQuad.frag"} {
		files["Shaders/Compiled/SPIRV/"+name+".spv"] = &fstest.MapFile{Data: []byte("spirv:" + name)}
	}

	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.SetNRGBA(3, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	files["Images/checker.png"] = &fstest.MapFile{Data: buf.Bytes()}
	return files
}

type harness struct {
	engine   *Engine
	platform *fakePlatform
	device   *gputest.Device
}

func newHarness(t *testing.T, cfg *ApplicationConfig, script map[int][]platform.Event, files fstest.MapFS, opts ...Option) *harness {
	t.Helper()
	h := &harness{platform: &fakePlatform{
		window:     &fakeWindow{script: script},
		extensions: []string{"VK_KHR_surface"},
	}}
	opts = append([]Option{WithAssetContext(assets.NewAssetContextFS("Content", files))}, opts...)
	e, err := New(cfg, h.platform, gputest.Factory(gpu.ShaderFormatSPIRV, &h.device), opts...)
	require.NoError(t, err)
	h.engine = e
	return h
}

func config(v Variant) *ApplicationConfig {
	cfg := DefaultApplicationConfig()
	cfg.Variant = v
	return cfg
}

func quitOn(pump int) map[int][]platform.Event {
	return map[int][]platform.Event{pump: {{Type: platform.EventQuit}}}
}

func (h *harness) assertAllReleased(t *testing.T) {
	t.Helper()
	assert.Empty(t, h.device.Live())
	assert.Empty(t, h.device.DoubleReleases())
	assert.Empty(t, h.device.Violations())
	assert.True(t, h.device.Destroyed())
	assert.Equal(t, 1, h.platform.shutdowns)
	assert.Equal(t, 1, h.platform.window.destroyed)
	assert.Zero(t, h.engine.Live())
}

func TestTriangleLifecycle(t *testing.T) {
	h := newHarness(t, config(VariantTriangle), quitOn(3), contentFS(t))

	require.NoError(t, h.engine.Initialize())
	assert.Equal(t, EngineStageInitialized, h.engine.Stage())
	assert.Equal(t, platform.WindowHidden|platform.WindowResizable, h.platform.flags)
	assert.Equal(t, "texel", h.platform.title)
	assert.False(t, h.platform.window.shown)
	w, hgt := h.engine.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), hgt)

	// shaders are gone once the pipeline exists, nothing was uploaded
	assert.Equal(t, 2, h.device.CallCount("ReleaseShader"))
	assert.Zero(t, h.device.CallCount("CreateTransferBuffer"))
	assert.ElementsMatch(t, []string{"pipeline"}, h.device.Live())

	require.NoError(t, h.engine.Run())
	assert.True(t, h.platform.window.shown)

	// the frame during which quit was observed still completes
	stats := h.engine.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(3), stats.Rendered)

	draws := h.device.Draws()
	require.Len(t, draws, 3)
	for _, d := range draws {
		assert.False(t, d.Indexed)
		assert.Equal(t, uint32(3), d.Count)
		assert.Equal(t, uint32(1), d.Instances)
		assert.Empty(t, d.VertexBuffers)
		assert.Equal(t, gpu.Color{A: 1}, d.Target.ClearColor)
	}

	require.NoError(t, h.engine.Shutdown())
	assert.Equal(t, EngineStageUninitialized, h.engine.Stage())
	h.assertAllReleased(t)

	// second shutdown does nothing
	require.NoError(t, h.engine.Shutdown())
	assert.Equal(t, 1, h.platform.shutdowns)
}

func TestTexturedLifecycle(t *testing.T) {
	script := map[int][]platform.Event{
		1: {{Type: platform.EventResize, Width: 1024, Height: 768}},
		2: {{Type: platform.EventKeyDown, Key: core.KEY_A}, {Type: platform.EventKeyUp, Key: core.KEY_A}},
		4: {{Type: platform.EventKeyDown, Key: core.KEY_ESCAPE}},
	}
	h := newHarness(t, config(VariantTextured), script, contentFS(t))

	require.NoError(t, h.engine.Initialize())
	assert.ElementsMatch(t,
		[]string{"pipeline", "buffer", "buffer", "texture", "sampler"},
		h.device.Live(),
	)
	// vertex and index data share one submission, the texture has its own
	assert.Equal(t, 2, h.device.CallCount("CreateTransferBuffer"))
	assert.Equal(t, 2, h.device.CallCount("WaitForFences"))

	require.NoError(t, h.engine.Run())
	assert.Equal(t, uint64(4), h.engine.Stats().Frames)
	w, hgt := h.engine.GetFramebufferSize()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), hgt)

	draws := h.device.Draws()
	require.Len(t, draws, 4)
	d := draws[0]
	assert.True(t, d.Indexed)
	assert.Equal(t, uint32(6), d.Count)
	assert.Equal(t, gpu.IndexElementSize32Bit, d.IndexSize)
	require.Len(t, d.VertexBuffers, 1)
	require.Len(t, d.Samplers, 1)
	assert.Equal(t, uint32(4), d.Samplers[0].Texture.Width())
	assert.Equal(t, uint32(2), d.Samplers[0].Texture.Height())
	assert.Equal(t, gpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}, d.Target.ClearColor)

	require.NoError(t, h.engine.Shutdown())
	h.assertAllReleased(t)
}

func TestEscapeTappedWithinOneFrame(t *testing.T) {
	script := map[int][]platform.Event{
		2: {{Type: platform.EventKeyDown, Key: core.KEY_ESCAPE}, {Type: platform.EventKeyUp, Key: core.KEY_ESCAPE}},
	}
	h := newHarness(t, config(VariantTriangle), script, contentFS(t))
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Run())
	assert.Equal(t, uint64(2), h.engine.Stats().Frames)

	require.NoError(t, h.engine.Shutdown())
	h.assertAllReleased(t)
}

func TestResourcesReleasedNewestFirst(t *testing.T) {
	h := newHarness(t, config(VariantTextured), quitOn(1), contentFS(t))
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Run())

	before := len(h.device.Calls())
	require.NoError(t, h.engine.Shutdown())

	var releases []string
	for _, c := range h.device.Calls()[before:] {
		switch c {
		case "WaitForIdle", "ReleaseSampler", "ReleaseTexture", "ReleaseBuffer", "ReleaseGraphicsPipeline", "ReleaseWindow", "Destroy":
			releases = append(releases, c)
		}
	}
	assert.Equal(t, []string{
		"WaitForIdle",
		"ReleaseSampler",
		"ReleaseTexture",
		"ReleaseBuffer",
		"ReleaseBuffer",
		"ReleaseGraphicsPipeline",
		"ReleaseWindow",
		"Destroy",
	}, releases)
	h.assertAllReleased(t)
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	files := contentFS(t)
	delete(files, "Shaders/Compiled/SPIRV/SolidColor.frag.spv")
	h := newHarness(t, config(VariantTriangle), nil, files)

	err := h.engine.Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShaderFileNotFound)
	assert.Equal(t, core.AssetFailure, core.Classify(err))
	assert.Equal(t, EngineStageUninitialized, h.engine.Stage())

	// the vertex shader was created before the failure and is released once
	assert.Equal(t, 1, h.device.CallCount("ReleaseShader"))
	assert.False(t, h.platform.window.shown)
	h.assertAllReleased(t)

	require.NoError(t, h.engine.Shutdown())
	assert.Equal(t, 1, h.platform.shutdowns)
}

func TestInitializeFailures(t *testing.T) {
	t.Run("platform", func(t *testing.T) {
		h := newHarness(t, config(VariantTriangle), nil, contentFS(t))
		h.platform.startErr = errors.New("no display")

		err := h.engine.Initialize()
		assert.Equal(t, core.InitializationFailure, core.Classify(err))
		assert.Nil(t, h.device)
		assert.Zero(t, h.platform.shutdowns)
	})

	t.Run("image", func(t *testing.T) {
		files := contentFS(t)
		files["Images/checker.png"] = &fstest.MapFile{Data: []byte("not an image")}
		h := newHarness(t, config(VariantTextured), nil, files)

		err := h.engine.Initialize()
		assert.ErrorIs(t, err, core.ErrImageDecodeFailed)
		assert.Zero(t, h.device.CallCount("CreateBuffer"))
		h.assertAllReleased(t)
	})

	t.Run("texture", func(t *testing.T) {
		h := newHarness(t, config(VariantTextured), nil, contentFS(t))
		factory := h.engine.factory
		h.engine.factory = func(opts gpu.DeviceOptions) (gpu.Device, error) {
			d, err := factory(opts)
			h.device.Failures.CreateTexture = gputest.ErrInjected
			return d, err
		}

		err := h.engine.Initialize()
		assert.ErrorIs(t, err, gputest.ErrInjected)
		assert.Equal(t, core.ResourceCreationFailure, core.Classify(err))
		// the two buffers were already owned and are released with the rest
		assert.Equal(t, 2, h.device.CallCount("ReleaseBuffer"))
		h.assertAllReleased(t)
	})
}

func TestDeviceOptions(t *testing.T) {
	cfg := config(VariantTriangle)
	cfg.Validation = true
	cfg.PresentMode = "mailbox"

	var got gpu.DeviceOptions
	p := &fakePlatform{window: &fakeWindow{script: quitOn(1)}, extensions: []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}}
	var device *gputest.Device
	factory := gputest.Factory(gpu.ShaderFormatSPIRV, &device)
	e, err := New(cfg, p, func(opts gpu.DeviceOptions) (gpu.Device, error) {
		got = opts
		return factory(opts)
	}, WithAssetContext(assets.NewAssetContextFS("Content", contentFS(t))))
	require.NoError(t, err)

	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	assert.Equal(t, "texel", got.ApplicationName)
	assert.True(t, got.Debug)
	assert.Equal(t, gpu.PresentModeMailbox, got.PresentMode)
	// only SPIR-V is built from the shader sources
	assert.Equal(t, gpu.ShaderFormatSPIRV, got.ShaderFormats)
	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}, got.InstanceExtensions)
}

func TestSubmitFailureStopsLoop(t *testing.T) {
	h := newHarness(t, config(VariantTriangle), nil, contentFS(t))
	require.NoError(t, h.engine.Initialize())
	h.device.Failures.SubmitAt = 2

	err := h.engine.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSubmitFailed)
	assert.Equal(t, core.RuntimeSubmissionFailure, core.Classify(err))
	assert.Equal(t, uint64(1), h.engine.Stats().Frames)

	require.NoError(t, h.engine.Shutdown())
	h.assertAllReleased(t)
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	h := newHarness(t, config(VariantTriangle), nil, contentFS(t), WithMaxFrames(3))
	require.NoError(t, h.engine.Initialize())
	h.platform.window.width, h.platform.window.height = 0, 0

	require.NoError(t, h.engine.Run())
	stats := h.engine.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(3), stats.Skipped)
	assert.Empty(t, h.device.Draws())
	assert.Equal(t, 3, h.device.Submissions())

	require.NoError(t, h.engine.Shutdown())
}

func TestRequestStop(t *testing.T) {
	h := newHarness(t, config(VariantTriangle), nil, contentFS(t))
	require.NoError(t, h.engine.Initialize())

	h.engine.RequestStop()
	require.NoError(t, h.engine.Run())
	assert.Equal(t, uint64(1), h.engine.Stats().Frames)

	require.NoError(t, h.engine.Shutdown())
	h.assertAllReleased(t)
}

func TestRunRequiresInitialize(t *testing.T) {
	h := newHarness(t, config(VariantTriangle), nil, contentFS(t))
	assert.Error(t, h.engine.Run())

	require.NoError(t, h.engine.Initialize())
	assert.Error(t, h.engine.Initialize())
	require.NoError(t, h.engine.Shutdown())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "Running", EngineStageRunning.String())
	assert.Equal(t, "ShuttingDown", EngineStageShuttingDown.String())
	assert.Equal(t, "Unknown", Stage(42).String())
}

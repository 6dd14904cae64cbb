package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/texel/engine/assets"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
	"github.com/spaghettifunk/texel/engine/platform"
	"github.com/spaghettifunk/texel/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is creating the window, the device and the scene resources
	EngineStageBooting
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "Uninitialized"
	case EngineStageBooting:
		return "Booting"
	case EngineStageInitialized:
		return "Initialized"
	case EngineStageRunning:
		return "Running"
	case EngineStageShuttingDown:
		return "ShuttingDown"
	}
	return "Unknown"
}

type Option func(*Engine)

// WithAssetContext uses ac instead of resolving config.ContentDir.
func WithAssetContext(ac *assets.AssetContext) Option {
	return func(e *Engine) {
		e.assets = ac
	}
}

// WithMaxFrames stops the loop after n frames, 0 means unbounded.
func WithMaxFrames(n uint64) Option {
	return func(e *Engine) {
		e.maxFrames = n
	}
}

type Engine struct {
	config       *ApplicationConfig
	scene        *Scene
	currentStage Stage

	platform platform.Platform
	factory  gpu.DeviceFactory
	assets   *assets.AssetContext
	watcher  *assets.Watcher

	window    platform.Window
	device    gpu.Device
	resources *core.ResourceRegistry
	frame     *renderer.FrameRenderer

	events  *core.EventBus
	input   *core.Input
	clock   *core.Clock
	metrics *core.Metrics

	isRunning     bool
	stopRequested atomic.Bool
	maxFrames     uint64
	width         uint32
	height        uint32
}

// New validates config and returns an engine in the uninitialized stage.
// Nothing is created until Initialize.
func New(config *ApplicationConfig, p platform.Platform, factory gpu.DeviceFactory, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		config:       config,
		scene:        SceneFor(config.Variant),
		currentStage: EngineStageUninitialized,
		platform:     p,
		factory:      factory,
		resources:    core.NewResourceRegistry(),
		events:       core.NewEventBus(),
		input:        core.NewInput(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        config.StartWidth,
		height:       config.StartHeight,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Stats returns the frame counters of the renderer, zero before Initialize.
func (e *Engine) Stats() renderer.FrameStats {
	if e.frame == nil {
		return renderer.FrameStats{}
	}
	return e.frame.Stats()
}

// Live is the number of resources still owned by the engine.
func (e *Engine) Live() int {
	return e.resources.Live()
}

// Initialize brings up the window, the device and every resource the scene
// draws with. On failure everything created so far is released again.
func (e *Engine) Initialize() (err error) {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine in stage %s, expected %s", e.currentStage, EngineStageUninitialized)
	}
	e.currentStage = EngineStageBooting

	core.SetLogLevel(e.config.Level())
	core.SetLogPrefix(e.config.Name)

	defer func() {
		if err != nil {
			core.LogError("initialization failed: %s", err)
			e.release()
			e.currentStage = EngineStageUninitialized
		}
	}()

	if err := e.platform.Startup(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInitializationFailed, err)
	}
	e.resources.Track("platform", e.platform.Shutdown)

	if e.assets == nil {
		ac, err := assets.NewAssetContext(e.config.ContentDir)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrInitializationFailed, err)
		}
		e.assets = ac
	}
	core.LogDebug("content root %s", e.assets.Root())

	window, err := e.platform.CreateWindow(e.config.Name, int(e.config.StartWidth), int(e.config.StartHeight), platform.WindowHidden|platform.WindowResizable)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInitializationFailed, err)
	}
	e.window = window
	e.resources.Track("window", window.Destroy)
	fbWidth, fbHeight := window.FramebufferSize()
	e.width, e.height = uint32(fbWidth), uint32(fbHeight)

	device, err := e.factory(gpu.DeviceOptions{
		ApplicationName:    e.config.Name,
		Debug:              e.config.Validation,
		InstanceExtensions: e.platform.RequiredInstanceExtensions(),
		ShaderFormats:      gpu.ShaderFormatSPIRV,
		PresentMode:        e.config.Present(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInitializationFailed, err)
	}
	e.device = device
	e.resources.Track("device", device.Destroy)
	core.LogInfo("device created (%s, shader formats %s)", device.Driver(), device.ShaderFormats())

	if err := device.ClaimWindow(window); err != nil {
		return fmt.Errorf("%w: %w", core.ErrWindowClaimFailed, err)
	}
	e.resources.Track("window claim", func() { device.ReleaseWindow(window) })

	pipeline, err := e.buildPipeline()
	if err != nil {
		return err
	}

	var mesh *renderer.MeshBindings
	if e.scene.Textured() {
		if mesh, err = e.uploadScene(); err != nil {
			return err
		}
	}

	e.frame = renderer.NewFrameRenderer(device, window, pipeline, mesh, e.config.Clear())
	e.frame.OnStateChange(func(s renderer.FrameState) {
		if s == renderer.FrameStateSubmitted && e.frame.Stats().Frames == 0 {
			core.LogDebug("first frame submitted")
		}
	})

	if e.config.WatchAssets {
		e.startWatcher()
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized (%s variant, %d resources)", e.config.Name, e.config.Variant, e.resources.Live())
	return nil
}

// buildPipeline loads both shader stages, builds the pipeline against the
// current swapchain format and releases the shaders again.
func (e *Engine) buildPipeline() (gpu.GraphicsPipeline, error) {
	vs, err := renderer.LoadShaderInfo(e.device, e.assets, e.scene.VertexShader)
	if err != nil {
		return nil, err
	}
	vsID := e.resources.Track("vertex shader", func() { e.device.ReleaseShader(vs) })

	fs, err := renderer.LoadShaderInfo(e.device, e.assets, e.scene.FragmentShader)
	if err != nil {
		return nil, err
	}
	fsID := e.resources.Track("fragment shader", func() { e.device.ReleaseShader(fs) })

	pipeline, err := renderer.BuildPipeline(e.device, vs, fs, e.scene.Layout, e.device.SwapchainTextureFormat(e.window))
	if err != nil {
		return nil, err
	}
	e.resources.Track("graphics pipeline", func() { e.device.ReleaseGraphicsPipeline(pipeline) })

	// the pipeline keeps what it needs from the shaders
	if err := e.resources.Release(fsID); err != nil {
		return nil, err
	}
	if err := e.resources.Release(vsID); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// uploadScene stages the mesh and the image and creates the sampler.
func (e *Engine) uploadScene() (*renderer.MeshBindings, error) {
	img, err := assets.LoadImage(e.assets, e.config.Image, assets.ImageOptions{
		Channels: assets.RequiredChannels,
		FlipY:    e.config.FlipY,
	})
	if err != nil {
		return nil, err
	}

	vertices, err := e.scene.Mesh.VertexData()
	if err != nil {
		return nil, fmt.Errorf("%w: vertex data: %w", core.ErrResourceCreationFailed, err)
	}
	indices, err := e.scene.Mesh.IndexData()
	if err != nil {
		return nil, fmt.Errorf("%w: index data: %w", core.ErrResourceCreationFailed, err)
	}

	uploader := renderer.NewUploader(e.device)
	buffers, err := uploader.UploadBuffers(
		renderer.BufferPayload{Data: vertices, Usage: gpu.BufferUsageVertex},
		renderer.BufferPayload{Data: indices, Usage: gpu.BufferUsageIndex},
	)
	if err != nil {
		return nil, err
	}
	vb, ib := buffers[0], buffers[1]
	e.resources.Track("vertex buffer", func() { e.device.ReleaseBuffer(vb) })
	e.resources.Track("index buffer", func() { e.device.ReleaseBuffer(ib) })

	texture, err := uploader.UploadImage(img)
	if err != nil {
		return nil, err
	}
	e.resources.Track("texture", func() { e.device.ReleaseTexture(texture) })

	sampler, err := e.device.CreateSampler(e.scene.Sampler)
	if err != nil {
		return nil, fmt.Errorf("%w: sampler: %w", core.ErrResourceCreationFailed, err)
	}
	e.resources.Track("sampler", func() { e.device.ReleaseSampler(sampler) })

	return &renderer.MeshBindings{
		VertexBuffer: vb,
		IndexBuffer:  ib,
		Texture:      texture,
		Sampler:      sampler,
	}, nil
}

func (e *Engine) startWatcher() {
	root := e.assets.Root()
	w, err := assets.NewWatcher(root)
	if err != nil {
		core.LogWarn("asset watcher disabled for %s: %s", root, err)
		return
	}
	e.watcher = w
	e.resources.Track("asset watcher", func() {
		if err := w.Close(); err != nil {
			core.LogWarn("failed to close asset watcher: %s", err)
		}
	})
	core.LogDebug("watching %d assets under %s", len(w.Assets()), root)
}

// RequestStop makes Run return after the current frame. Safe to call from
// any goroutine.
func (e *Engine) RequestStop() {
	e.stopRequested.Store(true)
}

// Run shows the window and renders until a quit event, the escape key or a
// stop request. A rendering error stops the loop and is returned.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine in stage %s, expected %s", e.currentStage, EngineStageInitialized)
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.window.Show()
	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for e.isRunning {
		e.pumpEvents()
		if e.stopRequested.Load() {
			core.LogInfo("stop requested, shutting down.")
			e.isRunning = false
		}

		if err := e.frame.RenderFrame(); err != nil {
			e.isRunning = false
			e.currentStage = EngineStageInitialized
			return err
		}

		e.input.Update()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		if e.metrics.Update(currentTime - lastTime) {
			w, h := e.GetFramebufferSize()
			core.LogDebug("%.0f fps, %.2f ms/frame at %dx%d", e.metrics.FPS(), e.metrics.FrameTime(), w, h)
		}
		lastTime = currentTime

		if e.maxFrames > 0 && e.frame.Stats().Frames >= e.maxFrames {
			e.isRunning = false
		}
	}

	e.clock.Stop()
	e.currentStage = EngineStageInitialized
	stats := e.frame.Stats()
	core.LogInfo("render loop finished after %d frames (%d skipped)", stats.Frames, stats.Skipped)
	return nil
}

// pumpEvents translates the window events of this frame and the asset
// changes into event bus messages.
func (e *Engine) pumpEvents() {
	e.window.PumpEvents()
	for {
		ev, ok := e.window.PollEvent()
		if !ok {
			break
		}
		switch ev.Type {
		case platform.EventQuit:
			e.events.Fire(core.EventContext{Code: core.EVENT_CODE_APPLICATION_QUIT})
		case platform.EventKeyDown:
			if e.input.ProcessKey(ev.Key, true) {
				e.events.Fire(core.EventContext{Code: core.EVENT_CODE_KEY_PRESSED, Key: ev.Key})
			}
		case platform.EventKeyUp:
			if e.input.ProcessKey(ev.Key, false) {
				e.events.Fire(core.EventContext{Code: core.EVENT_CODE_KEY_RELEASED, Key: ev.Key})
			}
		case platform.EventResize:
			e.events.Fire(core.EventContext{Code: core.EVENT_CODE_RESIZED, Width: uint32(ev.Width), Height: uint32(ev.Height)})
		}
	}

	if e.watcher != nil {
		for _, ae := range e.watcher.Drain() {
			e.events.Fire(core.EventContext{Code: core.EVENT_CODE_ASSET_CHANGED, Path: ae.Path})
		}
	}
}

// Shutdown waits for the device and releases every resource exactly once,
// newest first. Calling it again is a no-op.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageUninitialized && e.resources.Live() == 0 {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.release()
	e.events.Shutdown()
	e.currentStage = EngineStageUninitialized
	core.LogInfo("%s shut down", e.config.Name)
	return nil
}

func (e *Engine) release() {
	if e.frame != nil && e.frame.State() != renderer.FrameStateIdle {
		core.LogWarn("releasing resources with a frame in state %s", e.frame.State())
	}
	if e.device != nil {
		if err := e.device.WaitForIdle(); err != nil {
			core.LogWarn("failed to wait for device idle: %s", err)
		}
	}
	n := e.resources.ReleaseAll()
	core.LogDebug("released %d resources", n)
	e.watcher = nil
	e.frame = nil
	e.device = nil
	e.window = nil
}

// GetFramebufferSize returns the size reported by the last resize event, or
// the window's size at creation. Zero means minimized.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onQuit(context core.EventContext) bool {
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
	e.isRunning = false
	return true
}

func (e *Engine) onKey(context core.EventContext) bool {
	if context.Code == core.EVENT_CODE_KEY_PRESSED {
		if context.Key == core.KEY_ESCAPE {
			e.events.Fire(core.EventContext{Code: core.EVENT_CODE_APPLICATION_QUIT})
			return true
		}
		core.LogDebug("'%c' key pressed in window.", rune(context.Key))
		return false
	}
	if e.input.WasKeyDown(context.Key) {
		core.LogDebug("'%c' key released in window after being held.", rune(context.Key))
	} else {
		core.LogDebug("'%c' key released in window.", rune(context.Key))
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	if context.Width == e.width && context.Height == e.height {
		return false
	}
	e.width = context.Width
	e.height = context.Height
	if e.width == 0 || e.height == 0 {
		core.LogInfo("Window minimized, frames are skipped until it is restored.")
		return true
	}
	core.LogDebug("Window resize: %d, %d", e.width, e.height)
	return true
}

func (e *Engine) onAssetChanged(context core.EventContext) bool {
	core.LogWarn("asset %s changed on disk, restart to pick it up", context.Path)
	return true
}

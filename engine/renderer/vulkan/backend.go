package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

const DriverName = "vulkan"

// Device implements gpu.Device on Vulkan 1.1 with a single queue that
// handles graphics, transfer and presentation.
type Device struct {
	context *VulkanContext
	locks   *VulkanLockPool
	debug   bool

	renderpasses map[renderpassKey]*VulkanRenderpass

	// submitted command buffers whose fence has not been seen signalled
	pending []*VulkanCommandBuffer
	// pending command buffers referencing each resource
	inUse map[uuid.UUID]int
	// releases postponed until the resource leaves inUse
	deferred map[uuid.UUID]func()
}

// Factory is a gpu.DeviceFactory for the Vulkan backend.
func Factory(opts gpu.DeviceOptions) (gpu.Device, error) {
	d, err := NewDevice(opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func NewDevice(opts gpu.DeviceOptions) (*Device, error) {
	if opts.ShaderFormats != gpu.ShaderFormatInvalid && opts.ShaderFormats&gpu.ShaderFormatSPIRV == 0 {
		return nil, fmt.Errorf("vulkan needs SPIRV shaders, caller provides %s", opts.ShaderFormats)
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	d := &Device{
		context: &VulkanContext{
			Allocator:   nil,
			Windows:     make(map[gpu.Window]*VulkanWindow),
			PresentMode: opts.PresentMode,
		},
		locks:        NewVulkanLockPool(),
		debug:        opts.Debug,
		renderpasses: make(map[renderpassKey]*VulkanRenderpass),
		inUse:        make(map[uuid.UUID]int),
		deferred:     make(map[uuid.UUID]func()),
	}

	if err := d.createInstance(opts); err != nil {
		return nil, err
	}

	if err := DeviceCreate(d.context); err != nil {
		d.destroyInstance()
		return nil, err
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(opts gpu.DeviceOptions) error {
	appName := opts.ApplicationName
	if appName == "" {
		appName = "texel"
	}

	// Negative viewport heights need 1.1.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Texel"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"}
	for _, ext := range opts.InstanceExtensions {
		if ext != "VK_KHR_surface" {
			requiredExtensions = append(requiredExtensions, ext)
		}
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if d.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	var layers []string
	if d.debug {
		found, err := validationLayerAvailable()
		if err != nil {
			return err
		}
		if found {
			layers = append(layers, VULKAN_VALIDATION_LAYER)
			core.LogInfo("Validation layer %s enabled.", VULKAN_VALIDATION_LAYER)
		} else {
			core.LogWarn("Validation layer %s is missing, continuing without it.", VULKAN_VALIDATION_LAYER)
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if d.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			d.context.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}
	return nil
}

func validationLayerAvailable() (bool, error) {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if vulkanName(available[i].LayerName[:]) == VULKAN_VALIDATION_LAYER {
			return true, nil
		}
	}
	return false, nil
}

func (d *Device) destroyInstance() {
	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}
	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func (d *Device) Driver() string {
	return DriverName
}

func (d *Device) ShaderFormats() gpu.ShaderFormat {
	return gpu.ShaderFormatSPIRV
}

func (d *Device) window(w gpu.Window) (*VulkanWindow, bool) {
	var window *VulkanWindow
	d.locks.SafeCall(SwapchainManagement, func() error {
		window = d.context.Windows[w]
		return nil
	})
	return window, window != nil
}

func (d *Device) ClaimWindow(w gpu.Window) error {
	sw, ok := w.(SurfaceWindow)
	if !ok {
		return fmt.Errorf("window cannot create a vulkan surface")
	}
	if _, claimed := d.window(w); claimed {
		return fmt.Errorf("window already claimed")
	}

	ptr, err := sw.CreateWindowSurface(d.context.Instance)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	window := &VulkanWindow{window: w, Surface: vk.SurfaceFromPointer(ptr)}

	var supported vk.Bool32
	if err := resultError("vkGetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(
		d.context.Device.PhysicalDevice, d.context.Device.GraphicsQueueIndex, window.Surface, &supported)); err != nil {
		window.destroy(d.context)
		return err
	}
	if supported != vk.True {
		window.destroy(d.context)
		return fmt.Errorf("graphics queue family %d cannot present to the window", d.context.Device.GraphicsQueueIndex)
	}
	if err := DeviceQuerySwapchainSupport(d.context.Device.PhysicalDevice, window.Surface, &window.Support); err != nil {
		window.destroy(d.context)
		return err
	}
	if err := window.createSyncObjects(d.context); err != nil {
		window.destroy(d.context)
		return err
	}
	// The swapchain is created on the first acquire, once the window has a
	// size.
	window.NeedsRecreate = true

	d.locks.SafeCall(SwapchainManagement, func() error {
		d.context.Windows[w] = window
		return nil
	})
	return nil
}

func (d *Device) ReleaseWindow(w gpu.Window) {
	window, ok := d.window(w)
	if !ok {
		return
	}
	if err := d.WaitForIdle(); err != nil {
		core.LogError("wait for idle before releasing window: %s", err)
	}
	d.locks.SafeCall(SwapchainManagement, func() error {
		delete(d.context.Windows, w)
		return nil
	})
	window.destroy(d.context)
}

func (d *Device) SwapchainTextureFormat(w gpu.Window) gpu.TextureFormat {
	window, ok := d.window(w)
	if !ok {
		return gpu.TextureFormatInvalid
	}
	if window.Swapchain != nil {
		return fromVulkanFormat(window.Swapchain.ImageFormat.Format)
	}
	return fromVulkanFormat(chooseSurfaceFormat(window.Support.Formats).Format)
}

func (d *Device) CreateShader(info *gpu.ShaderCreateInfo) (gpu.Shader, error) {
	return ShaderModuleCreate(d.context, info)
}

func (d *Device) ReleaseShader(s gpu.Shader) {
	if shader, ok := s.(*VulkanShader); ok && shader != nil {
		// Modules are not referenced by command buffers.
		shader.Destroy(d.context)
	}
}

func (d *Device) CreateGraphicsPipeline(info *gpu.GraphicsPipelineCreateInfo) (gpu.GraphicsPipeline, error) {
	if len(info.ColorTargetDescriptions) != 1 {
		return nil, fmt.Errorf("pipeline needs exactly one color target, got %d", len(info.ColorTargetDescriptions))
	}
	format, ok := toVulkanFormat(info.ColorTargetDescriptions[0].Format)
	if !ok {
		return nil, fmt.Errorf("unsupported color target format %s", info.ColorTargetDescriptions[0].Format)
	}
	renderpass, err := d.getRenderpass(compatibleRenderpassKey(format))
	if err != nil {
		return nil, err
	}
	return NewGraphicsPipeline(d.context, d.locks, renderpass, info)
}

func (d *Device) ReleaseGraphicsPipeline(p gpu.GraphicsPipeline) {
	if pipeline, ok := p.(*VulkanPipeline); ok && pipeline != nil {
		d.releaseWhenUnused(pipeline.ID(), func() { pipeline.Destroy(d.context) })
	}
}

func (d *Device) CreateBuffer(info *gpu.BufferCreateInfo) (gpu.Buffer, error) {
	buffer, err := BufferCreate(d.context, info.Size, toVulkanBufferUsage(info.Usage), vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	buffer.usage = info.Usage
	return buffer, nil
}

func (d *Device) ReleaseBuffer(b gpu.Buffer) {
	if buffer, ok := b.(*VulkanBuffer); ok && buffer != nil {
		d.releaseWhenUnused(buffer.ID(), func() { buffer.Destroy(d.context) })
	}
}

func (d *Device) CreateTransferBuffer(info *gpu.TransferBufferCreateInfo) (gpu.TransferBuffer, error) {
	return TransferBufferCreate(d.context, info.Size, info.Usage)
}

func (d *Device) ReleaseTransferBuffer(tb gpu.TransferBuffer) {
	if buffer, ok := tb.(*VulkanTransferBuffer); ok && buffer != nil {
		d.releaseWhenUnused(buffer.ID(), func() { buffer.Destroy(d.context) })
	}
}

func (d *Device) MapTransferBuffer(tb gpu.TransferBuffer) ([]byte, error) {
	buffer, ok := tb.(*VulkanTransferBuffer)
	if !ok || buffer == nil || buffer.view == nil {
		return nil, fmt.Errorf("map of an invalid transfer buffer")
	}
	if buffer.mapped {
		return nil, fmt.Errorf("transfer buffer %s is already mapped", buffer.ID())
	}
	buffer.mapped = true
	return buffer.view, nil
}

func (d *Device) UnmapTransferBuffer(tb gpu.TransferBuffer) {
	if buffer, ok := tb.(*VulkanTransferBuffer); ok && buffer != nil {
		buffer.mapped = false
	}
}

func (d *Device) CreateTexture(info *gpu.TextureCreateInfo) (gpu.Texture, error) {
	return TextureCreate(d.context, info)
}

func (d *Device) ReleaseTexture(t gpu.Texture) {
	texture, ok := t.(*VulkanTexture)
	if !ok || texture == nil {
		return
	}
	if texture.swapchain != nil {
		core.LogWarn("swapchain textures are owned by their window")
		return
	}
	d.releaseWhenUnused(texture.ID(), func() { texture.Destroy(d.context) })
}

func (d *Device) CreateSampler(info *gpu.SamplerCreateInfo) (gpu.Sampler, error) {
	return SamplerCreate(d.context, info)
}

func (d *Device) ReleaseSampler(s gpu.Sampler) {
	if sampler, ok := s.(*VulkanSampler); ok && sampler != nil {
		d.releaseWhenUnused(sampler.ID(), func() { sampler.Destroy(d.context) })
	}
}

// releaseWhenUnused runs release now, or once the last pending command
// buffer referencing id completed.
func (d *Device) releaseWhenUnused(id uuid.UUID, release func()) {
	now := false
	d.locks.SafeCall(ResourceManagement, func() error {
		if _, ok := d.deferred[id]; ok {
			core.LogError("resource %s released twice", id)
			return nil
		}
		if d.inUse[id] > 0 {
			d.deferred[id] = release
			return nil
		}
		now = true
		return nil
	})
	if now {
		release()
	}
}

func (d *Device) AcquireCommandBuffer() (gpu.CommandBuffer, error) {
	d.retire()

	cb, err := NewVulkanCommandBuffer(d, d.context.Device.GraphicsCommandPool)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// track registers a submitted command buffer and holds its references until
// it completed.
func (d *Device) track(cb *VulkanCommandBuffer) {
	ids := make([]uuid.UUID, 0, len(cb.refs))
	d.locks.SafeCall(ResourceManagement, func() error {
		for id := range cb.refs {
			d.inUse[id]++
			ids = append(ids, id)
		}
		d.pending = append(d.pending, cb)
		return nil
	})
	cb.onComplete = append(cb.onComplete, func() { d.unreference(ids) })
}

func (d *Device) untrack(cb *VulkanCommandBuffer) {
	d.locks.SafeCall(ResourceManagement, func() error {
		for i, p := range d.pending {
			if p == cb {
				d.pending = append(d.pending[:i], d.pending[i+1:]...)
				break
			}
		}
		return nil
	})
}

func (d *Device) unreference(ids []uuid.UUID) {
	var releases []func()
	d.locks.SafeCall(ResourceManagement, func() error {
		for _, id := range ids {
			d.inUse[id]--
			if d.inUse[id] > 0 {
				continue
			}
			delete(d.inUse, id)
			if release, ok := d.deferred[id]; ok {
				releases = append(releases, release)
				delete(d.deferred, id)
			}
		}
		return nil
	})
	for _, release := range releases {
		release()
	}
}

// retire polls the fences of pending command buffers and finishes the ones
// that completed.
func (d *Device) retire() {
	var done []*VulkanCommandBuffer
	d.locks.SafeCall(ResourceManagement, func() error {
		remaining := d.pending[:0]
		for _, cb := range d.pending {
			signaled, err := cb.fence.FenceStatus(d.context)
			if err != nil {
				core.LogError("fence status: %s", err)
			}
			if signaled {
				done = append(done, cb)
			} else {
				remaining = append(remaining, cb)
			}
		}
		for i := len(remaining); i < len(d.pending); i++ {
			d.pending[i] = nil
		}
		d.pending = remaining
		return nil
	})

	for _, cb := range done {
		cb.Free()
		fence := cb.fence
		d.locks.SafeCall(ResourceManagement, func() error {
			fence.retired = true
			if !fence.acquired {
				fence.FenceDestroy(d.context)
			}
			return nil
		})
		cb.complete()
	}
}

func (d *Device) WaitForFences(waitAll bool, fences ...gpu.Fence) error {
	handles := make([]vk.Fence, 0, len(fences))
	for _, f := range fences {
		fence, ok := f.(*VulkanFence)
		if !ok || fence == nil {
			return fmt.Errorf("wait on an invalid fence")
		}
		if fence.IsSignaled {
			if !waitAll {
				d.retire()
				return nil
			}
			continue
		}
		if fence.Handle == vk.NullFence {
			return fmt.Errorf("wait on a released fence")
		}
		handles = append(handles, fence.Handle)
	}
	if len(handles) > 0 {
		all := vk.Bool32(vk.False)
		if waitAll {
			all = vk.Bool32(vk.True)
		}
		result := vk.WaitForFences(d.context.Device.LogicalDevice, uint32(len(handles)), handles, all, VULKAN_WAIT_TIMEOUT_NS)
		if result == vk.Timeout {
			core.LogWarn("vk_fence_wait - Timed out")
		}
		if err := resultError("vkWaitForFences", result); err != nil {
			return err
		}
	}
	d.retire()
	return nil
}

func (d *Device) ReleaseFence(f gpu.Fence) {
	fence, ok := f.(*VulkanFence)
	if !ok || fence == nil {
		return
	}
	d.locks.SafeCall(ResourceManagement, func() error {
		fence.acquired = false
		if fence.retired {
			fence.FenceDestroy(d.context)
		}
		return nil
	})
}

func (d *Device) WaitForIdle() error {
	err := d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.context.Device.LogicalDevice))
	})
	if err != nil {
		return err
	}
	d.retire()
	return nil
}

// Destroy waits for all submitted work, then destroys in the opposite order
// of creation. Resources the caller never released are leaked to the driver.
func (d *Device) Destroy() {
	if d.context.Device == nil {
		return
	}
	if err := d.WaitForIdle(); err != nil {
		core.LogError("wait for idle on destroy: %s", err)
	}

	var windows []gpu.Window
	d.locks.SafeCall(SwapchainManagement, func() error {
		for w := range d.context.Windows {
			windows = append(windows, w)
		}
		return nil
	})
	for _, w := range windows {
		d.ReleaseWindow(w)
	}

	d.locks.SafeCall(RenderpassManagement, func() error {
		for key, rp := range d.renderpasses {
			rp.RenderpassDestroy(d.context)
			delete(d.renderpasses, key)
		}
		return nil
	})

	if n := len(d.inUse) + len(d.deferred); n > 0 {
		core.LogWarn("%d resources still referenced on destroy", n)
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(d.context)
	d.destroyInstance()
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

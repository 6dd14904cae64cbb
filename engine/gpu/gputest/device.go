// Package gputest provides an in-memory gpu.Device. Copies run on the host
// when a command buffer is submitted, draws are recorded instead of
// rasterized, and every call is logged so tests can assert on the exact
// protocol a caller followed.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/texel/engine/gpu"
)

var (
	ErrInjected      = errors.New("injected failure")
	ErrAlreadyMapped = errors.New("transfer buffer already mapped")
)

// Failures selects which device calls fail. A nil entry never fails.
type Failures struct {
	CreateShader         error
	CreatePipeline       error
	CreateBuffer         error
	CreateTransferBuffer error
	CreateTexture        error
	CreateSampler        error
	Map                  error
	AcquireCommandBuffer error
	Submit               error
	ClaimWindow          error
	// Fail the nth command buffer acquisition (1 based), 0 disables.
	AcquireCommandBufferAt int
	// Fail the nth submission (1 based), 0 disables.
	SubmitAt int
}

// Draw is one recorded draw call together with the state bound at the time.
type Draw struct {
	Pipeline      gpu.GraphicsPipeline
	VertexBuffers []gpu.BufferBinding
	IndexBuffer   *gpu.BufferBinding
	IndexSize     gpu.IndexElementSize
	Samplers      []gpu.TextureSamplerBinding
	Target        gpu.ColorTargetInfo
	Indexed       bool
	Count         uint32
	Instances     uint32
	First         uint32
	VertexOffset  int32
	FirstInstance uint32
}

type Device struct {
	mu sync.Mutex

	formats         gpu.ShaderFormat
	swapchainFormat gpu.TextureFormat

	// Failures may be changed between calls.
	Failures Failures
	// SwapchainUnavailable makes every swapchain acquisition return no texture.
	SwapchainUnavailable bool

	calls          []string
	live           map[uuid.UUID]string
	doubleReleases []string
	violations     []string
	claimed        map[gpu.Window]bool
	pending        map[*TransferBuffer]int
	acquired       int
	submitted      int
	draws          []Draw
	destroyed      bool
}

// New returns a device reporting the given shader formats and a B8G8R8A8
// swapchain.
func New(formats gpu.ShaderFormat) *Device {
	return &Device{
		formats:         formats,
		swapchainFormat: gpu.TextureFormatB8G8R8A8Unorm,
		live:            make(map[uuid.UUID]string),
		claimed:         make(map[gpu.Window]bool),
		pending:         make(map[*TransferBuffer]int),
	}
}

// Factory adapts New to a gpu.DeviceFactory. The returned device is also
// stored in *out so tests can inspect it.
func Factory(formats gpu.ShaderFormat, out **Device) gpu.DeviceFactory {
	return func(gpu.DeviceOptions) (gpu.Device, error) {
		d := New(formats)
		if out != nil {
			*out = d
		}
		return d, nil
	}
}

func (d *Device) record(call string) {
	d.calls = append(d.calls, call)
}

func (d *Device) track(id uuid.UUID, label string) {
	d.live[id] = label
}

func (d *Device) untrack(r gpu.Resource, label string) {
	if r == nil {
		return
	}
	if _, ok := d.live[r.ID()]; !ok {
		d.doubleReleases = append(d.doubleReleases, fmt.Sprintf("%s %s", label, r.ID()))
		return
	}
	delete(d.live, r.ID())
}

// Calls returns the ordered device call log.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallCount counts occurrences of a call in the log.
func (d *Device) CallCount(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

// Live returns the labels of resources created and not yet released, fences excluded.
func (d *Device) Live() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.live))
	for _, l := range d.live {
		out = append(out, l)
	}
	return out
}

// DoubleReleases lists releases of resources that were not live.
func (d *Device) DoubleReleases() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.doubleReleases...)
}

// Violations lists protocol errors the device noticed but tolerated.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Draws returns every draw of every submitted command buffer.
func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

func (d *Device) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) SetSwapchainFormat(f gpu.TextureFormat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapchainFormat = f
}

func (d *Device) Driver() string {
	return "gputest"
}

func (d *Device) ShaderFormats() gpu.ShaderFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ShaderFormats")
	return d.formats
}

func (d *Device) ClaimWindow(w gpu.Window) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ClaimWindow")
	if d.Failures.ClaimWindow != nil {
		return d.Failures.ClaimWindow
	}
	if d.claimed[w] {
		return errors.New("window already claimed")
	}
	d.claimed[w] = true
	return nil
}

func (d *Device) ReleaseWindow(w gpu.Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseWindow")
	delete(d.claimed, w)
}

func (d *Device) SwapchainTextureFormat(w gpu.Window) gpu.TextureFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SwapchainTextureFormat")
	if !d.claimed[w] {
		return gpu.TextureFormatInvalid
	}
	return d.swapchainFormat
}

func (d *Device) CreateShader(info *gpu.ShaderCreateInfo) (gpu.Shader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateShader")
	if d.Failures.CreateShader != nil {
		return nil, d.Failures.CreateShader
	}
	if len(info.Code) == 0 {
		return nil, errors.New("empty shader bytecode")
	}
	if info.Format == gpu.ShaderFormatInvalid || !d.formats.Has(info.Format) {
		return nil, fmt.Errorf("shader format %s not supported by device", info.Format)
	}
	if info.Entrypoint == "" {
		return nil, errors.New("missing shader entry point")
	}
	s := &Shader{handle: newHandle(), Info: *info}
	s.Info.Code = append([]byte(nil), info.Code...)
	d.track(s.id, "shader")
	return s, nil
}

func (d *Device) ReleaseShader(s gpu.Shader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseShader")
	d.untrack(s, "shader")
}

func (d *Device) CreateGraphicsPipeline(info *gpu.GraphicsPipelineCreateInfo) (gpu.GraphicsPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateGraphicsPipeline")
	if d.Failures.CreatePipeline != nil {
		return nil, d.Failures.CreatePipeline
	}
	if info.VertexShader == nil || info.VertexShader.Stage() != gpu.ShaderStageVertex {
		return nil, errors.New("missing vertex shader")
	}
	if info.FragmentShader == nil || info.FragmentShader.Stage() != gpu.ShaderStageFragment {
		return nil, errors.New("missing fragment shader")
	}
	if _, ok := d.live[info.VertexShader.ID()]; !ok {
		return nil, errors.New("vertex shader was released")
	}
	if _, ok := d.live[info.FragmentShader.ID()]; !ok {
		return nil, errors.New("fragment shader was released")
	}
	if len(info.ColorTargetDescriptions) == 0 {
		return nil, errors.New("no color targets")
	}
	for _, ct := range info.ColorTargetDescriptions {
		if ct.Format != d.swapchainFormat {
			return nil, fmt.Errorf("color target format %s does not match swapchain format %s", ct.Format, d.swapchainFormat)
		}
	}
	slots := map[uint32]bool{}
	for _, vb := range info.VertexInputState.VertexBufferDescriptions {
		slots[vb.Slot] = true
	}
	for _, a := range info.VertexInputState.VertexAttributes {
		if !slots[a.BufferSlot] {
			return nil, fmt.Errorf("attribute %d references undescribed buffer slot %d", a.Location, a.BufferSlot)
		}
		if a.Format.Size() == 0 {
			return nil, fmt.Errorf("attribute %d has an invalid format", a.Location)
		}
	}
	p := &GraphicsPipeline{handle: newHandle(), Info: *info}
	d.track(p.id, "pipeline")
	return p, nil
}

func (d *Device) ReleaseGraphicsPipeline(p gpu.GraphicsPipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseGraphicsPipeline")
	d.untrack(p, "pipeline")
}

func (d *Device) CreateBuffer(info *gpu.BufferCreateInfo) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateBuffer")
	if d.Failures.CreateBuffer != nil {
		return nil, d.Failures.CreateBuffer
	}
	if info.Size == 0 {
		return nil, errors.New("buffer size must be greater than zero")
	}
	b := &Buffer{handle: newHandle(), usage: info.Usage, Data: make([]byte, info.Size)}
	d.track(b.id, "buffer")
	return b, nil
}

func (d *Device) ReleaseBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseBuffer")
	d.untrack(b, "buffer")
}

func (d *Device) CreateTransferBuffer(info *gpu.TransferBufferCreateInfo) (gpu.TransferBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateTransferBuffer")
	if d.Failures.CreateTransferBuffer != nil {
		return nil, d.Failures.CreateTransferBuffer
	}
	if info.Size == 0 {
		return nil, errors.New("transfer buffer size must be greater than zero")
	}
	tb := &TransferBuffer{handle: newHandle(), usage: info.Usage, data: make([]byte, info.Size)}
	d.track(tb.id, "transfer buffer")
	return tb, nil
}

func (d *Device) ReleaseTransferBuffer(tb gpu.TransferBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseTransferBuffer")
	if t, ok := tb.(*TransferBuffer); ok && d.pending[t] > 0 {
		d.violations = append(d.violations, "transfer buffer released before the copy referencing it was submitted")
	}
	d.untrack(tb, "transfer buffer")
}

func (d *Device) MapTransferBuffer(tb gpu.TransferBuffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("MapTransferBuffer")
	if d.Failures.Map != nil {
		return nil, d.Failures.Map
	}
	t := tb.(*TransferBuffer)
	if t.mapped {
		return nil, ErrAlreadyMapped
	}
	t.mapped = true
	return t.data, nil
}

func (d *Device) UnmapTransferBuffer(tb gpu.TransferBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UnmapTransferBuffer")
	tb.(*TransferBuffer).mapped = false
}

// TransferBufferContents returns a copy of the host side bytes of tb.
func (d *Device) TransferBufferContents(tb gpu.TransferBuffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), tb.(*TransferBuffer).data...)
}

func (d *Device) CreateTexture(info *gpu.TextureCreateInfo) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateTexture")
	if d.Failures.CreateTexture != nil {
		return nil, d.Failures.CreateTexture
	}
	bpp := info.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported texture format %s", info.Format)
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, errors.New("texture dimensions must be greater than zero")
	}
	t := &Texture{handle: newHandle(), Info: *info, Data: make([]byte, info.Width*info.Height*bpp)}
	d.track(t.id, "texture")
	return t, nil
}

func (d *Device) ReleaseTexture(t gpu.Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseTexture")
	d.untrack(t, "texture")
}

func (d *Device) CreateSampler(info *gpu.SamplerCreateInfo) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateSampler")
	if d.Failures.CreateSampler != nil {
		return nil, d.Failures.CreateSampler
	}
	s := &Sampler{handle: newHandle(), Info: *info}
	d.track(s.id, "sampler")
	return s, nil
}

func (d *Device) ReleaseSampler(s gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseSampler")
	d.untrack(s, "sampler")
}

func (d *Device) AcquireCommandBuffer() (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AcquireCommandBuffer")
	d.acquired++
	if d.Failures.AcquireCommandBuffer != nil {
		return nil, d.Failures.AcquireCommandBuffer
	}
	if d.Failures.AcquireCommandBufferAt != 0 && d.acquired == d.Failures.AcquireCommandBufferAt {
		return nil, fmt.Errorf("%w: command buffer %d", ErrInjected, d.acquired)
	}
	return &CommandBuffer{device: d}, nil
}

func (d *Device) WaitForFences(waitAll bool, fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitForFences")
	for _, f := range fences {
		fence, ok := f.(*Fence)
		if !ok || fence == nil {
			return errors.New("invalid fence")
		}
		if !fence.signalled {
			return errors.New("fence will never be signalled")
		}
	}
	return nil
}

func (d *Device) ReleaseFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ReleaseFence")
}

func (d *Device) WaitForIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitForIdle")
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Destroy")
	d.destroyed = true
}

// Package platform owns the OS window and turns its callbacks into events
// the main loop polls once per frame.
package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/texel/engine/containers"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Events that did not fit into the queue before the next poll are dropped.
const eventQueueCapacity = 256

type WindowFlags uint32

const (
	WindowHidden WindowFlags = 1 << iota
	WindowResizable
)

type EventType uint8

const (
	EventQuit EventType = iota
	EventKeyDown
	EventKeyUp
	EventResize
)

func (t EventType) String() string {
	switch t {
	case EventQuit:
		return "quit"
	case EventKeyDown:
		return "keyDown"
	case EventKeyUp:
		return "keyUp"
	case EventResize:
		return "resize"
	}
	return "unknown"
}

type Event struct {
	Type EventType
	// set for key events
	Key core.KeyCode
	// set for resize events, in pixels
	Width, Height int
}

// Window is a presentation target that also produces input events.
type Window interface {
	gpu.Window
	Show()
	// PumpEvents collects pending OS events into the window's queue.
	PumpEvents()
	PollEvent() (Event, bool)
	Destroy()
}

type Platform interface {
	Startup() error
	CreateWindow(title string, width, height int, flags WindowFlags) (Window, error)
	// RequiredInstanceExtensions lists the Vulkan instance extensions the
	// windowing system needs. Valid once a window exists.
	RequiredInstanceExtensions() []string
	Shutdown()
}

// GLFWPlatform implements Platform on top of GLFW without a client API, for
// Vulkan rendering.
type GLFWPlatform struct {
	started bool
	windows []*GLFWWindow
}

func New() *GLFWPlatform {
	return &GLFWPlatform{}
}

func (p *GLFWPlatform) Startup() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("GLFW Vulkan loader not found")
	}
	p.started = true
	return nil
}

func (p *GLFWPlatform) CreateWindow(title string, width, height int, flags WindowFlags) (Window, error) {
	if !p.started {
		return nil, fmt.Errorf("platform not started")
	}

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	glfw.WindowHint(glfw.Visible, boolHint(flags&WindowHidden == 0))
	glfw.WindowHint(glfw.Resizable, boolHint(flags&WindowResizable != 0))

	handle, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	w := &GLFWWindow{
		handle: handle,
		events: containers.NewRingQueue[Event](eventQueueCapacity),
	}
	handle.SetCloseCallback(func(*glfw.Window) {
		w.push(Event{Type: EventQuit})
	})
	handle.SetKeyCallback(w.keyCallback)
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.push(Event{Type: EventResize, Width: width, Height: height})
	})

	p.windows = append(p.windows, w)
	return w, nil
}

func (p *GLFWPlatform) RequiredInstanceExtensions() []string {
	if len(p.windows) == 0 {
		return nil
	}
	return p.windows[0].handle.GetRequiredInstanceExtensions()
}

func (p *GLFWPlatform) Shutdown() {
	for _, w := range p.windows {
		w.Destroy()
	}
	p.windows = nil
	if p.started {
		glfw.Terminate()
		p.started = false
	}
}

func boolHint(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

type GLFWWindow struct {
	handle *glfw.Window
	events *containers.RingQueue[Event]
}

func (w *GLFWWindow) FramebufferSize() (int, int) {
	if w.handle == nil {
		return 0, 0
	}
	return w.handle.GetFramebufferSize()
}

func (w *GLFWWindow) Show() {
	w.handle.Show()
}

func (w *GLFWWindow) PumpEvents() {
	glfw.PollEvents()
}

func (w *GLFWWindow) PollEvent() (Event, bool) {
	e, err := w.events.Dequeue()
	if err != nil {
		return Event{}, false
	}
	return e, true
}

// CreateWindowSurface creates a VkSurfaceKHR for instance and returns its
// handle.
func (w *GLFWWindow) CreateWindowSurface(instance interface{}) (uintptr, error) {
	return w.handle.CreateWindowSurface(instance, nil)
}

func (w *GLFWWindow) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
}

func (w *GLFWWindow) push(e Event) {
	if err := w.events.Enqueue(e); err != nil {
		core.LogWarn("dropping %s event: %s", e.Type, err)
	}
}

func (w *GLFWWindow) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	code := TranslateKey(key)
	if code == core.KEY_UNKNOWN {
		return
	}
	switch action {
	case glfw.Press:
		w.push(Event{Type: EventKeyDown, Key: code})
	case glfw.Release:
		w.push(Event{Type: EventKeyUp, Key: code})
	}
}

// TranslateKey maps a GLFW key to the engine key code.
func TranslateKey(key glfw.Key) core.KeyCode {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KEY_A + core.KeyCode(key-glfw.KeyA)
	}
	switch key {
	case glfw.KeyEscape:
		return core.KEY_ESCAPE
	case glfw.KeyEnter:
		return core.KEY_ENTER
	case glfw.KeySpace:
		return core.KEY_SPACE
	case glfw.KeyTab:
		return core.KEY_TAB
	case glfw.KeyBackspace:
		return core.KEY_BACKSPACE
	case glfw.KeyLeft:
		return core.KEY_LEFT
	case glfw.KeyRight:
		return core.KEY_RIGHT
	case glfw.KeyUp:
		return core.KEY_UP
	case glfw.KeyDown:
		return core.KEY_DOWN
	}
	return core.KEY_UNKNOWN
}

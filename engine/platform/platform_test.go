package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/texel/engine/containers"
	"github.com/spaghettifunk/texel/engine/core"
)

func TestTranslateKey(t *testing.T) {
	assert.Equal(t, core.KEY_ESCAPE, TranslateKey(glfw.KeyEscape))
	assert.Equal(t, core.KEY_A, TranslateKey(glfw.KeyA))
	assert.Equal(t, core.KEY_Q, TranslateKey(glfw.KeyQ))
	assert.Equal(t, core.KEY_Z, TranslateKey(glfw.KeyZ))
	assert.Equal(t, core.KEY_UP, TranslateKey(glfw.KeyUp))
	assert.Equal(t, core.KEY_UNKNOWN, TranslateKey(glfw.KeyF5))
}

func TestWindowEventQueue(t *testing.T) {
	w := &GLFWWindow{events: containers.NewRingQueue[Event](2)}

	_, ok := w.PollEvent()
	assert.False(t, ok)

	w.keyCallback(nil, glfw.KeyEscape, 0, glfw.Press, 0)
	w.keyCallback(nil, glfw.KeyF5, 0, glfw.Press, 0)
	w.keyCallback(nil, glfw.KeyEscape, 0, glfw.Repeat, 0)
	w.push(Event{Type: EventResize, Width: 10, Height: 20})
	// queue is full
	w.push(Event{Type: EventQuit})

	e, ok := w.PollEvent()
	assert.True(t, ok)
	assert.Equal(t, Event{Type: EventKeyDown, Key: core.KEY_ESCAPE}, e)

	e, ok = w.PollEvent()
	assert.True(t, ok)
	assert.Equal(t, EventResize, e.Type)
	assert.Equal(t, 10, e.Width)

	_, ok = w.PollEvent()
	assert.False(t, ok)

	width, height := w.FramebufferSize()
	assert.Zero(t, width)
	assert.Zero(t, height)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "quit", EventQuit.String())
	assert.Equal(t, "keyDown", EventKeyDown.String())
	assert.Equal(t, "resize", EventResize.String())
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type listener struct {
	name    string
	handled bool
	seen    []EventContext
}

func (l *listener) onEvent(context EventContext) bool {
	l.seen = append(l.seen, context)
	return l.handled
}

func TestEventBusFire(t *testing.T) {
	assert := assert.New(t)
	bus := NewEventBus()

	first := &listener{name: "first", handled: true}
	second := &listener{name: "second"}

	assert.True(bus.Register(EVENT_CODE_KEY_PRESSED, first, first.onEvent))
	assert.True(bus.Register(EVENT_CODE_KEY_PRESSED, second, second.onEvent))
	assert.False(bus.Register(EVENT_CODE_KEY_PRESSED, first, first.onEvent))

	assert.True(bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED, Key: KEY_ESCAPE}))
	assert.Len(first.seen, 1)
	assert.Empty(second.seen, "handled events stop propagating")
	assert.Equal(KEY_ESCAPE, first.seen[0].Key)

	assert.False(bus.Fire(EventContext{Code: EVENT_CODE_APPLICATION_QUIT}))

	assert.True(bus.Unregister(EVENT_CODE_KEY_PRESSED, first))
	assert.False(bus.Unregister(EVENT_CODE_KEY_PRESSED, first))
	assert.False(bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED, Key: KEY_A}))
	assert.Len(second.seen, 1)

	bus.Shutdown()
	assert.False(bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED}))
	assert.Len(second.seen, 1)
}

func TestInputTransitions(t *testing.T) {
	assert := assert.New(t)
	in := NewInput()

	assert.True(in.ProcessKey(KEY_ESCAPE, true))
	assert.False(in.ProcessKey(KEY_ESCAPE, true))
	assert.True(in.isKeyDown(KEY_ESCAPE))
	assert.False(in.WasKeyDown(KEY_ESCAPE))

	in.Update()
	assert.True(in.WasKeyDown(KEY_ESCAPE))
	assert.True(in.ProcessKey(KEY_ESCAPE, false))
	assert.False(in.isKeyDown(KEY_ESCAPE))

	assert.Equal(KeyCode(0x5A), KEY_Z)
}

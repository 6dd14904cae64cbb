package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()

	sampled := 0
	for i := 0; i < 120; i++ {
		if m.Update(10 * time.Millisecond) {
			sampled++
		}
	}
	assert.Equal(t, 1, sampled)
	assert.Equal(t, 100.0, m.FPS())
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	assert.Equal(t, time.Duration(0), c.Elapsed())

	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())
}

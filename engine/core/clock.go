package core

import "time"

// Clock measures time since Start. The zero value is a stopped clock.
type Clock struct {
	now     func() time.Time
	started time.Time
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Update refreshes the elapsed time. Has no effect on a stopped clock.
func (c *Clock) Update() {
	if !c.started.IsZero() {
		c.elapsed = c.now().Sub(c.started)
	}
}

// Start resets the elapsed time and starts the clock.
func (c *Clock) Start() {
	c.started = c.now()
	c.elapsed = 0
}

// Stop stops the clock without resetting the elapsed time.
func (c *Clock) Stop() {
	c.started = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

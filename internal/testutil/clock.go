package testutil

import (
	"sync"
	"time"
)

// DeviceClock hands out device timestamps for synthetic protocol lines.
//
// Each call to Next advances by a fixed step, so a transcript built twice
// from the same clock settings is byte-identical. Reset rewinds to the start
// for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeviceClock struct {
	mu    sync.Mutex
	start time.Duration
	step  time.Duration
	now   time.Duration
}

// NewDeviceClock creates a clock whose first Next returns start.
func NewDeviceClock(start, step time.Duration) *DeviceClock {
	return &DeviceClock{start: start, step: step, now: start - step}
}

// Next advances the clock by one step and returns the new time.
func (c *DeviceClock) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last time handed out without advancing.
// Before the first Next it is start minus one step.
func (c *DeviceClock) Current() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without handing out a time.
func (c *DeviceClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Reset rewinds the clock so the next call to Next returns start.
func (c *DeviceClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start - c.step
}

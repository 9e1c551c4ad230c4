// Package rate turns cumulative counters into per-second rates.
package rate

import (
	"sync"
	"time"
)

type sample struct {
	value float64
	at    time.Time
}

// Calculator keeps the previous observation of each counter.
type Calculator struct {
	mu    sync.Mutex
	state map[string]sample
}

// NewCalculator creates an empty Calculator.
func NewCalculator() *Calculator {
	return &Calculator{state: make(map[string]sample)}
}

// Rate records value for key and returns the per-second rate since the
// previous observation. The first observation after a reset yields no rate.
// Counter resets and clock skew clamp to zero.
func (c *Calculator) Rate(key string, value float64, now time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.state[key]
	c.state[key] = sample{value: value, at: now}
	if !ok {
		return 0, false
	}

	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	r := (value - prev.value) / elapsed
	if r < 0 {
		r = 0
	}
	return r, true
}

// Reset forgets the state of one counter.
func (c *Calculator) Reset(key string) {
	c.mu.Lock()
	delete(c.state, key)
	c.mu.Unlock()
}

// ResetAll forgets every counter.
func (c *Calculator) ResetAll() {
	c.mu.Lock()
	c.state = make(map[string]sample)
	c.mu.Unlock()
}

// Tracked reports whether key has a stored observation.
func (c *Calculator) Tracked(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.state[key]
	return ok
}

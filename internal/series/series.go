// Package series holds the bounded time series plotted by the console.
//
// Every series is a fixed window of (label, value) samples. Pushing beyond the
// window evicts the oldest sample. Subscribers are notified after every push
// and every reset with a copy of the affected series.
package series

import (
	"sort"
	"sync"

	"github.com/yzsind/dbbench/internal/ringbuffer"
	"github.com/yzsind/dbbench/pkg/types"
)

// DefaultCapacity is the number of samples kept per series.
const DefaultCapacity = 60

// Listener receives a series name and a copy of its contents.
type Listener func(series string, points []types.ChannelSample)

// Buffer is a set of named, capacity-bounded series.
type Buffer struct {
	mu        sync.Mutex
	capacity  int
	series    map[string]*ringbuffer.Buffer[types.ChannelSample]
	listeners []Listener
}

// New creates a Buffer. A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string]*ringbuffer.Buffer[types.ChannelSample]),
	}
}

// Capacity returns the per-series window size.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Subscribe registers a listener for every subsequent mutation.
func (b *Buffer) Subscribe(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Push appends a sample to the named series, creating it on first use.
func (b *Buffer) Push(name, label string, value float64) {
	b.mu.Lock()
	rb, ok := b.series[name]
	if !ok {
		rb = ringbuffer.New[types.ChannelSample](b.capacity)
		b.series[name] = rb
	}
	rb.Append(types.ChannelSample{Label: label, Value: value})
	points := rb.Items()
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, name, points)
}

// Snapshot returns the current contents of a series, oldest first.
func (b *Buffer) Snapshot(name string) []types.ChannelSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	rb, ok := b.series[name]
	if !ok {
		return []types.ChannelSample{}
	}
	return rb.Items()
}

// Latest returns the newest sample of a series.
func (b *Buffer) Latest(name string) (types.ChannelSample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rb, ok := b.series[name]
	if !ok || rb.Len() == 0 {
		return types.ChannelSample{}, false
	}
	return rb.Last(1)[0], true
}

// Reset clears a series.
func (b *Buffer) Reset(name string) {
	b.mu.Lock()
	if rb, ok := b.series[name]; ok {
		rb.Clear()
	}
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, name, []types.ChannelSample{})
}

// Replace swaps the contents of a series for points, keeping only the
// newest samples that fit the window. Listeners are notified once.
func (b *Buffer) Replace(name string, points []types.ChannelSample) {
	b.mu.Lock()
	rb, ok := b.series[name]
	if !ok {
		rb = ringbuffer.New[types.ChannelSample](b.capacity)
		b.series[name] = rb
	}
	rb.Replace(points)
	items := rb.Items()
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, name, items)
}

// ResetAll clears the given series, or every known series when none is given.
func (b *Buffer) ResetAll(names ...string) {
	if len(names) == 0 {
		names = b.Names()
	}
	for _, name := range names {
		b.Reset(name)
	}
}

// Names returns the known series keys in sorted order.
func (b *Buffer) Names() []string {
	b.mu.Lock()
	names := make([]string, 0, len(b.series))
	for name := range b.series {
		names = append(names, name)
	}
	b.mu.Unlock()
	sort.Strings(names)
	return names
}

func notify(listeners []Listener, name string, points []types.ChannelSample) {
	for _, l := range listeners {
		cp := make([]types.ChannelSample, len(points))
		copy(cp, points)
		l(name, cp)
	}
}

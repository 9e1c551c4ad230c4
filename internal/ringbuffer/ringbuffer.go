// Package ringbuffer provides a fixed-capacity FIFO buffer.
package ringbuffer

// Buffer retains at most cap items. When the cap is exceeded the oldest item
// is overwritten.
//
// It is not safe for concurrent use without external synchronization.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New constructs a Buffer retaining at most cap items.
// If cap <= 0, the buffer will retain zero items.
func New[T any](cap int) *Buffer[T] {
	if cap < 0 {
		cap = 0
	}
	return &Buffer[T]{items: make([]T, cap)}
}

// Append adds an item, evicting the oldest one when full.
func (b *Buffer[T]) Append(item T) {
	if b == nil || len(b.items) == 0 {
		return
	}
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = item
		b.size++
		return
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
}

// Items returns a copy of the current contents, oldest first.
func (b *Buffer[T]) Items() []T {
	if b == nil {
		return nil
	}
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last returns up to n of the newest items, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	if b == nil || n <= 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}
	out := make([]T, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+start+i)%len(b.items)]
	}
	return out
}

// Replace clears the buffer and appends items in order, so only the newest
// cap of them survive.
func (b *Buffer[T]) Replace(items []T) {
	if b == nil {
		return
	}
	b.Clear()
	if len(items) > len(b.items) {
		items = items[len(items)-len(b.items):]
	}
	for _, item := range items {
		b.Append(item)
	}
}

// Clear removes all items.
func (b *Buffer[T]) Clear() {
	if b == nil {
		return
	}
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

// Len returns the current number of stored items.
func (b *Buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Cap returns the configured capacity.
func (b *Buffer[T]) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

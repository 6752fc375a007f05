// Package ringbuf provides a fixed-capacity buffer that keeps the newest items.
package ringbuf

// Ring holds at most Cap items; pushing onto a full ring overwrites the oldest.
// A Ring is not safe for concurrent use; owners guard it with their own lock.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
}

// New creates a ring with the given capacity. Capacities below 1 become 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
}

// Items returns a copy of the contents, oldest first
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Last returns the newest item
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head+r.size-1)%len(r.items)], true
}

// Len returns the number of stored items
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity
func (r *Ring[T]) Cap() int { return len(r.items) }

// Reset drops all items
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

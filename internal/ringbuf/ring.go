// Package ringbuf provides a fixed-capacity FIFO buffer that evicts its oldest entry on overflow.
package ringbuf

// Ring holds at most Cap() values. The zero value is not usable; use New.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// New creates a ring with the given capacity (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting and returning the oldest value when full.
func (r *Ring[T]) Push(v T) (evicted T, didEvict bool) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return evicted, false
	}

	evicted = r.items[r.start]
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return evicted, true
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// At returns the i-th value, oldest first.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ringbuf: index out of range")
	}
	return r.items[(r.start+i)%len(r.items)]
}

// Newest returns the most recently pushed value.
func (r *Ring[T]) Newest() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.At(r.size - 1), true
}

// Slice copies the contents, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Last copies up to n of the newest values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range out {
		out[i] = r.At(offset + i)
	}
	return out
}

// Do calls fn for each value, oldest first.
func (r *Ring[T]) Do(fn func(i int, v T)) {
	for i := 0; i < r.size; i++ {
		fn(i, r.At(i))
	}
}

// Reset empties the ring without changing its capacity.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start = 0
	r.size = 0
}

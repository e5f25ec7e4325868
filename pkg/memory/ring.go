package memory

// Ring is a fixed-capacity FIFO buffer. Once full, each Push overwrites the
// oldest slot. head always indexes the oldest item.
type Ring[T any] struct {
	buf  []T
	head int
	size int
}

// NewRing creates a ring holding at most capacity items. Capacities below one
// are raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// Push appends v. When the ring is full the oldest item is evicted and
// returned with ok set.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	capacity := len(r.buf)
	if r.size < capacity {
		r.buf[(r.head+r.size)%capacity] = v
		r.size++
		return evicted, false
	}

	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % capacity
	return evicted, true
}

// Oldest returns the oldest item without removing it.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[r.head], true
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

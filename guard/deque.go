package guard

// Ring is a fixed-capacity deque. Pushing onto a full ring evicts the oldest
// element. The zero value is unusable; create rings with NewRing.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// NewRing creates a ring holding at most capacity elements. A capacity below
// one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v as the newest element and reports whether an element was
// evicted to make room.
func (r *Ring[T]) Push(v T) (evicted bool) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = v
		r.size++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % capacity
	return true
}

// Items returns the retained elements from oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Clear drops every element.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Package buffer provides the bounded ring underlying the per-channel
// message and audit log stores and the per-pair direct message store.
package buffer

// Ring is a bounded FIFO. When full, Push drops the oldest entry. Ring is
// not synchronized; owners guard it with their store lock.
type Ring[T any] struct {
	data     []T
	capacity int
}

// New creates a Ring holding at most capacity entries.
func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends an entry, dropping the oldest when the ring is full.
func (r *Ring[T]) Push(item T) {
	if len(r.data) >= r.capacity {
		r.data = r.data[1:]
	}
	r.data = append(r.data, item)
}

// Len returns the current number of entries.
func (r *Ring[T]) Len() int {
	return len(r.data)
}

// Last returns up to n of the newest entries in insertion order, as a copy.
func (r *Ring[T]) Last(n int) []T {
	if n > len(r.data) {
		n = len(r.data)
	}
	out := make([]T, n)
	copy(out, r.data[len(r.data)-n:])
	return out
}

// Newest returns up to n of the newest entries, newest first, as a copy.
func (r *Ring[T]) Newest(n int) []T {
	if n > len(r.data) {
		n = len(r.data)
	}
	out := make([]T, 0, n)
	for i := len(r.data) - 1; i >= len(r.data)-n; i-- {
		out = append(out, r.data[i])
	}
	return out
}

// Each visits entries oldest to newest, stopping when fn returns false.
// The pointer stays valid only for the duration of the call.
func (r *Ring[T]) Each(fn func(*T) bool) {
	for i := range r.data {
		if !fn(&r.data[i]) {
			return
		}
	}
}

// RemoveFirst deletes the first entry matched by fn and reports whether a
// match was found.
func (r *Ring[T]) RemoveFirst(match func(T) bool) bool {
	for i := range r.data {
		if match(r.data[i]) {
			r.data = append(r.data[:i], r.data[i+1:]...)
			return true
		}
	}
	return false
}

package capability

import (
	"sync"
	"sync/atomic"
)

// Destroyer is implemented by objects that release resources when their last
// handle goes away.
type Destroyer interface {
	Destroy()
}

// refs is the shared reference count behind a family of handle aliases.
type refs struct {
	count   atomic.Int64
	object  any
	destroy sync.Once
}

func (r *refs) acquire() bool {
	for {
		n := r.count.Load()
		if n <= 0 {
			return false
		}
		if r.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *refs) release() {
	if r.count.Add(-1) != 0 {
		return
	}
	r.destroy.Do(func() {
		if d, ok := r.object.(Destroyer); ok {
			d.Destroy()
		}
	})
}

// Handle is an owning, reference-counted reference to an object typed as T.
// The zero Handle is absent.
type Handle[T any] struct {
	value T
	rc    *refs
}

// New takes ownership of obj and returns its first handle.
func New[T any](obj T) Handle[T] {
	rc := &refs{object: obj}
	rc.count.Store(1)
	return Handle[T]{value: obj, rc: rc}
}

// Get returns the referenced object, or the zero T for an absent handle.
func (h Handle[T]) Get() T {
	return h.value
}

// Valid reports whether the handle references an object.
func (h Handle[T]) Valid() bool {
	return h.rc != nil
}

// Clone returns a new owning handle to the same object.
func (h Handle[T]) Clone() Handle[T] {
	if h.rc == nil || !h.rc.acquire() {
		return Handle[T]{}
	}
	return h
}

// Release drops this handle's reference and clears it. Releasing an absent
// handle does nothing.
func (h *Handle[T]) Release() {
	if h.rc == nil {
		return
	}
	rc := h.rc
	*h = Handle[T]{}
	rc.release()
}

// Weak returns a non-owning reference to the object.
func (h Handle[T]) Weak() Weak[T] {
	return Weak[T]{value: h.value, rc: h.rc}
}

// Any returns an owning handle to the same object typed as any.
func (h Handle[T]) Any() Handle[any] {
	if h.rc == nil || !h.rc.acquire() {
		return Handle[any]{}
	}
	return Handle[any]{value: h.value, rc: h.rc}
}

// Identity returns the object the handle family was created for. Two handles
// refer to the same component exactly when their identities are equal.
func (h Handle[T]) Identity() any {
	if h.rc == nil {
		return nil
	}
	return h.rc.object
}

// Refs returns the current reference count shared by all aliases.
func (h Handle[T]) Refs() int64 {
	if h.rc == nil {
		return 0
	}
	return h.rc.count.Load()
}

// QueryHandle resolves capability U on the object behind h and returns an
// owning alias that shares h's reference count.
func QueryHandle[U, T any](h Handle[T]) (Handle[U], bool) {
	if h.rc == nil {
		return Handle[U]{}, false
	}
	u, ok := Query[U](h.value)
	if !ok || !h.rc.acquire() {
		return Handle[U]{}, false
	}
	return Handle[U]{value: u, rc: h.rc}, true
}

// Weak is a non-owning reference. It never keeps its object alive; once the
// object has been destroyed Lock reports absent.
type Weak[T any] struct {
	value T
	rc    *refs
}

// Lock returns an owning handle when the object is still alive.
func (w Weak[T]) Lock() (Handle[T], bool) {
	if w.rc == nil || !w.rc.acquire() {
		return Handle[T]{}, false
	}
	return Handle[T]{value: w.value, rc: w.rc}, true
}

// Expired reports whether the object is gone or the reference is absent.
func (w Weak[T]) Expired() bool {
	return w.rc == nil || w.rc.count.Load() <= 0
}

// Any returns the same weak reference typed as any.
func (w Weak[T]) Any() Weak[any] {
	return Weak[any]{value: w.value, rc: w.rc}
}

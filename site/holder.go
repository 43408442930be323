package site

import (
	"fmt"
	"sync"

	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// ObjectWithSite is implemented by components that accept a site.
type ObjectWithSite interface {
	SetSite(site capability.Weak[any]) error
}

var ObjectWithSiteName = capability.Define[ObjectWithSite]("ObjectWithSite")

// Holder keeps a weak reference to a site that supports capability T. Embed
// it and register hooks with OnSite.
type Holder[T any] struct {
	setMu sync.Mutex

	mu   sync.RWMutex
	site capability.Weak[any]
	held bool

	init func(site T)
	term func()
}

// OnSite registers the hooks run when a site is installed and removed.
// Either may be nil.
func (h *Holder[T]) OnSite(init func(site T), term func()) {
	h.setMu.Lock()
	defer h.setMu.Unlock()
	h.init = init
	h.term = term
}

// SetSite replaces the current site. A site that does not support T is a
// usage fault and leaves the holder unchanged. When a site is held, Term runs
// and the reference is cleared before the new site is installed and Init
// runs. An absent or already destroyed site only clears.
func (h *Holder[T]) SetSite(site capability.Weak[any]) error {
	h.setMu.Lock()
	defer h.setMu.Unlock()

	next, alive := site.Lock()
	defer next.Release()

	var typed T
	if alive {
		t, ok := capability.Query[T](next.Get())
		if !ok {
			return errors.WrapInvalid(errors.ErrSiteMismatch, "Site", "SetSite",
				fmt.Sprintf("query %s on %T", capability.NameOf[T](), next.Get()))
		}
		typed = t
	}

	h.mu.RLock()
	held := h.held
	h.mu.RUnlock()

	if held {
		if h.term != nil {
			h.term()
		}
		h.mu.Lock()
		h.site = capability.Weak[any]{}
		h.held = false
		h.mu.Unlock()
	}

	if !alive {
		return nil
	}

	h.mu.Lock()
	h.site = site
	h.held = true
	h.mu.Unlock()

	if h.init != nil {
		h.init(typed)
	}
	return nil
}

// Site resolves the current site as T. The returned handle must be released.
// A site that was destroyed resolves to absent.
func (h *Holder[T]) Site() (capability.Handle[T], bool) {
	h.mu.RLock()
	w := h.site
	h.mu.RUnlock()

	s, ok := w.Lock()
	if !ok {
		return capability.Handle[T]{}, false
	}
	defer s.Release()
	return capability.QueryHandle[T](s)
}

// SiteObject resolves the current site without narrowing it.
func (h *Holder[T]) SiteObject() (capability.Handle[any], bool) {
	h.mu.RLock()
	w := h.site
	h.mu.RUnlock()
	return w.Lock()
}

// HasSite reports whether a live site is held.
func (h *Holder[T]) HasSite() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.held && !h.site.Expired()
}

// InvokeOnSite calls fn with the site when it resolves and reports whether it
// did.
func (h *Holder[T]) InvokeOnSite(fn func(site T)) bool {
	s, ok := h.Site()
	if !ok {
		return false
	}
	defer s.Release()
	fn(s.Get())
	return true
}

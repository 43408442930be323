package site

import (
	"fmt"
	"slices"
	"sync"

	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// ServiceProvider looks up ambient services by name. Unknown names are
// absent. The returned handle is owned by the caller.
type ServiceProvider interface {
	QueryService(name capability.Name) (capability.Handle[any], bool)
}

// ServiceRegistrar is a ServiceProvider that accepts registrations.
type ServiceRegistrar interface {
	ServiceProvider
	AddService(name capability.Name, service capability.Handle[any])
}

var (
	ServiceProviderName  = capability.Define[ServiceProvider]("ServiceProvider")
	ServiceRegistrarName = capability.Define[ServiceRegistrar]("ServiceRegistrar")
)

// ServiceRegistry maps service names to handles on behalf of a host object.
// It owns one reference to every registered handle.
type ServiceRegistry struct {
	services map[capability.Name]capability.Handle[any]
	parent   capability.Weak[any]
	closed   bool
	mu       sync.RWMutex
}

// NewServiceRegistry creates an empty registry with no parent.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[capability.Name]capability.Handle[any]),
	}
}

// SetParent makes lookups that miss locally fall through to parent's
// ServiceProvider capability. An absent or expired parent ends the lookup.
func (r *ServiceRegistry) SetParent(parent capability.Weak[any]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parent = parent
}

// AddService registers service under name, taking its own reference.
// Re-adding a name replaces the entry and releases the previous handle.
func (r *ServiceRegistry) AddService(name capability.Name, service capability.Handle[any]) {
	h := service.Clone()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		h.Release()
		return
	}
	old, replaced := r.services[name]
	r.services[name] = h
	r.mu.Unlock()

	if replaced {
		old.Release()
	}
}

// RemoveService drops name from the registry.
func (r *ServiceRegistry) RemoveService(name capability.Name) bool {
	r.mu.Lock()
	old, ok := r.services[name]
	delete(r.services, name)
	r.mu.Unlock()

	if ok {
		old.Release()
	}
	return ok
}

// QueryService returns a new reference to the service registered under name,
// consulting the parent provider on a local miss. A parent chain that leads
// back to a registry already consulted ends the lookup as absent.
func (r *ServiceRegistry) QueryService(name capability.Name) (capability.Handle[any], bool) {
	return r.lookup(name, make(map[*ServiceRegistry]struct{}))
}

func (r *ServiceRegistry) lookup(name capability.Name, visited map[*ServiceRegistry]struct{}) (capability.Handle[any], bool) {
	if _, seen := visited[r]; seen {
		return capability.Handle[any]{}, false
	}
	visited[r] = struct{}{}

	r.mu.RLock()
	h, ok := r.services[name]
	if ok {
		h = h.Clone()
	}
	parent := r.parent
	r.mu.RUnlock()

	if ok {
		return h, h.Valid()
	}

	p, alive := parent.Lock()
	if !alive {
		return capability.Handle[any]{}, false
	}
	defer p.Release()

	sp, supported := capability.Query[ServiceProvider](p.Get())
	if !supported {
		return capability.Handle[any]{}, false
	}
	if next, isRegistry := sp.(*ServiceRegistry); isRegistry {
		return next.lookup(name, visited)
	}
	return sp.QueryService(name)
}

// Services returns the locally registered names in sorted order.
func (r *ServiceRegistry) Services() []capability.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]capability.Name, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close releases every registered handle. Later additions are released
// immediately.
func (r *ServiceRegistry) Close() {
	r.mu.Lock()
	services := r.services
	r.services = make(map[capability.Name]capability.Handle[any])
	r.closed = true
	r.mu.Unlock()

	for _, h := range services {
		h.Release()
	}
}

// Destroy closes the registry when its last handle is released.
func (r *ServiceRegistry) Destroy() {
	r.Close()
}

// QueryCapability implements capability.Object.
func (r *ServiceRegistry) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[ServiceProvider](r),
		capability.Of[ServiceRegistrar](r),
		capability.Of[capability.Object](r),
	)
}

// QueryService resolves a service registered under capability T's name and
// returns it typed as T.
func QueryService[T any](sp ServiceProvider) (capability.Handle[T], bool) {
	if sp == nil {
		return capability.Handle[T]{}, false
	}
	h, ok := sp.QueryService(capability.NameOf[T]())
	if !ok {
		return capability.Handle[T]{}, false
	}
	defer h.Release()
	return capability.QueryHandle[T](h)
}

// AddService registers h under capability T's name.
func AddService[T any](r ServiceRegistrar, h capability.Handle[T]) error {
	if !h.Valid() {
		return errors.WrapInvalid(errors.ErrNilArgument, "site", "AddService",
			fmt.Sprintf("register %s", capability.NameOf[T]()))
	}
	ah := h.Any()
	defer ah.Release()
	r.AddService(capability.NameOf[T](), ah)
	return nil
}

// ServiceFrom resolves service T through obj's ServiceProvider capability.
func ServiceFrom[T any](obj any) (capability.Handle[T], bool) {
	sp, ok := capability.Query[ServiceProvider](obj)
	if !ok {
		return capability.Handle[T]{}, false
	}
	return QueryService[T](sp)
}

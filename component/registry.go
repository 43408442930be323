package component

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// Component types used in registrations
const (
	TypeSource    = "source"
	TypePump      = "pump"
	TypeProcessor = "processor"
	TypeHost      = "host"
)

// Info holds metadata about an available component type
type Info struct {
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Capabilities []capability.Name `json:"capabilities"`
}

// Factory creates a component instance. It receives raw JSON configuration
// (possibly empty) and dependencies, and must not perform I/O.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (any, error)

// Registration holds factory and metadata for a component type
type Registration struct {
	Name         string            `json:"name"`         // Factory name (e.g., "audio-pump")
	Type         string            `json:"type"`         // Component type (source/pump/processor/host)
	Description  string            `json:"description"`  // Human-readable description
	Version      string            `json:"version"`      // Component version
	Capabilities []capability.Name `json:"capabilities"` // Declared capabilities, for discovery
	Factory      Factory           `json:"-"`            // Factory function (not serializable)
}

// RegistrationConfig mirrors Registration for RegisterWithConfig.
type RegistrationConfig struct {
	Name         string
	Factory      Factory
	Type         string
	Description  string
	Version      string
	Capabilities []capability.Name
}

// ObjectFactory creates components by logical name. Absence is reported with
// false; the returned handle is owned by the caller.
type ObjectFactory interface {
	CreateObject(name string, rawConfig json.RawMessage) (capability.Handle[any], bool)
}

var ObjectFactoryName = capability.Define[ObjectFactory]("ObjectFactory")

// Registry manages component factories. It is safe for concurrent use.
type Registry struct {
	factories map[string]*Registration
	deps      Dependencies
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry. deps is handed to
// every factory, with Factory set to the registry itself.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{
		factories: make(map[string]*Registration),
		deps:      deps,
		logger:    deps.GetLoggerWithComponent("component-registry"),
	}
	r.deps.Factory = r
	return r
}

// RegisterFactory registers a component factory with the given name
// Returns an invalid error if the registration is incomplete or the name is taken.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if err := ValidateComponentName(name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}
	if registration.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	reg := *registration
	reg.Name = name
	reg.Capabilities = slices.Clone(registration.Capabilities)
	r.factories[name] = &reg
	return nil
}

// RegisterWithConfig registers a component using a RegistrationConfig.
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:         config.Name,
		Type:         config.Type,
		Description:  config.Description,
		Version:      config.Version,
		Capabilities: config.Capabilities,
		Factory:      config.Factory,
	})
}

// CreateObject implements ObjectFactory. Unknown names, invalid configuration
// and factory failures are logged and reported as absent.
func (r *Registry) CreateObject(name string, rawConfig json.RawMessage) (capability.Handle[any], bool) {
	r.mu.RLock()
	registration, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("Unknown component factory", "factory", name)
		return capability.Handle[any]{}, false
	}

	if err := NewConfigValidator().ValidateConfig(rawConfig); err != nil {
		r.logger.Warn("Rejected component config", "factory", name, "error", err)
		return capability.Handle[any]{}, false
	}

	obj, err := registration.Factory(rawConfig, r.deps)
	if err != nil {
		r.logger.Warn("Component factory failed", "factory", name, "error", err)
		return capability.Handle[any]{}, false
	}
	if obj == nil {
		return capability.Handle[any]{}, false
	}
	return capability.New[any](obj), true
}

// Registration returns a copy of the registration for name.
func (r *Registry) Registration(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[name]
	if !ok {
		return Registration{}, false
	}
	out := *reg
	out.Capabilities = slices.Clone(reg.Capabilities)
	return out, true
}

// ListComponentTypes returns the registered factory names in sorted order.
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// ListFactories returns a copy of all registrations
func (r *Registry) ListFactories() map[string]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Registration, len(r.factories))
	for name, reg := range r.factories {
		cp := *reg
		cp.Capabilities = slices.Clone(reg.Capabilities)
		out[name] = &cp
	}
	return out
}

// ListAvailable returns discovery information for every registered factory.
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		out[name] = Info{
			Type:         reg.Type,
			Description:  reg.Description,
			Version:      reg.Version,
			Capabilities: slices.Clone(reg.Capabilities),
		}
	}
	return out
}

// QueryCapability implements capability.Object.
func (r *Registry) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[ObjectFactory](r),
		capability.Of[capability.Object](r),
	)
}

// CreateObject creates the component registered as name and returns it typed
// as capability T. The object is released if it does not support T.
func CreateObject[T any](f ObjectFactory, name string) (capability.Handle[T], bool) {
	return CreateObjectWithConfig[T](f, name, nil)
}

// CreateObjectWithConfig is CreateObject with factory configuration.
func CreateObjectWithConfig[T any](f ObjectFactory, name string, rawConfig json.RawMessage) (capability.Handle[T], bool) {
	if f == nil {
		return capability.Handle[T]{}, false
	}
	h, ok := f.CreateObject(name, rawConfig)
	if !ok {
		return capability.Handle[T]{}, false
	}
	defer h.Release()
	return capability.QueryHandle[T](h)
}

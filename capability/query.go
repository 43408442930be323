package capability

import (
	"github.com/c360/speechcore/errors"
)

// Object is implemented by components that answer capability queries by name.
// QueryCapability returns the component itself typed as the named capability,
// or false when the capability is not supported.
type Object interface {
	QueryCapability(name Name) (any, bool)
}

// ObjectName is the name of the Object capability itself.
var ObjectName = Define[Object]("Object")

// Entry is one row of a component's capability table.
type Entry struct {
	name  Name
	value any
}

// Of builds a table entry answering capability T with self.
func Of[T any](self T) Entry {
	return Entry{name: NameOf[T](), value: self}
}

// Lookup answers a name query from a capability table.
func Lookup(name Name, entries ...Entry) (any, bool) {
	for _, e := range entries {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// Query resolves capability T on obj. Absence is reported with false; it is an
// ordinary outcome. A declared capability for which the type assertion and the
// name lookup disagree is a consistency fault and panics.
func Query[T any](obj any) (T, bool) {
	var zero T
	if obj == nil {
		return zero, false
	}

	cast, castOK := obj.(T)

	o, isObject := obj.(Object)
	name, defined := nameOf[T]()
	if !isObject || name == ObjectName {
		return cast, castOK
	}

	var named T
	v, nameOK := o.QueryCapability(name)
	if nameOK {
		named, nameOK = v.(T)
		if !nameOK {
			errors.Fail("capability", "Query", "%T answered %q with %T", obj, name, v)
		}
	}

	switch {
	case castOK && nameOK:
		return cast, true
	case !castOK && !nameOK:
		return zero, false
	case defined:
		errors.Fail("capability", "Query",
			"type assertion (%t) and name lookup (%t) disagree for %q on %T", castOK, nameOK, name, obj)
	case castOK:
		return cast, true
	}
	return named, true
}

// Supports reports whether obj supports capability T.
func Supports[T any](obj any) bool {
	_, ok := Query[T](obj)
	return ok
}

package capability

import (
	"fmt"
	"reflect"
	"sync"
)

// Name identifies a capability independently of its Go type identity.
type Name string

var (
	namesMu  sync.RWMutex
	names    = make(map[reflect.Type]Name)
	declared = make(map[Name]reflect.Type)
)

// Define declares capability T under name and returns the name. Defining the
// same type twice with the same name is allowed; reusing a name for a different
// type, or renaming a type, panics at init time.
func Define[T any](name Name) Name {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("capability: %s is not an interface type", t))
	}
	if name == "" {
		panic(fmt.Sprintf("capability: empty name for %s", t))
	}

	namesMu.Lock()
	defer namesMu.Unlock()

	if existing, ok := names[t]; ok && existing != name {
		panic(fmt.Sprintf("capability: %s already defined as %q", t, existing))
	}
	if other, ok := declared[name]; ok && other != t {
		panic(fmt.Sprintf("capability: name %q already used by %s", name, other))
	}
	names[t] = name
	declared[name] = t
	return name
}

// NameOf returns the stable name of capability T.
func NameOf[T any]() Name {
	name, _ := nameOf[T]()
	return name
}

// IsDefined reports whether T was declared with Define.
func IsDefined[T any]() bool {
	_, ok := nameOf[T]()
	return ok
}

func nameOf[T any]() (Name, bool) {
	t := reflect.TypeFor[T]()

	namesMu.RLock()
	name, ok := names[t]
	namesMu.RUnlock()
	if ok {
		return name, true
	}

	if t.Name() == "" {
		return Name(t.String()), false
	}
	return Name(t.PkgPath() + "." + t.Name()), false
}

// Defined returns all declared capability names.
func Defined() []Name {
	namesMu.RLock()
	defer namesMu.RUnlock()

	out := make([]Name, 0, len(declared))
	for name := range declared {
		out = append(out, name)
	}
	return out
}

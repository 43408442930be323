// Package capability implements the capability-query object model: objects are
// asked by stable name whether they support a contract, without the caller
// knowing their concrete type.
//
// # Capability names
//
// Every capability is an interface type with a stable Name. Define registers the
// name a capability is known by; undeclared interfaces fall back to their package
// path and type name:
//
//	var AudioPumpName = capability.Define[AudioPump]("AudioPump")
//
// # Resolution
//
// Query resolves in two ways: a Go type assertion, and, when the object
// implements Object, a lookup by name that returns a re-typed alias of the same
// object. Components declare their table with Lookup and Of:
//
//	func (p *Pump) QueryCapability(name capability.Name) (any, bool) {
//	    return capability.Lookup(name,
//	        capability.Of[AudioPump](p),
//	        capability.Of[PumpInit](p),
//	    )
//	}
//
// For declared capabilities both paths must agree. When one succeeds and the
// other fails the object is broken and Query panics with *errors.ConsistencyFault.
//
// # Handles
//
// Handle is a reference-counted, typed view of an object. Aliases produced by
// QueryHandle share the counter of their source. When the last reference is
// released the object's Destroy hook runs once. Weak is a non-owning reference
// that resolves to absent once the object is destroyed; it is how a child
// refers to its site.
package capability

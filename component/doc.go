// Package component is the object factory of the speechcore runtime.
//
// Component implementations register a Factory under a logical name. Callers
// create instances by that name and receive them as reference-counted
// capability handles typed by the capability they asked for:
//
//	pump, ok := component.CreateObject[pump.AudioPump](registry, "audio-pump")
//	if !ok {
//	    // unknown name, factory failure or unsupported capability
//	}
//	defer pump.Release()
//
// Creation failure is an ordinary outcome reported with false, never an
// error. An object that was created but does not support the requested
// capability is released, which destroys it, before CreateObject returns.
//
// Registration metadata (type, description, declared capabilities) is kept
// for discovery through ListComponentTypes, Registration and ListAvailable.
// Factories receive Dependencies and an optional JSON configuration, which is
// validated with the same limits SafeUnmarshal enforces.
package component

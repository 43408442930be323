// Package site wires components to their owners.
//
// A component's site is the object that owns it, typically a session. The
// relation is weak: a component keeps a capability.Weak back-reference and
// resolves it on each use, so a destroyed site reads as absent rather than as
// an error, and no ownership cycle forms.
//
// Components embed Holder to implement ObjectWithSite. Holder enforces the
// rebind order: Term for the old site, clear, install the new site, then Init.
//
// Sites expose ambient services through ServiceProvider. ServiceRegistry is
// the standard implementation: a name-to-handle map that can delegate misses
// to a parent provider.
package site

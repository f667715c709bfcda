// Package typemeta caches reflective scans of types: the fields a struct
// declares (embedded structs included) and the methods a type exposes.
//
// Scans are keyed by [Descriptor] handles in weak caches from
// [github.com/dmitrymomot/weakref/pkg/refcache]. Descriptors are canonical,
// one per type while any is held, so a scan stays cached while the caller
// holds the descriptor of its type and goes away once it is dropped:
//
//	inspector := typemeta.NewInspector(refcache.WithLogger(log))
//
//	d := typemeta.Of[Order]()
//	fields, err := inspector.Fields(d)
//	m, ok, err := inspector.Method(d, "Total")
//
// The inspector is meant to be built once and passed around explicitly, or
// through a context with [NewContext] and [FromContext].
package typemeta

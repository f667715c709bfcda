package typemeta

import (
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/cespare/xxhash/v2"
)

// Descriptor is a handle on a type. Metadata caches key on descriptors, so
// dropping every descriptor of a type lets its cached metadata go.
//
// Descriptors are canonical: while one is alive, Describe and Of return that
// same pointer for its type. Pointer types are described by their element
// type.
type Descriptor struct {
	typ  reflect.Type
	hash uint64
}

// interned maps each type to its live descriptor without keeping it alive.
var interned = struct {
	m  map[reflect.Type]weak.Pointer[Descriptor]
	mu sync.Mutex
}{m: make(map[reflect.Type]weak.Pointer[Descriptor])}

type internSlot struct {
	typ reflect.Type
	ptr weak.Pointer[Descriptor]
}

// Describe returns the descriptor for t.
func Describe(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, ErrNilType
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	interned.mu.Lock()
	defer interned.mu.Unlock()

	if wp, ok := interned.m[t]; ok {
		if d := wp.Value(); d != nil {
			return d, nil
		}
	}

	d := &Descriptor{
		typ:  t,
		hash: xxhash.Sum64String(t.PkgPath() + "." + t.String()),
	}
	slot := internSlot{typ: t, ptr: weak.Make(d)}
	interned.m[t] = slot.ptr
	runtime.AddCleanup(d, forget, slot)
	return d, nil
}

// forget drops the slot unless a newer descriptor already replaced it.
func forget(slot internSlot) {
	interned.mu.Lock()
	defer interned.mu.Unlock()

	if interned.m[slot.typ] == slot.ptr {
		delete(interned.m, slot.typ)
	}
}

// Of returns the descriptor for T.
func Of[T any]() *Descriptor {
	d, _ := Describe(reflect.TypeFor[T]())
	return d
}

// Type returns the described type.
func (d *Descriptor) Type() reflect.Type { return d.typ }

// String returns the type name.
func (d *Descriptor) String() string { return d.typ.String() }

// Sum64 implements reference.Hasher.
func (d *Descriptor) Sum64() uint64 { return d.hash }

// Equal implements reference.Hasher.
func (d *Descriptor) Equal(o *Descriptor) bool {
	return o != nil && d.typ == o.typ
}

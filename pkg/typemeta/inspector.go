package typemeta

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/dmitrymomot/weakref/pkg/refcache"
)

// Inspector answers field and method queries for described types. Scans
// run once per type and are cached until its descriptor has been dropped.
// Hold the descriptor of a hot type; a descriptor created and dropped per
// call leaves the scan collectable after every call.
//
// Create one Inspector per process and pass it to the code that needs it,
// directly or through NewContext.
type Inspector struct {
	fields  *refcache.Cache[Descriptor, []reflect.StructField]
	methods *refcache.Cache[Descriptor, []reflect.Method]
}

// NewInspector creates an inspector backed by two weak caches configured
// with opts.
func NewInspector(opts ...refcache.Option) *Inspector {
	return &Inspector{
		fields:  refcache.NewWeak[Descriptor, []reflect.StructField](opts...),
		methods: refcache.NewWeak[Descriptor, []reflect.Method](opts...),
	}
}

// Fields returns every field of the struct, the fields of embedded structs
// included. Shallower fields come first; shadowed fields are kept, and each
// Index is the full path from the outer struct.
func (i *Inspector) Fields(d *Descriptor) ([]reflect.StructField, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	fields, err := i.fields.ComputeIfAbsent(d, scanFields)
	if err != nil {
		return nil, err
	}
	return slices.Clone(fields), nil
}

// FieldsFunc returns the fields, in Fields order, for which keep reports true.
//
// Example:
//
//	exported, err := inspector.FieldsFunc(d, func(f reflect.StructField) bool {
//	    return f.IsExported()
//	})
func (i *Inspector) FieldsFunc(d *Descriptor, keep func(reflect.StructField) bool) ([]reflect.StructField, error) {
	fields, err := i.cachedFields(d)
	if err != nil {
		return nil, err
	}
	var out []reflect.StructField
	for _, f := range fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Field returns the shallowest field with the given name.
func (i *Inspector) Field(d *Descriptor, name string) (reflect.StructField, bool, error) {
	fields, err := i.cachedFields(d)
	if err != nil {
		return reflect.StructField{}, false, err
	}
	for _, f := range fields {
		if f.Name == name {
			return f, true, nil
		}
	}
	return reflect.StructField{}, false, nil
}

// HasField reports whether the struct has a field with the given name.
func (i *Inspector) HasField(d *Descriptor, name string) (bool, error) {
	_, ok, err := i.Field(d, name)
	return ok, err
}

// FieldMap returns the fields by name. For shadowed names the shallowest
// field wins.
func (i *Inspector) FieldMap(d *Descriptor) (map[string]reflect.StructField, error) {
	fields, err := i.cachedFields(d)
	if err != nil {
		return nil, err
	}
	m := make(map[string]reflect.StructField, len(fields))
	for _, f := range fields {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = f
		}
	}
	return m, nil
}

// Methods returns the exported methods callable on a pointer to the type,
// sorted by name. Interface types report their own method set.
func (i *Inspector) Methods(d *Descriptor) ([]reflect.Method, error) {
	methods, err := i.cachedMethods(d)
	if err != nil {
		return nil, err
	}
	return slices.Clone(methods), nil
}

// MethodsFunc returns the methods, sorted by name, for which keep reports true.
func (i *Inspector) MethodsFunc(d *Descriptor, keep func(reflect.Method) bool) ([]reflect.Method, error) {
	methods, err := i.cachedMethods(d)
	if err != nil {
		return nil, err
	}
	var out []reflect.Method
	for _, m := range methods {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Method returns the method with the given name.
func (i *Inspector) Method(d *Descriptor, name string) (reflect.Method, bool, error) {
	return i.findMethod(d, func(m reflect.Method) bool { return m.Name == name })
}

// MethodFold is Method with case-insensitive name matching.
func (i *Inspector) MethodFold(d *Descriptor, name string) (reflect.Method, bool, error) {
	return i.findMethod(d, func(m reflect.Method) bool { return strings.EqualFold(m.Name, name) })
}

// MethodNames returns the sorted method names.
func (i *Inspector) MethodNames(d *Descriptor) ([]string, error) {
	methods, err := i.cachedMethods(d)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(methods))
	for n, m := range methods {
		names[n] = m.Name
	}
	return names, nil
}

// PurgeStale drops metadata of types whose descriptors were all reclaimed.
func (i *Inspector) PurgeStale() int {
	return i.fields.PurgeStale() + i.methods.PurgeStale()
}

// Size returns the number of cached field and method scans.
func (i *Inspector) Size() (fields, methods int) {
	return i.fields.Size(), i.methods.Size()
}

func (i *Inspector) cachedFields(d *Descriptor) ([]reflect.StructField, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	return i.fields.ComputeIfAbsent(d, scanFields)
}

func (i *Inspector) cachedMethods(d *Descriptor) ([]reflect.Method, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	return i.methods.ComputeIfAbsent(d, scanMethods)
}

func (i *Inspector) findMethod(d *Descriptor, match func(reflect.Method) bool) (reflect.Method, bool, error) {
	methods, err := i.cachedMethods(d)
	if err != nil {
		return reflect.Method{}, false, err
	}
	for _, m := range methods {
		if match(m) {
			return m, true, nil
		}
	}
	return reflect.Method{}, false, nil
}

// scanFields walks the struct breadth first so outer fields precede the
// fields promoted from embedded structs.
func scanFields(d *Descriptor) ([]reflect.StructField, error) {
	t := d.Type()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
	}

	type level struct {
		typ   reflect.Type
		index []int
	}
	var (
		out   []reflect.StructField
		queue = []level{{typ: t}}
		seen  = make(map[reflect.Type]bool)
	)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur.typ] {
			continue
		}
		seen[cur.typ] = true

		for n := range cur.typ.NumField() {
			f := cur.typ.Field(n)
			f.Index = append(slices.Clone(cur.index), n)
			out = append(out, f)

			if !f.Anonymous {
				continue
			}
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				queue = append(queue, level{typ: ft, index: f.Index})
			}
		}
	}
	return out, nil
}

func scanMethods(d *Descriptor) ([]reflect.Method, error) {
	t := d.Type()
	if t.Kind() != reflect.Interface {
		t = reflect.PointerTo(t)
	}
	methods := make([]reflect.Method, 0, t.NumMethod())
	for n := range t.NumMethod() {
		methods = append(methods, t.Method(n))
	}
	return methods, nil
}

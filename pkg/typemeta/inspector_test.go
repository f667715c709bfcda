package typemeta_test

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/weakref/pkg/typemeta"
)

type base struct {
	ID   int
	Name string
}

type audit struct {
	CreatedBy string
}

type order struct {
	base
	*audit
	Name  string
	Total float64
}

func (o order) Sum() float64 { return o.Total }

func (o *order) Reset() { o.Total = 0 }

// --- Descriptor ---

func TestDescribe(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil type", func(t *testing.T) {
		t.Parallel()

		_, err := typemeta.Describe(nil)
		require.ErrorIs(t, err, typemeta.ErrNilType)
	})

	t.Run("dereferences pointers", func(t *testing.T) {
		t.Parallel()

		d, err := typemeta.Describe(reflect.TypeFor[**order]())
		require.NoError(t, err)
		require.Equal(t, reflect.TypeFor[order](), d.Type())
		require.Equal(t, "typemeta_test.order", d.String())
	})

	t.Run("descriptors of one type are canonical", func(t *testing.T) {
		t.Parallel()

		a, b := typemeta.Of[order](), typemeta.Of[*order]()
		require.Same(t, a, b)
		assert.True(t, a.Equal(b))
		assert.Equal(t, a.Sum64(), b.Sum64())
		assert.False(t, a.Equal(typemeta.Of[base]()))
		assert.False(t, a.Equal(nil))
	})
}

// --- Fields ---

func TestInspector_Fields(t *testing.T) {
	t.Parallel()

	t.Run("lists outer fields before promoted ones", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		fields, err := i.Fields(typemeta.Of[order]())
		require.NoError(t, err)

		var names []string
		for _, f := range fields {
			names = append(names, f.Name)
		}
		require.Equal(t, []string{"base", "audit", "Name", "Total", "ID", "Name", "CreatedBy"}, names)
		require.Equal(t, []int{0, 0}, fields[4].Index)
		require.Equal(t, []int{1, 0}, fields[6].Index)
	})

	t.Run("rejects non-struct types without caching", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		_, err := i.Fields(typemeta.Of[int]())
		require.ErrorIs(t, err, typemeta.ErrNotStruct)

		fields, _ := i.Size()
		require.Zero(t, fields)
	})

	t.Run("rejects nil descriptor", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		_, err := i.Fields(nil)
		require.ErrorIs(t, err, typemeta.ErrNilDescriptor)
		_, _, err = i.Field(nil, "Name")
		require.ErrorIs(t, err, typemeta.ErrNilDescriptor)
		_, err = i.Methods(nil)
		require.ErrorIs(t, err, typemeta.ErrNilDescriptor)
	})

	t.Run("field lookup prefers shallowest", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		d := typemeta.Of[order]()

		f, ok, err := i.Field(d, "Name")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int{2}, f.Index)

		ok, err = i.HasField(d, "CreatedBy")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = i.HasField(d, "Missing")
		require.NoError(t, err)
		require.False(t, ok)

		m, err := i.FieldMap(d)
		require.NoError(t, err)
		require.Len(t, m, 6)
		require.Equal(t, []int{2}, m["Name"].Index)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		d := typemeta.Of[order]()

		fields, err := i.Fields(d)
		require.NoError(t, err)
		fields[0].Name = "mutated"

		again, err := i.Fields(d)
		require.NoError(t, err)
		require.Equal(t, "base", again[0].Name)
	})

	t.Run("equal descriptors share one scan", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		d1, d2 := typemeta.Of[order](), typemeta.Of[order]()
		_, err := i.Fields(d1)
		require.NoError(t, err)
		_, err = i.Fields(d2)
		require.NoError(t, err)

		fields, _ := i.Size()
		require.Equal(t, 1, fields)
		runtime.KeepAlive(d1)
	})

	t.Run("filters with a predicate", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		d := typemeta.Of[order]()

		exported, err := i.FieldsFunc(d, func(f reflect.StructField) bool { return f.IsExported() })
		require.NoError(t, err)
		var names []string
		for _, f := range exported {
			names = append(names, f.Name)
		}
		require.Equal(t, []string{"Name", "Total", "ID", "Name", "CreatedBy"}, names)

		_, err = i.FieldsFunc(typemeta.Of[int](), func(reflect.StructField) bool { return true })
		require.ErrorIs(t, err, typemeta.ErrNotStruct)
	})
}

// --- Methods ---

func TestInspector_Methods(t *testing.T) {
	t.Parallel()

	t.Run("includes pointer receivers", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		names, err := i.MethodNames(typemeta.Of[order]())
		require.NoError(t, err)
		require.Equal(t, []string{"Reset", "Sum"}, names)
	})

	t.Run("interfaces report their own methods", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		methods, err := i.Methods(typemeta.Of[fmt.Stringer]())
		require.NoError(t, err)
		require.Len(t, methods, 1)
		require.Equal(t, "String", methods[0].Name)
	})

	t.Run("lookup by name", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		d := typemeta.Of[order]()

		m, ok, err := i.Method(d, "Sum")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Sum", m.Name)

		_, ok, err = i.Method(d, "sum")
		require.NoError(t, err)
		require.False(t, ok)

		m, ok, err = i.MethodFold(d, "reset")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Reset", m.Name)
	})

	t.Run("filters with a predicate", func(t *testing.T) {
		t.Parallel()

		i := typemeta.NewInspector()
		methods, err := i.MethodsFunc(typemeta.Of[order](), func(m reflect.Method) bool {
			return m.Name != "Reset"
		})
		require.NoError(t, err)
		require.Len(t, methods, 1)
		require.Equal(t, "Sum", methods[0].Name)
	})
}

// --- Lifetime ---

func TestInspector_Reclamation(t *testing.T) {
	t.Parallel()

	type receipt struct {
		Total float64
	}

	i := typemeta.NewInspector()
	func() {
		d := typemeta.Of[receipt]()
		_, err := i.Fields(d)
		require.NoError(t, err)
		_, err = i.Methods(d)
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		i.PurgeStale()
		fields, methods := i.Size()
		return fields == 0 && methods == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInspector_DescriptorLifetime(t *testing.T) {
	t.Parallel()

	type ledger struct {
		Account string
		Amount  int64
	}

	i := typemeta.NewInspector()
	var kept *typemeta.Descriptor
	func() {
		first := typemeta.Of[ledger]()
		_, err := i.Fields(first)
		require.NoError(t, err)
		kept = typemeta.Of[ledger]()
	}()

	for range 3 {
		runtime.GC()
	}
	time.Sleep(20 * time.Millisecond)
	i.PurgeStale()

	fields, _ := i.Size()
	require.Equal(t, 1, fields, "scan stays cached while an equal descriptor is held")
	require.Same(t, kept, typemeta.Of[ledger]())

	kept = nil
	require.Eventually(t, func() bool {
		runtime.GC()
		i.PurgeStale()
		fields, _ := i.Size()
		return fields == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInspector_Concurrent(t *testing.T) {
	t.Parallel()

	i := typemeta.NewInspector()
	anchor := typemeta.Of[order]()
	_, err := i.Fields(anchor)
	require.NoError(t, err)

	var g errgroup.Group
	for range 32 {
		g.Go(func() error {
			fields, err := i.Fields(typemeta.Of[order]())
			if err != nil {
				return err
			}
			if len(fields) != 7 {
				return fmt.Errorf("got %d fields", len(fields))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	fields, _ := i.Size()
	require.Equal(t, 1, fields)
	runtime.KeepAlive(anchor)
}

// --- Context ---

func TestContext(t *testing.T) {
	t.Parallel()

	_, ok := typemeta.FromContext(context.Background())
	require.False(t, ok)

	i := typemeta.NewInspector()
	got, ok := typemeta.FromContext(typemeta.NewContext(context.Background(), i))
	require.True(t, ok)
	require.Same(t, i, got)
}

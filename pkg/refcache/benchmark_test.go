package refcache_test

import (
	"runtime"
	"strconv"
	"testing"

	"github.com/dmitrymomot/weakref/pkg/refcache"
)

func BenchmarkCache_GetHit(b *testing.B) {
	c := refcache.NewWeak[key, int]()
	k := &key{name: "hit"}
	_ = c.Put(k, 1)

	for b.Loop() {
		_, _ = c.Get(k)
	}
	runtime.KeepAlive(k)
}

func BenchmarkCache_ComputeIfAbsentParallel(b *testing.B) {
	c := refcache.NewWeak[key, int]()
	keys := make([]*key, 64)
	for i := range keys {
		keys[i] = &key{name: strconv.Itoa(i)}
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.ComputeIfAbsent(keys[i%len(keys)], func(k *key) (int, error) {
				return len(k.name), nil
			})
			i++
		}
	})
	runtime.KeepAlive(keys)
}

func BenchmarkCache_PutChurn(b *testing.B) {
	c := refcache.NewWeak[handle, int]()

	for b.Loop() {
		_ = c.Put(&handle{name: "churn"}, 1)
	}
	c.PurgeStale()
}

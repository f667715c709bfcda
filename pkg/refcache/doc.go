// Package refcache provides a concurrent cache whose entries live exactly as
// long as their keys are reachable from outside the cache.
//
// Keys are pointers wrapped in [reference.Ref] values. When the garbage
// collector reclaims a key, the runtime reports the reference through a
// [reference.Channel] and the cache drops the entry. The cache never keeps
// a key alive by itself (soft caches excepted, until memory gets tight).
//
// # Constructors
//
//   - [New]: any [reference.Policy], private reclamation channel
//   - [NewWithChannel]: any policy, shared reclamation channel
//   - [NewWeak]: the Weak policy, the usual choice for metadata caches
//
// # Operations
//
//   - Get(key) (V, bool): read a published value
//   - Put(key, value) error: install a value, replacing an equal live key
//   - PutIfAbsent(key, value) (V, bool, error): install unless present
//   - ComputeIfAbsent(key, fn) (V, error): compute once per live key
//   - Remove(key) (V, bool): delete an entry
//   - Size() int: published entries, reclaimed-but-unpurged included
//   - PurgeStale() int: drop entries whose keys were reclaimed
//   - Range, Keys, Clear, Stats
//   - Close(): leave a shared reclamation channel
//
// # Compute Once
//
// ComputeIfAbsent installs a placeholder for the key inside the shard
// critical section before calling the supplier. Concurrent callers for an
// equal key find the placeholder and wait for its result instead of
// computing again:
//
//	fields := refcache.NewWeak[Descriptor, []reflect.StructField]()
//
//	list, err := fields.ComputeIfAbsent(desc, func(d *Descriptor) ([]reflect.StructField, error) {
//	    return scan(d.Type())
//	})
//
// A supplier error is returned unchanged and leaves nothing cached, so the
// next call retries. The supplier must not compute the same key again
// through the cache; that call would wait on itself. Values must not point
// back at their key, or the key stays reachable through the cache and is
// never reclaimed.
//
// # Key Equality
//
// Keys compare by pointer identity. Key types whose pointer implements
// [reference.Hasher] compare structurally while alive, so two distinct but
// equal keys share one entry:
//
//	func (d *Descriptor) Sum64() uint64             { return d.hash }
//	func (d *Descriptor) Equal(o *Descriptor) bool { return d.typ == o.typ }
//
// A reclaimed key never matches a fresh equal key: the fresh key gets a new
// entry and the stale one is removed by identity of its reference.
//
// # Purging
//
// Purging runs every 64 operations by default ([WithPurgeInterval]) and on
// demand through PurgeStale. Lookups also skip and drop entries whose key
// is already gone, so a reclaimed key reads as absent before it is purged.
//
// # Error Handling
//
//   - [ErrNilKey]: nil key passed to Put, PutIfAbsent or ComputeIfAbsent
//   - [ErrNilSupplier]: nil function passed to ComputeIfAbsent
//   - [ErrInvalidPolicy]: unknown policy passed to New
//
// Use [errors.Is] to check.
package refcache

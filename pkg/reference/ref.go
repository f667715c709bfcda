package reference

import (
	"fmt"
	"hash/maphash"
	"runtime"
	"sync/atomic"
	"time"
	"weak"
)

// Hasher is implemented by key pointer types that compare structurally
// instead of by identity. Equal keys must return the same Sum64.
type Hasher[K any] interface {
	Sum64() uint64
	Equal(other *K) bool
}

var identitySeed = maphash.MakeSeed()

// HashOf returns the hash a reference of the given policy captures for key.
// Phantom references always hash by identity because structural equality
// would need the referent.
func HashOf[K any](policy Policy, key *K) uint64 {
	if policy != Phantom {
		if h, ok := any(key).(Hasher[K]); ok {
			return h.Sum64()
		}
	}
	return maphash.Comparable(identitySeed, key)
}

func equalKeys[K any](policy Policy, a, b *K) bool {
	if a == b {
		return true
	}
	if policy == Phantom {
		return false
	}
	if h, ok := any(a).(Hasher[K]); ok {
		return h.Equal(b)
	}
	return false
}

// Ref tracks a single key without keeping it alive (soft references keep
// it alive until their pin is released). The hash is frozen at wrap time
// so the reference stays locatable after the key is gone.
type Ref[K any] struct {
	ptr     weak.Pointer[K]
	pin     atomic.Pointer[K]
	cleanup runtime.Cleanup
	hash    uint64
	lastUse atomic.Int64
	sub     Subscription
	cleared atomic.Bool
	policy  Policy
	tracked bool
}

// Make wraps key with the given policy. When ch is non-nil the reference is
// delivered to ch under sub once the key has been reclaimed.
//
// Values stored next to the reference must not point back at the key,
// otherwise the key stays reachable and is never reclaimed.
func Make[K any](key *K, policy Policy, ch *Channel[K], sub Subscription) (*Ref[K], error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, policy)
	}

	r := &Ref[K]{
		ptr:    weak.Make(key),
		hash:   HashOf(policy, key),
		sub:    sub,
		policy: policy,
	}
	r.lastUse.Store(time.Now().UnixNano())
	if policy == Soft {
		r.pin.Store(key)
	}
	if ch != nil {
		r.cleanup = runtime.AddCleanup(key, ch.deliver, r)
		r.tracked = true
	}
	return r, nil
}

// Policy returns the reclamation policy of the reference.
func (r *Ref[K]) Policy() Policy { return r.policy }

// Hash returns the hash captured at wrap time.
func (r *Ref[K]) Hash() uint64 { return r.hash }

// Subscription returns the channel subscription the reference reports to.
func (r *Ref[K]) Subscription() Subscription { return r.sub }

// Get returns the key while it is alive. Phantom references never return it.
func (r *Ref[K]) Get() (*K, bool) {
	if !r.policy.Readable() {
		return nil, false
	}
	k := r.ptr.Value()
	if k == nil {
		return nil, false
	}
	r.Touch()
	return k, true
}

// Reclaimed reports whether the key has been collected.
func (r *Ref[K]) Reclaimed() bool {
	return r.cleared.Load() || r.ptr.Value() == nil
}

// Refers reports whether the live key of r equals k.
func (r *Ref[K]) Refers(k *K) bool {
	if k == nil {
		return false
	}
	if r.policy == Phantom {
		// k is held by the caller, so a matching handle is necessarily live.
		return r.ptr == weak.Make(k)
	}
	cur := r.ptr.Value()
	if cur == nil {
		return false
	}
	return equalKeys(r.policy, cur, k)
}

// Equal reports whether r and o denote the same key. A reclaimed reference
// is equal only to itself.
func (r *Ref[K]) Equal(o *Ref[K]) bool {
	if r == o {
		return true
	}
	if o == nil || r.hash != o.hash || r.policy != o.policy {
		return false
	}
	if r.policy == Phantom {
		return r.ptr == o.ptr && !r.Reclaimed() && !o.Reclaimed()
	}
	a, b := r.ptr.Value(), o.ptr.Value()
	if a == nil || b == nil {
		return false
	}
	return equalKeys(r.policy, a, b)
}

// Touch records a use of the key. Only soft references track usage.
func (r *Ref[K]) Touch() {
	if r.policy == Soft {
		r.lastUse.Store(time.Now().UnixNano())
	}
}

// Pinned reports whether a soft reference still holds its key strongly.
func (r *Ref[K]) Pinned() bool {
	return r.pin.Load() != nil
}

// Release drops the soft pin so the key can be collected once nothing else
// holds it. It reports whether a pin was dropped.
func (r *Ref[K]) Release() bool {
	return r.pin.Swap(nil) != nil
}

// Relax releases the soft pin when the key has been idle longer than maxIdle.
func (r *Ref[K]) Relax(maxIdle time.Duration, now time.Time) bool {
	if !r.Pinned() {
		return false
	}
	if now.Sub(time.Unix(0, r.lastUse.Load())) <= maxIdle {
		return false
	}
	return r.Release()
}

// Stop unregisters the reclamation notification and drops any soft pin.
// It is used when the owner discards the reference before the key dies.
func (r *Ref[K]) Stop() {
	if r.tracked {
		r.cleanup.Stop()
	}
	r.pin.Store(nil)
}

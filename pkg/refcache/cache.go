package refcache

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/weakref/pkg/reference"
)

// softSweepEvery bounds how often opportunistic purges walk soft entries.
const softSweepEvery = time.Second

// Cache maps keys to values for exactly as long as something outside the
// cache keeps the key alive. Keys are pointers; they compare by identity
// unless *K implements reference.Hasher.
//
// The cache is safe for concurrent use. Every mutation happens inside a
// single shard critical section, and ComputeIfAbsent runs the supplier at
// most once per live key across racing callers.
//
// Values must not reference their key, otherwise the key never dies.
type Cache[K, V any] struct {
	channel       *reference.Channel[K]
	logger        *slog.Logger
	soft          reference.SoftPolicy
	shards        []*shard[K, V]
	stats         counters
	ops           atomic.Uint64
	lastSweep     atomic.Int64
	purgeInterval uint64
	mask          uint64
	sub           reference.Subscription
	policy        reference.Policy
}

// New creates a cache with the given reclamation policy and a private
// reclamation channel.
//
// Example:
//
//	c, err := refcache.New[Schema, *Plan](reference.Soft,
//	    refcache.WithLogger(log),
//	    refcache.WithPurgeInterval(128),
//	)
func New[K, V any](policy reference.Policy, opts ...Option) (*Cache[K, V], error) {
	return NewWithChannel[K, V](policy, reference.NewChannel[K](), opts...)
}

// NewWithChannel creates a cache that receives reclamation notices through
// a shared channel. The cache subscribes once and only drains its own
// subscription.
func NewWithChannel[K, V any](policy reference.Policy, ch *reference.Channel[K], opts ...Option) (*Cache[K, V], error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, policy)
	}
	if ch == nil {
		ch = reference.NewChannel[K]()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	n := shardCount(o.shards)
	c := &Cache[K, V]{
		channel:       ch,
		logger:        o.logger.With(slog.String("policy", policy.String())),
		soft:          o.soft,
		shards:        make([]*shard[K, V], n),
		purgeInterval: o.purgeInterval,
		mask:          uint64(n - 1),
		sub:           ch.Subscribe(),
		policy:        policy,
	}
	for i := range c.shards {
		c.shards[i] = newShard[K, V]()
	}
	return c, nil
}

// NewWeak creates a cache fixed to the Weak policy: an entry disappears as
// soon as nothing but the cache refers to its key.
func NewWeak[K, V any](opts ...Option) *Cache[K, V] {
	c, err := New[K, V](reference.Weak, opts...)
	if err != nil {
		// Weak is always valid.
		panic(err)
	}
	return c
}

// Policy returns the reclamation policy of the cache.
func (c *Cache[K, V]) Policy() reference.Policy { return c.policy }

// Get returns the value stored for key. Entries whose key has been
// reclaimed, and computations still in flight, read as absent.
func (c *Cache[K, V]) Get(key *K) (V, bool) {
	var zero V
	if key == nil {
		return zero, false
	}
	c.maintain()

	h := reference.HashOf(c.policy, key)
	s := c.shardFor(h)

	s.mu.Lock()
	e, pruned := s.lookup(h, key)
	if e == nil || e.flight != nil {
		s.mu.Unlock()
		c.pruned(pruned)
		c.stats.misses.Add(1)
		return zero, false
	}
	v := e.value
	e.ref.Touch()
	s.mu.Unlock()

	c.pruned(pruned)
	c.stats.hits.Add(1)
	return v, true
}

// Put stores value for key, replacing any entry for an equal live key
// including a computation still in flight.
func (c *Cache[K, V]) Put(key *K, value V) error {
	if key == nil {
		return ErrNilKey
	}
	c.maintain()

	ref, err := reference.Make(key, c.policy, c.channel, c.sub)
	if err != nil {
		return err
	}
	h := ref.Hash()
	s := c.shardFor(h)

	s.mu.Lock()
	old, pruned := s.lookup(h, key)
	if old != nil {
		s.drop(h, old)
		old.ref.Stop()
	}
	s.insert(h, &entry[K, V]{ref: ref, value: value})
	s.mu.Unlock()

	c.pruned(pruned)
	return nil
}

// PutIfAbsent stores value unless an equal live key already has a published
// value. It returns the value now associated with key and whether it was
// already present.
func (c *Cache[K, V]) PutIfAbsent(key *K, value V) (V, bool, error) {
	installed := false
	v, err := c.ComputeIfAbsent(key, func(*K) (V, error) {
		installed = true
		return value, nil
	})
	return v, err == nil && !installed, err
}

// ComputeIfAbsent returns the value for key, calling fn to compute it when
// the key is absent. For a live key fn runs at most once across concurrent
// callers; the others wait for its result.
//
// An error from fn is returned unchanged and nothing is cached, so a later
// call computes again. Callers that were waiting on a failed computation
// retry with their own fn. A panic in fn leaves no entry behind and is
// re-raised in the calling goroutine.
//
// fn may use the cache for other keys, but must not call ComputeIfAbsent or
// PutIfAbsent for a key equal to the one it is computing: that call waits
// for fn itself and never returns.
func (c *Cache[K, V]) ComputeIfAbsent(key *K, fn func(*K) (V, error)) (V, error) {
	var zero V
	if key == nil {
		return zero, ErrNilKey
	}
	if fn == nil {
		return zero, ErrNilSupplier
	}
	c.maintain()
	defer runtime.KeepAlive(key)

	h := reference.HashOf(c.policy, key)
	s := c.shardFor(h)

	for {
		s.mu.Lock()
		e, pruned := s.lookup(h, key)
		if e != nil && e.flight == nil {
			v := e.value
			e.ref.Touch()
			s.mu.Unlock()
			c.pruned(pruned)
			c.stats.hits.Add(1)
			return v, nil
		}

		if e != nil {
			f := e.flight
			s.mu.Unlock()
			c.pruned(pruned)

			<-f.done
			if f.err == nil {
				c.stats.hits.Add(1)
				return f.value, nil
			}
			continue
		}

		ref, err := reference.Make(key, c.policy, c.channel, c.sub)
		if err != nil {
			s.mu.Unlock()
			return zero, err
		}
		e = &entry[K, V]{ref: ref, flight: &flight[V]{done: make(chan struct{})}}
		s.insert(h, e)
		s.mu.Unlock()

		c.pruned(pruned)
		c.stats.misses.Add(1)
		return c.load(s, h, e, key, fn)
	}
}

// load runs fn for the placeholder e and publishes or withdraws it.
func (c *Cache[K, V]) load(s *shard[K, V], h uint64, e *entry[K, V], key *K, fn func(*K) (V, error)) (V, error) {
	f := e.flight

	normal := false
	defer func() {
		if normal {
			return
		}
		// fn panicked or called runtime.Goexit.
		r := recover()
		c.withdraw(s, h, e, errSupplierPanicked)
		if r != nil {
			c.logger.Error("refcache: supplier panicked", slog.Any("panic", r))
			panic(r)
		}
	}()

	v, err := fn(key)
	normal = true
	if err != nil {
		c.withdraw(s, h, e, err)
		var zero V
		return zero, err
	}

	s.mu.Lock()
	if s.holds(h, e) {
		e.value = v
		e.flight = nil
		s.count++
	}
	s.mu.Unlock()

	c.stats.loads.Add(1)
	f.value = v
	close(f.done)
	return v, nil
}

// withdraw removes a failed placeholder and wakes its waiters.
func (c *Cache[K, V]) withdraw(s *shard[K, V], h uint64, e *entry[K, V], err error) {
	f := e.flight

	s.mu.Lock()
	if s.drop(h, e) {
		e.ref.Stop()
	}
	s.mu.Unlock()

	c.stats.loadErrors.Add(1)
	f.err = err
	close(f.done)
}

// Remove deletes the entry for key and returns its value. A computation in
// flight for key is detached: its callers still receive the result but it
// is not cached.
func (c *Cache[K, V]) Remove(key *K) (V, bool) {
	var zero V
	if key == nil {
		return zero, false
	}
	c.maintain()

	h := reference.HashOf(c.policy, key)
	s := c.shardFor(h)

	s.mu.Lock()
	e, pruned := s.lookup(h, key)
	if e == nil {
		s.mu.Unlock()
		c.pruned(pruned)
		return zero, false
	}
	published := e.flight == nil
	s.drop(h, e)
	e.ref.Stop()
	s.mu.Unlock()

	c.pruned(pruned)
	if !published {
		return zero, false
	}
	c.stats.removals.Add(1)
	return e.value, true
}

// Size returns the number of published entries. Entries whose key has
// been reclaimed but not yet purged are still counted.
func (c *Cache[K, V]) Size() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.count
		s.mu.Unlock()
	}
	return n
}

// Range calls fn for each published entry whose key is still alive, until
// fn returns false. Phantom caches never expose keys, so fn is not called.
// Entries are snapshotted per shard; fn runs without locks held.
func (c *Cache[K, V]) Range(fn func(key *K, value V) bool) {
	if !c.policy.Readable() {
		return
	}

	type pair struct {
		ref   *reference.Ref[K]
		value V
	}
	var batch []pair
	for _, s := range c.shards {
		batch = batch[:0]
		s.mu.Lock()
		for _, bucket := range s.buckets {
			for _, e := range bucket {
				if e.flight == nil {
					batch = append(batch, pair{ref: e.ref, value: e.value})
				}
			}
		}
		s.mu.Unlock()

		for _, p := range batch {
			k, ok := p.ref.Get()
			if !ok {
				continue
			}
			if !fn(k, p.value) {
				return
			}
		}
	}
}

// Keys returns the live keys currently cached.
func (c *Cache[K, V]) Keys() []*K {
	var keys []*K
	c.Range(func(k *K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Clear removes every entry. Computations in flight are detached.
func (c *Cache[K, V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		for _, bucket := range s.buckets {
			for _, e := range bucket {
				e.ref.Stop()
			}
		}
		s.buckets = make(map[uint64][]*entry[K, V])
		s.count = 0
		s.mu.Unlock()
	}
}

// Close detaches the cache from its reclamation channel and drops every
// entry. Caches on a shared channel must be closed when discarded, otherwise
// the channel keeps queueing their reclaimed references. The cache must not
// be used after Close.
func (c *Cache[K, V]) Close() {
	c.Clear()
	c.channel.Unsubscribe(c.sub)
}

// PurgeStale removes every entry whose key has been reported reclaimed and
// returns how many were removed. For Soft caches it first releases the pins
// of keys idle beyond the soft policy allowance. Calling it is optional:
// the other operations purge opportunistically.
func (c *Cache[K, V]) PurgeStale() int {
	return c.purge(true)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return c.stats.snapshot()
}

func (c *Cache[K, V]) purge(sweep bool) int {
	if c.policy == reference.Soft {
		c.relax(sweep)
	}

	refs := c.channel.Drain(c.sub)
	purged := 0
	for _, ref := range refs {
		s := c.shardFor(ref.Hash())
		s.mu.Lock()
		if s.evict(ref) {
			purged++
		}
		s.mu.Unlock()
	}

	if purged > 0 {
		c.stats.reclaimed.Add(uint64(purged))
		c.logger.Debug("refcache: purged reclaimed entries",
			slog.Int("count", purged),
			slog.Int("notified", len(refs)),
		)
	}
	return purged
}

// relax releases soft pins of idle keys. Opportunistic calls are throttled.
func (c *Cache[K, V]) relax(force bool) {
	now := c.soft.Now()
	if force {
		c.lastSweep.Store(now.UnixNano())
	} else {
		last := c.lastSweep.Load()
		if now.UnixNano()-last < int64(softSweepEvery) || !c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
			return
		}
	}

	maxIdle := c.soft.MaxIdle()
	released := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for _, bucket := range s.buckets {
			for _, e := range bucket {
				if e.flight == nil && e.ref.Relax(maxIdle, now) {
					released++
				}
			}
		}
		s.mu.Unlock()
	}

	if released > 0 {
		c.logger.Debug("refcache: released soft pins",
			slog.Int("count", released),
			slog.Duration("max_idle", maxIdle),
		)
	}
}

// maintain purges every purgeInterval operations.
func (c *Cache[K, V]) maintain() {
	if c.ops.Add(1)%c.purgeInterval == 0 {
		c.purge(false)
	}
}

func (c *Cache[K, V]) pruned(n int) {
	if n > 0 {
		c.stats.reclaimed.Add(uint64(n))
	}
}

func (c *Cache[K, V]) shardFor(h uint64) *shard[K, V] {
	return c.shards[h&c.mask]
}

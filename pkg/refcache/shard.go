package refcache

import (
	"sync"

	"github.com/dmitrymomot/weakref/pkg/reference"
)

// entry pairs a tracked key with its value. While flight is non-nil the
// entry is a placeholder for an in-progress computation and holds no value.
type entry[K, V any] struct {
	ref    *reference.Ref[K]
	flight *flight[V]
	value  V
}

// flight is the result of one supplier call, shared with waiting callers.
// value and err are written before done is closed.
type flight[V any] struct {
	done  chan struct{}
	err   error
	value V
}

type shard[K, V any] struct {
	buckets map[uint64][]*entry[K, V]
	mu      sync.Mutex
	count   int // published entries
}

func newShard[K, V any]() *shard[K, V] {
	return &shard[K, V]{buckets: make(map[uint64][]*entry[K, V])}
}

// lookup returns the entry whose live key equals key, dropping published
// entries with reclaimed keys on the way. Caller must hold mu.
func (s *shard[K, V]) lookup(h uint64, key *K) (*entry[K, V], int) {
	bucket := s.buckets[h]
	if len(bucket) == 0 {
		return nil, 0
	}

	var (
		found  *entry[K, V]
		pruned int
	)
	kept := bucket[:0]
	for _, e := range bucket {
		if e.flight == nil && e.ref.Reclaimed() {
			pruned++
			continue
		}
		kept = append(kept, e)
		if found == nil && e.ref.Refers(key) {
			found = e
		}
	}
	if pruned > 0 {
		s.count -= pruned
		clear(bucket[len(kept):])
		s.set(h, kept)
	}
	return found, pruned
}

// insert adds e to its bucket. Caller must hold mu.
func (s *shard[K, V]) insert(h uint64, e *entry[K, V]) {
	s.buckets[h] = append(s.buckets[h], e)
	if e.flight == nil {
		s.count++
	}
}

// drop removes exactly e, matched by identity. Caller must hold mu.
func (s *shard[K, V]) drop(h uint64, e *entry[K, V]) bool {
	bucket := s.buckets[h]
	for i, cur := range bucket {
		if cur != e {
			continue
		}
		last := len(bucket) - 1
		bucket[i] = bucket[last]
		bucket[last] = nil
		s.set(h, bucket[:last])
		if e.flight == nil {
			s.count--
		}
		return true
	}
	return false
}

// holds reports whether e is still stored. Caller must hold mu.
func (s *shard[K, V]) holds(h uint64, e *entry[K, V]) bool {
	for _, cur := range s.buckets[h] {
		if cur == e {
			return true
		}
	}
	return false
}

// evict removes the entry tracked by ref, if it is still stored.
// Caller must hold mu.
func (s *shard[K, V]) evict(ref *reference.Ref[K]) bool {
	h := ref.Hash()
	for _, e := range s.buckets[h] {
		if e.ref == ref {
			return s.drop(h, e)
		}
	}
	return false
}

func (s *shard[K, V]) set(h uint64, bucket []*entry[K, V]) {
	if len(bucket) == 0 {
		delete(s.buckets, h)
		return
	}
	s.buckets[h] = bucket
}

package reference

import (
	"context"
	"sync"
)

// Subscription identifies one consumer of a Channel.
type Subscription uint64

// Channel delivers reclaimed references to their subscribers. It is fed by
// the runtime cleanup goroutine and can be shared by several caches; each
// cache drains only its own subscription.
type Channel[K any] struct {
	queues map[Subscription]*queue[K]
	mu     sync.Mutex
	next   Subscription
}

type queue[K any] struct {
	ready chan struct{}
	refs  []*Ref[K]
}

// NewChannel creates an empty reclamation channel.
func NewChannel[K any]() *Channel[K] {
	return &Channel[K]{
		queues: make(map[Subscription]*queue[K]),
	}
}

// Subscribe registers a new consumer.
func (c *Channel[K]) Subscribe() Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	c.queues[c.next] = &queue[K]{ready: make(chan struct{}, 1)}
	return c.next
}

// Unsubscribe drops the consumer and everything pending for it.
// Waiters blocked on sub return ErrUnknownSubscription.
func (c *Channel[K]) Unsubscribe(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[sub]; ok {
		delete(c.queues, sub)
		close(q.ready)
	}
}

// Drain returns and clears every reference pending for sub.
func (c *Channel[K]) Drain(sub Subscription) []*Ref[K] {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[sub]
	if !ok || len(q.refs) == 0 {
		return nil
	}
	refs := q.refs
	q.refs = nil
	select {
	case <-q.ready:
	default:
	}
	return refs
}

// Pending returns the number of references waiting for sub.
func (c *Channel[K]) Pending(sub Subscription) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[sub]; ok {
		return len(q.refs)
	}
	return 0
}

// Wait blocks until a reference is delivered to sub or ctx is done.
func (c *Channel[K]) Wait(ctx context.Context, sub Subscription) (*Ref[K], error) {
	for {
		c.mu.Lock()
		q, ok := c.queues[sub]
		if !ok {
			c.mu.Unlock()
			return nil, ErrUnknownSubscription
		}
		if len(q.refs) > 0 {
			r := q.refs[0]
			q.refs[0] = nil
			q.refs = q.refs[1:]
			if len(q.refs) > 0 {
				q.signal()
			}
			c.mu.Unlock()
			return r, nil
		}
		ready := q.ready
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

// deliver runs on the runtime cleanup goroutine after the key of r died.
func (c *Channel[K]) deliver(r *Ref[K]) {
	r.cleared.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[r.sub]
	if !ok {
		return
	}
	q.refs = append(q.refs, r)
	q.signal()
}

func (q *queue[K]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

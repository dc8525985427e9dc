// Package flight coalesces identical concurrent requests and optionally keeps
// their results for a while.
package flight

import (
	"context"
	"sync"
	"time"
	"weak"
)

// Cache runs work once per key at a time. A finished value is held strongly
// for the TTL, then only weakly until the garbage collector reclaims it.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	finished map[K]*entry[V]
	pending  map[K]*job[V]

	work func(context.Context, K) (V, error)
	ttl  time.Duration
	now  func() time.Time
}

type entry[V any] struct {
	w        weak.Pointer[V]
	strong   *V
	deadline time.Time
}

type job[V any] struct {
	val  V
	err  error
	done chan struct{}
}

// NewCache returns a cache with a one hour TTL.
func NewCache[K comparable, V any](work func(context.Context, K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		finished: make(map[K]*entry[V]),
		pending:  make(map[K]*job[V]),
		work:     work,
		ttl:      time.Hour,
		now:      time.Now,
	}
}

// Expiry sets the strong-hold duration for future results. Zero keeps
// nothing, so only concurrent calls share a result; a negative duration
// holds values until Forget.
func (c *Cache[K, V]) Expiry(d time.Duration) {
	c.mu.Lock()
	c.ttl = d
	c.mu.Unlock()
}

// Get returns a cached value, joins an in-flight call for k, or starts work.
// Errors are never cached. Work runs detached from the cancellation of the
// caller that started it; every caller, that one included, stops waiting
// when its own ctx ends.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	c.mu.Lock()
	if v, ok := c.lookup(k); ok {
		c.mu.Unlock()
		return v, nil
	}
	j, ok := c.pending[k]
	if !ok {
		j = &job[V]{done: make(chan struct{})}
		c.pending[k] = j
		go c.run(context.WithoutCancel(ctx), k, j)
	}
	c.mu.Unlock()

	select {
	case <-j.done:
		return j.val, j.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[K, V]) run(ctx context.Context, k K, j *job[V]) {
	j.val, j.err = c.work(ctx, k)

	c.mu.Lock()
	if j.err == nil && c.ttl != 0 {
		c.store(k, j.val)
	}
	delete(c.pending, k)
	close(j.done)
	c.mu.Unlock()
}

// Forget drops any finished value for k.
func (c *Cache[K, V]) Forget(k K) {
	c.mu.Lock()
	delete(c.finished, k)
	c.mu.Unlock()
}

// Len counts finished entries whose value is still reachable.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.finished {
		if _, ok := c.lookup(k); ok {
			n++
		}
	}
	return n
}

// lookup must be called with mu held.
func (c *Cache[K, V]) lookup(k K) (V, bool) {
	var zero V
	e, ok := c.finished[k]
	if !ok {
		return zero, false
	}
	if e.strong != nil && !e.deadline.IsZero() && c.now().After(e.deadline) {
		e.strong = nil
	}
	vp := e.w.Value()
	if vp == nil {
		delete(c.finished, k)
		return zero, false
	}
	return *vp, true
}

// store must be called with mu held.
func (c *Cache[K, V]) store(k K, val V) {
	v := new(V)
	*v = val
	e := &entry[V]{w: weak.Make(v), strong: v}
	if c.ttl > 0 {
		e.deadline = c.now().Add(c.ttl)
	}
	c.finished[k] = e
}

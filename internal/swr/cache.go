// Package swr is a keyed stale-while-revalidate cache. Concurrent
// revalidations of one key share a single fetch, the last good value stays
// readable while a fetch runs, and results arriving after Close are dropped.
package swr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads a fresh value. ctx is canceled when the cache closes.
type Fetcher[T any] func(ctx context.Context) (T, error)

// State is the observable state of one key.
type State[T any] struct {
	Value    T    `json:"value"`
	HasValue bool `json:"hasValue"`
	Loading  bool `json:"loading"`
	// Stale marks a seeded value that has not been revalidated yet.
	Stale         bool      `json:"stale"`
	Err           error     `json:"-"`
	UpdatedAt     time.Time `json:"updatedAt"`
	NextRefreshAt time.Time `json:"nextRefreshAt"`
}

// Result is delivered once per Revalidate call.
type Result[T any] struct {
	State State[T]
	// Shared is true when the call joined a fetch started by another caller.
	Shared bool
}

// Options configures a Cache.
type Options[T any] struct {
	// RefreshInterval sets NextRefreshAt after each completion. Zero disables it.
	RefreshInterval time.Duration
	// OnUpdate is called after every accepted completion, outside the lock.
	OnUpdate func(key string, st State[T])
	// Now overrides time.Now.
	Now func() time.Time
}

// Cache holds per-key fetch state.
type Cache[T any] struct {
	opts Options[T]

	mu      sync.Mutex
	entries map[string]*State[T]
	closed  bool

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty cache.
func New[T any](opts Options[T]) *Cache[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		opts:    opts,
		entries: make(map[string]*State[T]),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Get returns a copy of the state for key. Unknown keys return the zero state.
func (c *Cache[T]) Get(key string) State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.entries[key]; ok {
		return *st
	}
	return State[T]{}
}

// Seed installs v as a stale value for key unless the key already holds one.
func (c *Cache[T]) Seed(key string, v T, updatedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	st := c.entry(key)
	if st.HasValue {
		return false
	}
	st.Value = v
	st.HasValue = true
	st.Stale = true
	st.UpdatedAt = updatedAt
	return true
}

// Revalidate starts a fetch for key, or joins the one already running.
// The returned channel receives exactly one Result and is then closed.
func (c *Cache[T]) Revalidate(key string, fetch Fetcher[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)

	c.mu.Lock()
	if c.closed {
		st := c.snapshot(key)
		c.mu.Unlock()
		out <- Result[T]{State: st}
		close(out)
		return out
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.begin(key)
		v, err := fetch(c.ctx)
		return c.complete(key, v, err), nil
	})

	go func() {
		defer close(out)
		res := <-ch
		st, _ := res.Val.(State[T])
		out <- Result[T]{State: st, Shared: res.Shared}
	}()

	return out
}

// Close cancels in-flight fetches. Later completions are discarded and
// Revalidate becomes a no-op returning the last state.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// Closed reports whether Close has been called.
func (c *Cache[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Cache[T]) begin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.entry(key).Loading = true
}

func (c *Cache[T]) complete(key string, v T, err error) State[T] {
	c.mu.Lock()
	if c.closed {
		st := c.snapshot(key)
		c.mu.Unlock()
		return st
	}

	now := c.opts.Now()
	st := c.entry(key)
	st.Loading = false
	if err != nil {
		st.Err = err
	} else {
		st.Value = v
		st.HasValue = true
		st.Stale = false
		st.Err = nil
		st.UpdatedAt = now
	}
	if c.opts.RefreshInterval > 0 {
		st.NextRefreshAt = now.Add(c.opts.RefreshInterval)
	}
	snap := *st
	c.mu.Unlock()

	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(key, snap)
	}
	return snap
}

// entry returns the mutable state for key. Caller holds mu.
func (c *Cache[T]) entry(key string) *State[T] {
	st, ok := c.entries[key]
	if !ok {
		st = &State[T]{}
		c.entries[key] = st
	}
	return st
}

// snapshot copies the state for key. Caller holds mu.
func (c *Cache[T]) snapshot(key string) State[T] {
	if st, ok := c.entries[key]; ok {
		return *st
	}
	return State[T]{}
}

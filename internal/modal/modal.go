// Package modal holds the single piece of content a session shows in its
// modal slot.
package modal

import "sync"

// Container holds at most one content value. Showing replaces the current
// content; there is no stacking.
type Container[T any] struct {
	mu      sync.Mutex
	content T
	open    bool
	nextID  int
	subs    map[int]func(open bool)
}

// New creates an empty container.
func New[T any]() *Container[T] {
	return &Container[T]{subs: make(map[int]func(bool))}
}

// Show displays content, replacing anything already shown.
func (c *Container[T]) Show(content T) {
	c.mu.Lock()
	c.content = content
	c.open = true
	subs := c.subscribers()
	c.mu.Unlock()

	notify(subs, true)
}

// Dismiss clears the content. Dismissing an empty container is a no-op.
func (c *Container[T]) Dismiss() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	var zero T
	c.content = zero
	c.open = false
	subs := c.subscribers()
	c.mu.Unlock()

	notify(subs, false)
}

// Current returns the shown content and whether the modal is open.
func (c *Container[T]) Current() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content, c.open
}

// IsOpen reports whether content is shown.
func (c *Container[T]) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Subscribe registers fn for visibility changes and returns its cancel func.
func (c *Container[T]) Subscribe(fn func(open bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Container[T]) subscribers() []func(bool) {
	out := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(bool), open bool) {
	for _, fn := range subs {
		fn(open)
	}
}

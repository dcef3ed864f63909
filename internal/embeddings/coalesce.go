// ABOUTME: Time-windowed, size-limited set of recently queued page events
// ABOUTME: Repeated saves of the same revision inside the window are enqueued once

package embeddings

import (
	"container/list"
	"sync"
	"time"
)

type coalesceEntry struct {
	at      time.Time
	element *list.Element
}

// coalescer remembers keys for a window. Oldest keys are evicted first when
// the set is full. Expired keys are swept by sweep, which the indexer calls
// from its Run loop.
type coalescer struct {
	mu      sync.Mutex
	seen    map[string]*coalesceEntry
	order   *list.List // oldest at front
	window  time.Duration
	maxSize int
	now     func() time.Time
}

func newCoalescer(window time.Duration, maxSize int) *coalescer {
	if maxSize < 1 {
		maxSize = 1
	}
	return &coalescer{
		seen:    make(map[string]*coalesceEntry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// seenRecently reports whether key was marked inside the window, and marks
// it if not. The check and the mark happen under one lock.
func (c *coalescer) seenRecently(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok {
		if now.Sub(e.at) < c.window {
			return true
		}
		e.at = now
		c.order.MoveToBack(e.element)
		return false
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[key] = &coalesceEntry{at: now, element: c.order.PushBack(key)}
	return false
}

// forget drops key so the next event for it is queued again.
func (c *coalescer) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Must be called with mu held.
func (c *coalescer) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// sweep removes expired keys.
func (c *coalescer) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		key, _ := e.Value.(string)
		if now.Sub(c.seen[key].at) < c.window {
			// Entries after this one were marked later.
			break
		}
		c.order.Remove(e)
		delete(c.seen, key)
		e = next
	}
}

func (c *coalescer) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

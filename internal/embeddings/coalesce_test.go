// ABOUTME: Tests for the page event coalescer
// ABOUTME: Validates the window, capacity eviction, sweeping and concurrent use

package embeddings

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCoalescer(window time.Duration, size int) (*coalescer, *manualClock) {
	clock := &manualClock{now: time.Unix(1_750_000_000, 0)}
	c := newCoalescer(window, size)
	c.now = clock.Now
	return c, clock
}

func TestCoalescer_FirstSeen(t *testing.T) {
	c, _ := newTestCoalescer(time.Minute, 10)
	assert.False(t, c.seenRecently("a"))
	assert.True(t, c.seenRecently("a"))
	assert.False(t, c.seenRecently("b"))
}

func TestCoalescer_WindowExpires(t *testing.T) {
	c, clock := newTestCoalescer(time.Minute, 10)
	c.seenRecently("a")

	clock.Advance(59 * time.Second)
	assert.True(t, c.seenRecently("a"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.seenRecently("a"), "expired keys are re-marked")
	assert.True(t, c.seenRecently("a"))
}

func TestCoalescer_EvictsOldest(t *testing.T) {
	c, _ := newTestCoalescer(time.Minute, 3)
	c.seenRecently("a")
	c.seenRecently("b")
	c.seenRecently("c")
	c.seenRecently("d")

	assert.Equal(t, 3, c.size())
	assert.False(t, c.seenRecently("a"), "oldest key was evicted")
}

func TestCoalescer_Forget(t *testing.T) {
	c, _ := newTestCoalescer(time.Minute, 10)
	c.seenRecently("a")
	c.forget("a")
	c.forget("never-seen")
	assert.False(t, c.seenRecently("a"))
}

func TestCoalescer_Sweep(t *testing.T) {
	c, clock := newTestCoalescer(time.Minute, 10)
	c.seenRecently("old-1")
	c.seenRecently("old-2")
	clock.Advance(45 * time.Second)
	c.seenRecently("new")
	clock.Advance(30 * time.Second)

	c.sweep()
	assert.Equal(t, 1, c.size())
	assert.True(t, c.seenRecently("new"))
}

func TestCoalescer_Concurrent(t *testing.T) {
	c, _ := newTestCoalescer(time.Minute, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !c.seenRecently("k" + strconv.Itoa(i)) {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, firsts, "each key is new exactly once")
}

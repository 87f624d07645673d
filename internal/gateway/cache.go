package gateway

import (
	"sync"
)

// Cache is a fixed-capacity ring buffer of the most recent events seen
// by a gateway. It is a diagnostic/replay buffer: eviction here never
// affects delivery, which runs off the pending queue.
type Cache struct {
	mu   sync.Mutex
	buf  []Event
	head int
	size int
}

// NewCache creates a ring cache holding at most capacity events
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{buf: make([]Event, capacity)}
}

// Add appends an event, evicting the oldest when full
func (c *Cache) Add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := (c.head + c.size) % len(c.buf)
	c.buf[tail] = e
	if c.size < len(c.buf) {
		c.size++
	} else {
		// full: the slot just written was the oldest entry
		c.head = (c.head + 1) % len(c.buf)
	}
}

// Len returns the number of cached events
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the fixed capacity of the cache
func (c *Cache) Capacity() int {
	return len(c.buf)
}

// Snapshot returns the cached events, oldest first
func (c *Cache) Snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, c.size)
	for i := 0; i < c.size; i++ {
		out[i] = c.buf[(c.head+i)%len(c.buf)]
	}
	return out
}

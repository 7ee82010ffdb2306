package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache keeps responses in process. A janitor goroutine started by
// NewMemoryCache evicts expired items until Close is called.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.janitor(sweepInterval)
	return c
}

func (c *MemoryCache) janitor(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *MemoryCache) evictExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			evicted++
		}
	}
	return evicted
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(item.expiresAt) {
		return nil, ErrCacheMiss
	}
	entry := item.entry
	return &entry, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	c.mu.Lock()
	c.items[key] = memoryItem{entry: *entry, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Purge(context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]memoryItem)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor and waits for it to exit. Safe to call twice.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

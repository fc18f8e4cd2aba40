// Package local provides the in-process cache and pub/sub used when no Redis
// address is configured.
package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

type item struct {
	value    string
	deadline time.Time
}

func (it item) live(now time.Time) bool {
	return it.deadline.IsZero() || now.Before(it.deadline)
}

// Cache is an in-process key/value store with per-key TTL. Expired keys are
// invisible immediately and swept every sweep interval.
type Cache struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewCache creates a Cache and starts its sweeper.
func NewCache(sweep time.Duration) *Cache {
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	c := &Cache{
		items: make(map[string]item),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.sweepLoop(sweep)
	return c
}

// Close stops the sweeper.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, it := range c.items {
		if !it.live(now) {
			delete(c.items, k)
		}
	}
}

// Len counts stored keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !it.live(c.now()) {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	it := item{value: value}
	if ttl > 0 {
		it.deadline = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	return err == nil, nil
}

package forecast

import (
	"context"
	"fmt"
	"sync"
)

// CachedService wraps a Service with an in-memory LRU cache keyed by year.
// Fetches are served from cache; Generate always goes to the API and
// refreshes the cached year.
type CachedService struct {
	inner Service
	cache *lruCache
}

// NewCachedService creates a cache decorator around a forecast service.
func NewCachedService(inner Service, maxEntries int) *CachedService {
	return &CachedService{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedService) Predictions(ctx context.Context, year int) ([]Prediction, error) {
	key := fmt.Sprintf("year:%d", year)
	if predictions, ok := c.cache.get(key); ok {
		return predictions, nil
	}
	predictions, err := c.inner.Predictions(ctx, year)
	if err != nil {
		return predictions, err
	}
	// Only cache non-empty sets so years awaiting generation can be retried.
	if len(predictions) > 0 {
		c.cache.put(key, predictions)
	}
	return predictions, nil
}

func (c *CachedService) Generate(ctx context.Context, year int) ([]Prediction, error) {
	predictions, err := c.inner.Generate(ctx, year)
	if err != nil {
		return predictions, err
	}
	c.cache.put(fmt.Sprintf("year:%d", year), predictions)
	return predictions, nil
}

// lruCache is a simple thread-safe LRU cache for prediction sets.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []Prediction
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

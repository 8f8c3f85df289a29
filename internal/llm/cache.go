package llm

import (
	"container/list"
	"sync"
	"time"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = 1800 * time.Second
)

// Key identifies a client by the credential and model it was built for.
type Key struct {
	APIKey string
	Model  string
}

// Cache keeps recently used completers. Entries are evicted least recently
// used first once the capacity is exceeded, and independently once they have
// been idle for longer than the TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	items    map[Key]*list.Element
}

type cacheEntry struct {
	key     Key
	client  Completer
	touched time.Time
}

// NewCache returns an empty cache. Non-positive arguments select the defaults.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[Key]*list.Element),
	}
}

// Get returns the cached client for k and marks it as recently used.
func (c *Cache) Get(k Key) (Completer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.expire(now)
	el, ok := c.items[k]
	obs.LLMCacheLookup(ok)
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	e.touched = now
	c.order.MoveToBack(el)
	return e.client, true
}

// Put stores client under k, replacing any previous entry.
func (c *Cache) Put(k Key, client Completer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if el, ok := c.items[k]; ok {
		e := el.Value.(*cacheEntry)
		e.client, e.touched = client, now
		c.order.MoveToBack(el)
		return
	}
	c.items[k] = c.order.PushBack(&cacheEntry{key: k, client: client, touched: now})
	for c.order.Len() > c.capacity {
		c.remove(c.order.Front())
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	return c.order.Len()
}

// expire drops idle entries. The list is ordered by last use, so the scan
// stops at the first live entry. Callers hold mu.
func (c *Cache) expire(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*cacheEntry).touched) <= c.ttl {
			return
		}
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}

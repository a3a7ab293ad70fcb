package embedding

import (
	"container/list"
	"strconv"
	"sync"
)

// Cache is an LRU cache of embeddings keyed by text and token budget.
// Stored and returned vectors are copies, so callers may normalize them in place.
type Cache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache creates a cache holding up to capacity embeddings.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func cacheKey(text string, maxTokens int) string {
	return strconv.Itoa(maxTokens) + "\x00" + text
}

// Get returns a copy of the cached embedding if present.
func (c *Cache) Get(text string, maxTokens int) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[cacheKey(text, maxTokens)]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return clone(elem.Value.(*cacheEntry).value), true
}

// Set stores a copy of value, evicting the least recently used entry when full.
func (c *Cache) Set(text string, maxTokens int, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(text, maxTokens)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = clone(value)
		return
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, value: clone(value)})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

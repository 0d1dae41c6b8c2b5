package cache

import (
	"container/list"
	"sync"
	"time"

	"ragqa/internal/domain"
)

// QueryCache is an LRU cache of retrieval results with a TTL. Entries are
// tagged with the index generation they were computed against and are
// never served for another generation.
type QueryCache struct {
	mu      sync.Mutex
	lru     *list.List // front is most recently used
	byKey   map[queryKey]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type queryKey struct {
	query string
	topK  int
}

type cachedResult struct {
	key      queryKey
	result   domain.RetrievalResult
	storedAt time.Time
	indexGen uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		lru:     list.New(),
		byKey:   make(map[queryKey]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the result stored for query and topK if it is still fresh
// and belongs to indexGen. Stale entries are dropped on the way.
func (c *QueryCache) Get(query string, topK int, indexGen uint64) (domain.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[queryKey{query, topK}]
	if !ok {
		return domain.RetrievalResult{}, false
	}

	cr := el.Value.(*cachedResult)
	if cr.indexGen != indexGen || c.now().Sub(cr.storedAt) > c.ttl {
		c.remove(el)
		return domain.RetrievalResult{}, false
	}

	c.lru.MoveToFront(el)
	return cr.result, true
}

func (c *QueryCache) Put(query string, topK int, indexGen uint64, result domain.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := queryKey{query, topK}
	cr := &cachedResult{key: key, result: result, storedAt: c.now(), indexGen: indexGen}

	if el, ok := c.byKey[key]; ok {
		el.Value = cr
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxSize {
		c.remove(c.lru.Back())
	}
	c.byKey[key] = c.lru.PushFront(cr)
}

// Invalidate drops every entry. Called when a new index is published.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Init()
	clear(c.byKey)
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *QueryCache) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.byKey, el.Value.(*cachedResult).key)
}

package llms

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCacheSize = 512

// Cache memoizes provider responses for identical requests. Entries expire
// after the configured TTL and the least recently used entry is evicted when
// the cache is full. Safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, *Response]
}

// NewCache creates a response cache. A non-positive ttl defaults to five
// minutes.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{lru: expirable.NewLRU[string, *Response](defaultCacheSize, nil, ttl)}
}

// Get returns the cached response for the request, if any.
func (c *Cache) Get(provider string, req Request) (*Response, bool) {
	return c.lru.Get(cacheKey(provider, req))
}

// Put stores the response for the request.
func (c *Cache) Put(provider string, req Request, resp *Response) {
	c.lru.Add(cacheKey(provider, req), resp)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// cacheKey hashes the full request so any parameter change misses. Request
// marshals deterministically: struct fields encode in declaration order.
func cacheKey(provider string, req Request) string {
	encoded, err := json.Marshal(req)
	if err != nil {
		encoded = []byte(req.Model)
	}
	sum := sha256.Sum256(append([]byte(provider+"\x00"), encoded...))
	return hex.EncodeToString(sum[:])
}

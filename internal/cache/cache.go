// Package cache keeps recent analysis results keyed by a hash of the request.
package cache

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/spaolacci/murmur3"
)

// Cache is a bounded TTL cache. Values must not be mutated after Set.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// New returns a cache holding up to size entries for ttlSec seconds each.
func New(size, ttlSec int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * size,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c, ttl: time.Duration(ttlSec) * time.Second}, nil
}

// Key hashes the canonical JSON form of v. Map keys are marshalled in sorted
// order, so equal payloads produce equal keys.
func Key(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	h1, h2 := murmur3.Sum128(raw)
	return strconv.FormatUint(h1, 16) + strconv.FormatUint(h2, 16), nil
}

func (c *Cache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Set stores value with the cache TTL. Admission is asynchronous, so a Get
// right after Set may still miss.
func (c *Cache) Set(key string, value any) {
	c.cache.SetWithTTL(key, value, 1, c.ttl)
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() {
	c.cache.Wait()
}

func (c *Cache) Close() {
	c.cache.Close()
}

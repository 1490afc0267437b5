package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded in-memory cache whose entries expire after a fixed TTL.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Purge()
	Len() int
}

type ttlCache[K comparable, V any] struct {
	lru *lru.LRU[K, V]
}

// NewTTLCache keeps at most size entries for ttl each.
func NewTTLCache[K comparable, V any](size int, ttl time.Duration) Cache[K, V] {
	if size <= 0 {
		size = 128
	}
	return &ttlCache[K, V]{lru: lru.NewLRU[K, V](size, nil, ttl)}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

func (c *ttlCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.lru.Remove(key)
}

func (c *ttlCache[K, V]) Purge() {
	c.lru.Purge()
}

func (c *ttlCache[K, V]) Len() int {
	return c.lru.Len()
}

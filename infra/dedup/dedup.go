// Package dedup implements the bounded request-deduplication cache
// spec §4.3 mandates: a (user, request_id) -> cached response LRU,
// bounded by both entry count and a wall-time TTL, so a gateway retry
// within the window replays the original response instead of
// re-executing, and a lookup outside the window surfaces
// errkind.UnknownRequest rather than silently re-running the request.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type Key struct {
	UserID    string
	RequestID string
}

// Cache is generic over the cached response type so domain/matching
// can use it without this package importing matching's types.
type Cache[T any] struct {
	mu  sync.Mutex
	lru *lru.LRU[Key, T]
}

func New[T any](maxEntries int, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		lru: lru.NewLRU[Key, T](maxEntries, nil, ttl),
	}
}

func (c *Cache[T]) Get(userID, requestID string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(Key{UserID: userID, RequestID: requestID})
}

func (c *Cache[T]) Put(userID, requestID string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(Key{UserID: userID, RequestID: requestID}, value)
}

func (c *Cache[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

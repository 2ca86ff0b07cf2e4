// Package cache provides typed in-memory caches for values that are expensive
// to derive.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	go_store "github.com/eko/gocache/store/go_cache/v4"
	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
)

// Cache key prefixes.
const (
	ThumbnailCachePrefix = "thumbnail-"
	UsageCachePrefix     = "usage-"
)

// PrefixedCache wraps a cache.Cache and adds a prefix to all keys.
type PrefixedCache[T any] struct {
	cache  *cache.Cache[[]byte]
	prefix string
}

// NewPrefixedCache creates a new prefixed cache wrapper.
func NewPrefixedCache[T any](cache *cache.Cache[[]byte], prefix string) *PrefixedCache[T] {
	return &PrefixedCache[T]{
		cache:  cache,
		prefix: prefix,
	}
}

// NewMemory creates a prefixed cache whose entries expire after ttl.
func NewMemory[T any](prefix string, ttl time.Duration) *PrefixedCache[T] {
	return NewPrefixedCache[T](newMemoryCache(ttl), prefix)
}

// Get retrieves a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Get(ctx context.Context, key any) (T, error) {
	data, err := p.cache.Get(ctx, p.key(key))
	if err != nil {
		return *new(T), err
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return *new(T), err
	}
	return result, nil
}

// Set stores a value in the cache with the prefixed key.
func (p *PrefixedCache[T]) Set(ctx context.Context, key any, object T, options ...store.Option) error {
	data, err := json.Marshal(object)
	if err != nil {
		return err
	}
	return p.cache.Set(ctx, p.key(key), data, options...)
}

// Delete removes a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Delete(ctx context.Context, key any) error {
	return p.cache.Delete(ctx, p.key(key))
}

func (p *PrefixedCache[T]) key(key any) string {
	return p.prefix + fmt.Sprintf("%v", key)
}

func newMemoryCache(ttl time.Duration) *cache.Cache[[]byte] {
	gocacheClient := gocache.New(ttl, 2*ttl)
	gocacheStore := go_store.NewGoCache(gocacheClient, store.WithExpiration(ttl))
	return cache.New[[]byte](gocacheStore)
}

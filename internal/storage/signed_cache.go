package storage

import (
	"time"

	ttlworker "github.com/FloatTech/ttl"
)

// CachedSigner wraps an ObjectStore and memoizes display signed URLs.
// The reconciliation loop and the snapshot API re-sign the same keys
// over and over; within the cache window they get the same URL back.
// Short-lived download URLs bypass the cache so a cached entry can
// never outlive the URL it holds.
type CachedSigner struct {
	ObjectStore
	cacheFor time.Duration
	cache    *ttlworker.Cache[string, string]
}

// NewCachedSigner caches signed URLs for cacheFor. Only requests whose
// ttl is at least twice cacheFor are cached.
func NewCachedSigner(store ObjectStore, cacheFor time.Duration) *CachedSigner {
	return &CachedSigner{
		ObjectStore: store,
		cacheFor:    cacheFor,
		cache:       ttlworker.NewCache[string, string](cacheFor),
	}
}

// SignedURL returns a cached URL when one is fresh, otherwise signs
// through to the wrapped store.
func (c *CachedSigner) SignedURL(key string, ttl time.Duration) (string, error) {
	cacheable := ttl >= 2*c.cacheFor
	if cacheable {
		if u := c.cache.Get(key); u != "" {
			return u, nil
		}
	}

	u, err := c.ObjectStore.SignedURL(key, ttl)
	if err != nil {
		return "", err
	}
	if cacheable {
		c.cache.Set(key, u)
	}
	return u, nil
}

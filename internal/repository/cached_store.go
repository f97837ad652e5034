package repository

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
)

const listingCacheSize = 16

type cachedObjectStore struct {
	inner    ObjectStore
	listings *expirable.LRU[string, []domain.StoredObject]
	// bumped by every write so a listing fetched before it is never cached
	generation atomic.Uint64
	log        *zap.Logger
}

// NewCachedObjectStore keeps ListFiles results for ttl. Uploads and deletes
// made through the returned store drop the cache at once; writes from other
// replicas show up after at most ttl. A ttl of zero disables caching.
func NewCachedObjectStore(inner ObjectStore, ttl time.Duration, log *zap.Logger) ObjectStore {
	if ttl <= 0 {
		return inner
	}
	return &cachedObjectStore{
		inner:    inner,
		listings: expirable.NewLRU[string, []domain.StoredObject](listingCacheSize, nil, ttl),
		log:      log,
	}
}

func (c *cachedObjectStore) UploadFile(ctx context.Context, key string, data []byte, contentType string) error {
	err := c.inner.UploadFile(ctx, key, data, contentType)
	c.invalidate()
	return err
}

func (c *cachedObjectStore) ListFiles(ctx context.Context, prefix string) ([]domain.StoredObject, error) {
	if objects, ok := c.listings.Get(prefix); ok {
		return slices.Clone(objects), nil
	}

	gen := c.generation.Load()
	objects, err := c.inner.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if c.generation.Load() == gen {
		c.listings.Add(prefix, slices.Clone(objects))
	}
	return objects, nil
}

func (c *cachedObjectStore) DeleteFile(ctx context.Context, key string) error {
	err := c.inner.DeleteFile(ctx, key)
	c.invalidate()
	return err
}

func (c *cachedObjectStore) PublicURL(key string) string {
	return c.inner.PublicURL(key)
}

func (c *cachedObjectStore) invalidate() {
	c.generation.Add(1)
	c.listings.Purge()
	c.log.Debug("Listing cache invalidated")
}

// Package tiered layers an in-process cache over a shared remote cache.
// Schema bodies are immutable, so a backfilled entry never goes stale.
package tiered

import (
	"context"
	"time"

	"github.com/schemabridge/schemabridge/internal/port/cache"
)

// Cache reads through an L1 (in-process) cache into an L2 (remote) cache.
// Set and Delete apply to both levels.
type Cache struct {
	l1          cache.Cache
	l2          cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache. backfillTTL controls how long entries copied
// up from L2 live in L1.
func New(l1, l2 cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, backfillTTL: backfillTTL}
}

// Get checks L1, then L2. On an L2 hit the entry is copied into L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.backfillTTL)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}

package invoices

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedLookup is a Redis read-through layer in front of another Lookup.
// Label misses are cached too (as empty strings) so absent vendors do
// not hammer the underlying store.
type CachedLookup struct {
	client *redis.Client
	next   Lookup
	ttl    time.Duration
}

// NewCachedLookup constructs the read-through cache.
func NewCachedLookup(client *redis.Client, next Lookup, ttl time.Duration) *CachedLookup {
	return &CachedLookup{client: client, next: next, ttl: ttl}
}

// VendorLabel implements Lookup.
func (c *CachedLookup) VendorLabel(ctx context.Context, name string) string {
	return c.fetch(ctx, "labels:vendor:"+name, func() string {
		return c.next.VendorLabel(ctx, name)
	})
}

// ProjectLabel implements Lookup.
func (c *CachedLookup) ProjectLabel(ctx context.Context, name string) string {
	return c.fetch(ctx, "labels:project:"+name, func() string {
		return c.next.ProjectLabel(ctx, name)
	})
}

func (c *CachedLookup) fetch(ctx context.Context, key string, load func() string) string {
	if c.client != nil {
		if cached, err := c.client.Get(ctx, key).Result(); err == nil {
			return cached
		}
	}
	label := load()
	if c.client != nil {
		_ = c.client.Set(ctx, key, label, c.ttl).Err()
	}
	return label
}

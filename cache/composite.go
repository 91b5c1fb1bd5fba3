package cache

import (
	"context"
	"sort"
	"time"
)

type compositeCache struct {
	caches []Cache
}

var _ Cache = (*compositeCache)(nil)

// NewComposite returns a Cache that chains multiple caches together. Get
// checks caches in order and returns the first hit; writes and drops go to
// every cache. Panics if no caches are provided.
func NewComposite(caches ...Cache) Cache {
	if len(caches) == 0 {
		panic("cache: NewComposite requires at least one cache")
	}
	return &compositeCache{caches: caches}
}

func (c *compositeCache) Get(ctx context.Context, key string) (bool, any, error) {
	for _, cache := range c.caches {
		found, val, err := cache.Get(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if found {
			return true, val, nil
		}
	}
	return false, nil, nil
}

func (c *compositeCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	var firstErr error
	for _, cache := range c.caches {
		if err := cache.Set(ctx, key, val, expires); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeCache) Hits(ctx context.Context, key string) (bool, int) {
	for _, cache := range c.caches {
		if found, hits := cache.Hits(ctx, key); found {
			return true, hits
		}
	}
	return false, 0
}

func (c *compositeCache) Expire(ctx context.Context, key string) (bool, error) {
	var any bool
	var firstErr error
	for _, cache := range c.caches {
		found, err := cache.Expire(ctx, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		any = any || found
	}
	return any, firstErr
}

func (c *compositeCache) Namespaces(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, cache := range c.caches {
		namespaces, err := cache.Namespaces(ctx)
		if err != nil {
			return nil, err
		}
		for _, ns := range namespaces {
			seen[ns] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (c *compositeCache) Drop(ctx context.Context, namespace string) (int, error) {
	var total int
	var firstErr error
	for _, cache := range c.caches {
		n, err := cache.Drop(ctx, namespace)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		total += n
	}
	return total, firstErr
}

func (c *compositeCache) Close(ctx context.Context) error {
	var firstErr error
	for _, cache := range c.caches {
		if err := cache.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

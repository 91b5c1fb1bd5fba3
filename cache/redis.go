package cache

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisCache struct {
	client *redis.Client
	cfg    config
}

var _ Cache = (*redisCache)(nil)

// NewRedis returns a Cache backed by Redis. The caller owns the redis.Client
// lifecycle; Close does not close the client.
func NewRedis(client *redis.Client, opts ...Option) Cache {
	return &redisCache{client: client, cfg: applyOptions(opts)}
}

func (c *redisCache) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *redisCache) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	data, err := c.client.HGet(qctx, key, "v").Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	// Hit counter is best effort, a failure must not fail the Get.
	c.client.HIncrBy(qctx, key, "h", 1)
	return true, data, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	pipe := c.client.Pipeline()
	pipe.HSet(qctx, key, "v", data, "h", 0)
	pipe.Expire(qctx, key, expires)
	_, err = pipe.Exec(qctx)
	return err
}

func (c *redisCache) Hits(ctx context.Context, key string) (bool, int) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	hits, err := c.client.HGet(qctx, key, "h").Int()
	if err != nil {
		return false, 0
	}
	return true, hits
}

func (c *redisCache) Expire(ctx context.Context, key string) (bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	result, err := c.client.Del(qctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (c *redisCache) Namespaces(ctx context.Context) ([]string, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	seen := make(map[string]struct{})
	iter := c.client.Scan(qctx, 0, "*"+NamespaceSeparator+"*", 0).Iterator()
	for iter.Next(qctx) {
		if ns, ok := namespaceOf(iter.Val()); ok {
			seen[ns] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	namespaces := make([]string, 0, len(seen))
	for ns := range seen {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (c *redisCache) Drop(ctx context.Context, namespace string) (int, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	var removed int
	iter := c.client.Scan(qctx, 0, namespace+NamespaceSeparator+"*", 0).Iterator()
	for iter.Next(qctx) {
		n, err := c.client.Del(qctx, iter.Val()).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, iter.Err()
}

// Close is a no-op; the caller owns the redis.Client lifecycle.
func (c *redisCache) Close(_ context.Context) error {
	return nil
}

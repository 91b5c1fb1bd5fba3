package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// NamespaceSeparator splits a key into its namespace and the remainder.
// Keys written as "<namespace>:<rest>" can be enumerated and dropped as a
// group, which is how cache generations are retired.
const NamespaceSeparator = ":"

// Cache is a namespaced key/value store with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The bool reports whether the key was present
	// and unexpired.
	Get(ctx context.Context, key string) (bool, any, error)
	// Set stores a value with a TTL. If expires <= 0, the configured
	// default TTL is used.
	Set(ctx context.Context, key string, val any, expires time.Duration) error
	// Hits returns how many times a key has been read since it was set.
	Hits(ctx context.Context, key string) (bool, int)
	// Expire removes a single key.
	Expire(ctx context.Context, key string) (bool, error)
	// Namespaces lists the distinct namespaces currently present.
	Namespaces(ctx context.Context) ([]string, error)
	// Drop removes every key in the given namespace and returns how many
	// entries were removed.
	Drop(ctx context.Context, namespace string) (int, error)
	// Close shuts down the cache.
	Close(ctx context.Context) error
}

// Key joins a namespace and a bare key.
func Key(namespace, key string) string {
	return namespace + NamespaceSeparator + key
}

func namespaceOf(key string) (string, bool) {
	if i := strings.Index(key, NamespaceSeparator); i > 0 {
		return key[:i], true
	}
	return "", false
}

type value struct {
	object  any
	expires time.Time
	hits    int
}

// GetAs retrieves a typed value. In-memory backends return the stored object
// directly; serialized backends (Redis, SQLite) hand back []byte which is
// decoded with msgpack.
func GetAs[T any](ctx context.Context, c Cache, key string) (bool, T, error) {
	var zero T
	found, val, err := c.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return false, zero, fmt.Errorf("cache: failed to unmarshal value: %w", err)
		}
		return true, result, nil
	}
	return false, zero, fmt.Errorf("cache: cannot convert value of type %T to %T", val, zero)
}

// DefaultExpires is the default TTL used when Set is called with expires <= 0
// and no override was configured.
const DefaultExpires = 24 * time.Hour

// DefaultQueryTimeout bounds individual operations on I/O-backed caches.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	defaultExpires time.Duration
	queryTimeout   time.Duration
	expiryCheck    time.Duration
}

// Option configures a Cache implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		defaultExpires: DefaultExpires,
		queryTimeout:   DefaultQueryTimeout,
		expiryCheck:    time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithExpires sets the default TTL for values stored without one.
func WithExpires(d time.Duration) Option {
	return func(c *config) { c.defaultExpires = d }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed caches.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval for background expired-entry cleanup.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// Invoker produces a value of type T. The bool reports whether a value was
// found; return false to signal "not found" without caching a zero value.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper: it consults the cache for key first and only
// calls invoke on a miss. A successful invoke result is stored with the given
// TTL; a failed store is swallowed since the caller already has the value.
func Exec[T any](ctx context.Context, c Cache, key string, expires time.Duration, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := GetAs[T](ctx, c, key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}
	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}
	_ = c.Set(ctx, key, result, expires)
	return true, result, nil
}

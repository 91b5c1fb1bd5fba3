package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type inMemoryCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*value
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Cache = (*inMemoryCache)(nil)

// NewInMemory returns a new in-memory Cache. A background goroutine sweeps
// expired entries until the parent context is cancelled or Close is called.
func NewInMemory(parent context.Context, opts ...Option) Cache {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &inMemoryCache{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*value),
		cfg:     cfg,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}

func (c *inMemoryCache) Get(_ context.Context, key string) (bool, any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val, ok := c.entries[key]
	if !ok {
		return false, nil, nil
	}
	if val.expires.Before(time.Now()) {
		delete(c.entries, key)
		return false, nil, nil
	}
	val.hits++
	return true, val.object, nil
}

func (c *inMemoryCache) Set(_ context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	c.mutex.Lock()
	if v, ok := c.entries[key]; ok {
		v.hits = 0
		v.expires = time.Now().Add(expires)
		v.object = val
	} else {
		c.entries[key] = &value{val, time.Now().Add(expires), 0}
	}
	c.mutex.Unlock()
	return nil
}

func (c *inMemoryCache) Hits(_ context.Context, key string) (bool, int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if v, ok := c.entries[key]; ok {
		return true, v.hits
	}
	return false, 0
}

func (c *inMemoryCache) Expire(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mutex.Unlock()
	return ok, nil
}

func (c *inMemoryCache) Namespaces(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	c.mutex.Lock()
	for key := range c.entries {
		if ns, ok := namespaceOf(key); ok {
			seen[ns] = struct{}{}
		}
	}
	c.mutex.Unlock()
	namespaces := make([]string, 0, len(seen))
	for ns := range seen {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (c *inMemoryCache) Drop(_ context.Context, namespace string) (int, error) {
	prefix := namespace + NamespaceSeparator
	var removed int
	c.mutex.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mutex.Unlock()
	return removed, nil
}

func (c *inMemoryCache) Close(_ context.Context) error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *inMemoryCache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.mutex.Lock()
			for key, val := range c.entries {
				if val.expires.Before(now) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

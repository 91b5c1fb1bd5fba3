package offline

import (
	"context"
	"net/http"

	"github.com/praktikumlab/go-praktikum/cache"
)

// RoundTrip routes a request to its serving strategy. First match wins:
// non-GET and auth requests pass through untouched, backend API requests are
// network-first, static assets are cache-first, everything else (page
// navigations) is stale-while-revalidate.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.State() != StateActive {
		return c.base.RoundTrip(req)
	}
	if req.Method != http.MethodGet {
		return c.base.RoundTrip(req)
	}
	target := req.URL.String()
	if c.match.isAuth(target) {
		return c.base.RoundTrip(req)
	}
	if c.match.isAPI(target) {
		return c.networkFirst(req)
	}
	if c.match.isStatic(req.URL.Path) {
		return c.cacheFirst(req)
	}
	return c.staleWhileRevalidate(req)
}

// networkFirst tries the network and stores successful responses
// asynchronously; on network failure it falls back to the cache, and only
// when no cached entry exists does the failure reach the caller.
func (c *Controller) networkFirst(req *http.Request) (*http.Response, error) {
	key := requestKey(c.cfg.GenerationName(), req)
	resp, err := c.base.RoundTrip(req)
	if err == nil {
		if isSuccess(resp) {
			snap, serr := newSnapshot(resp)
			if serr != nil {
				return nil, serr
			}
			c.storeAsync(key, snap)
		}
		return resp, nil
	}
	if c.metrics != nil {
		c.metrics.NetworkFailures.WithLabelValues("network_first").Inc()
	}
	found, snap, cerr := cache.GetAs[Snapshot](req.Context(), c.store, key)
	if cerr == nil && found {
		c.countHit("network_first")
		return snap.Response(req), nil
	}
	c.countMiss("network_first")
	return nil, err
}

// cacheFirst serves a cached entry when present; otherwise it fetches from
// network, stores 2xx responses, and propagates fetch failures.
func (c *Controller) cacheFirst(req *http.Request) (*http.Response, error) {
	key := requestKey(c.cfg.GenerationName(), req)
	found, snap, err := cache.GetAs[Snapshot](req.Context(), c.store, key)
	if err == nil && found {
		c.countHit("cache_first")
		return snap.Response(req), nil
	}
	c.countMiss("cache_first")
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.NetworkFailures.WithLabelValues("cache_first").Inc()
		}
		return nil, err
	}
	if isSuccess(resp) {
		snap, serr := newSnapshot(resp)
		if serr != nil {
			return nil, serr
		}
		// Synchronous store so an immediate repeat is served from cache;
		// a store failure never fails the request.
		if serr := c.store.Set(req.Context(), key, snap, c.cfg.SnapshotTTL); serr != nil {
			c.log.Debug("cache store failed for %s: %v", key, serr)
		}
	}
	return resp, nil
}

// staleWhileRevalidate serves the cached entry immediately when present and
// refreshes it in the background; on a miss it blocks on the network. A
// failed navigation fetch is answered with the offline fallback page.
func (c *Controller) staleWhileRevalidate(req *http.Request) (*http.Response, error) {
	key := requestKey(c.cfg.GenerationName(), req)
	found, snap, err := cache.GetAs[Snapshot](req.Context(), c.store, key)
	if err == nil && found {
		c.countHit("stale_while_revalidate")
		c.revalidateAsync(key, req.Clone(context.Background()))
		return snap.Response(req), nil
	}
	c.countMiss("stale_while_revalidate")
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.NetworkFailures.WithLabelValues("stale_while_revalidate").Inc()
		}
		if isNavigation(req) {
			if fallback, ok := c.offlineFallback(req); ok {
				return fallback, nil
			}
		}
		return nil, err
	}
	if isSuccess(resp) {
		snap, serr := newSnapshot(resp)
		if serr != nil {
			return nil, serr
		}
		if serr := c.store.Set(req.Context(), key, snap, c.cfg.SnapshotTTL); serr != nil {
			c.log.Debug("cache store failed for %s: %v", key, serr)
		}
	}
	return resp, nil
}

// offlineFallback serves the precached offline page for a failed navigation.
func (c *Controller) offlineFallback(req *http.Request) (*http.Response, bool) {
	fallbackReq, err := http.NewRequest(http.MethodGet, c.cfg.Origin+c.cfg.OfflinePath, nil)
	if err != nil {
		return nil, false
	}
	key := requestKey(c.cfg.GenerationName(), fallbackReq)
	found, snap, err := cache.GetAs[Snapshot](req.Context(), c.store, key)
	if err != nil || !found {
		return nil, false
	}
	c.log.Debug("serving offline fallback for %s", req.URL.Path)
	return snap.Response(req), true
}

// storeAsync stores a snapshot in the background. Failures are swallowed and
// only logged, never surfaced to the requester.
func (c *Controller) storeAsync(key string, snap Snapshot) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer c.suppressPanic("background store")
		ctx, cancel := context.WithTimeout(context.Background(), cache.DefaultQueryTimeout)
		defer cancel()
		if err := c.store.Set(ctx, key, snap, c.cfg.SnapshotTTL); err != nil {
			c.log.Debug("cache store failed for %s: %v", key, err)
		}
	}()
}

// revalidateAsync refreshes a cached entry in the background. Concurrent
// revalidations of the same key collapse into one fetch; failures are
// swallowed.
func (c *Controller) revalidateAsync(key string, req *http.Request) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer c.suppressPanic("background revalidate")
		_, _, _ = c.revalidate.Do(key, func() (any, error) {
			resp, err := c.base.RoundTrip(req)
			if err != nil {
				c.log.Debug("revalidate failed for %s: %v", key, err)
				return nil, nil
			}
			snap, err := newSnapshot(resp)
			resp.Body.Close()
			if err != nil || !isSuccess(resp) {
				return nil, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), cache.DefaultQueryTimeout)
			defer cancel()
			if err := c.store.Set(ctx, key, snap, c.cfg.SnapshotTTL); err != nil {
				c.log.Debug("cache store failed for %s: %v", key, err)
			}
			return nil, nil
		})
	}()
}

// suppressPanic is the worker-level unhandled rejection guard: background
// failures are logged and kept out of the request path.
func (c *Controller) suppressPanic(what string) {
	if r := recover(); r != nil {
		c.log.Error("%s panicked: %v", what, r)
	}
}

func (c *Controller) countHit(strategy string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(strategy).Inc()
	}
}

func (c *Controller) countMiss(strategy string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(strategy).Inc()
	}
}

package offline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/praktikumlab/go-praktikum/cache"
	"github.com/praktikumlab/go-praktikum/logger"
)

// State is the controller lifecycle phase.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// precacheConcurrency bounds parallel fetches during install.
const precacheConcurrency = 4

// Controller intercepts requests and serves them from cache, from network, or
// a blend of both. It implements http.RoundTripper.
type Controller struct {
	cfg     Config
	match   *matcher
	store   cache.Cache
	base    http.RoundTripper
	log     logger.Logger
	metrics *Metrics

	state      atomic.Int32
	revalidate singleflight.Group
	background sync.WaitGroup
}

var _ http.RoundTripper = (*Controller)(nil)

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithTransport sets the base transport used for network fetches.
func WithTransport(rt http.RoundTripper) ControllerOption {
	return func(c *Controller) { c.base = rt }
}

// WithMetrics attaches strategy counters.
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// New constructs a Controller in the installing state. Call Install to
// precache and activate it.
func New(cfg Config, store cache.Cache, log logger.Logger, opts ...ControllerOption) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	match, err := newMatcher(cfg)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:   cfg,
		match: match,
		store: store,
		base:  http.DefaultTransport,
		log:   log.With(map[string]interface{}{"component": "offline", "version": cfg.Version}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(StateInstalling))
	return c, nil
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Version returns the cache-version identifier.
func (c *Controller) Version() string {
	return c.cfg.Version
}

// Install precaches the configured entry points into the current generation.
// Individual file failures are logged and skipped. When SkipWaiting is set
// the controller activates immediately, otherwise it parks in the waiting
// state until SkipWaiting is called.
func (c *Controller) Install(ctx context.Context) error {
	c.log.Debug("installing, precaching %d entries", len(c.cfg.Precache))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(precacheConcurrency)
	for _, path := range c.cfg.Precache {
		group.Go(func() error {
			if err := c.precacheOne(gctx, path); err != nil {
				c.log.Warn("precache failed for %s: %v", path, err)
				if c.metrics != nil {
					c.metrics.PrecacheFailures.Inc()
				}
			}
			return nil // per-file failures are non-fatal
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	c.state.Store(int32(StateWaiting))
	if c.cfg.SkipWaiting {
		return c.Activate(ctx)
	}
	return nil
}

func (c *Controller) precacheOne(ctx context.Context, path string) error {
	target := path
	if strings.HasPrefix(path, "/") {
		target = c.cfg.Origin + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return err
	}
	snap, err := newSnapshot(resp)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if !isSuccess(resp) {
		c.log.Warn("precache skipping %s, status %d", path, resp.StatusCode)
		return nil
	}
	return c.store.Set(ctx, requestKey(c.cfg.GenerationName(), req), snap, c.cfg.SnapshotTTL)
}

// Activate drops every generation other than the current one and begins
// intercepting requests.
func (c *Controller) Activate(ctx context.Context) error {
	c.state.Store(int32(StateActivating))
	namespaces, err := c.store.Namespaces(ctx)
	if err != nil {
		return err
	}
	live := c.cfg.GenerationName()
	for _, ns := range namespaces {
		if ns == live || !strings.HasPrefix(ns, c.cfg.CachePrefix+"-") {
			continue
		}
		removed, err := c.store.Drop(ctx, ns)
		if err != nil {
			return err
		}
		c.log.Info("deleted stale cache generation %s (%d entries)", ns, removed)
	}
	c.state.Store(int32(StateActive))
	c.log.Info("cache controller active")
	return nil
}

// SkipWaiting activates a controller parked in the waiting state.
func (c *Controller) SkipWaiting(ctx context.Context) error {
	if c.State() != StateWaiting {
		return nil
	}
	return c.Activate(ctx)
}

// ClearCache drops the live generation. It reports whether the drop
// succeeded.
func (c *Controller) ClearCache(ctx context.Context) bool {
	removed, err := c.store.Drop(ctx, c.cfg.GenerationName())
	if err != nil {
		c.log.Error("clear cache failed: %v", err)
		return false
	}
	c.log.Info("cleared %d cache entries", removed)
	return true
}

// Close waits for in-flight background stores and revalidations to settle.
func (c *Controller) Close() {
	c.background.Wait()
}

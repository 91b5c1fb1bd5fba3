package offline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praktikumlab/go-praktikum/cache"
	"github.com/praktikumlab/go-praktikum/logger"
)

type fakeTransport struct {
	mu     sync.Mutex
	calls  int
	err    error
	status int
	body   string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
		Request:    req,
	}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) set(err error, body string) {
	f.mu.Lock()
	f.err = err
	f.body = body
	f.mu.Unlock()
}

func testConfig(version string) Config {
	cfg := DefaultConfig(version)
	cfg.Origin = "https://app.test"
	cfg.Precache = nil
	cfg.SnapshotTTL = time.Minute
	return cfg
}

func newActiveController(t *testing.T, cfg Config, store cache.Cache, rt http.RoundTripper) *Controller {
	t.Helper()
	c, err := New(cfg, store, logger.NewTestLogger(), WithTransport(rt))
	require.NoError(t, err)
	require.NoError(t, c.Activate(context.Background()))
	return c
}

func mustGet(t *testing.T, c *Controller, url string, header http.Header) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return c.RoundTrip(req)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return string(body)
}

func TestNonGETPassesThrough(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "created"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	req, _ := http.NewRequest(http.MethodPost, "https://app.test/rest/v1/kuis", nil)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	namespaces, err := store.Namespaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, namespaces, "non-GET must never be cached")
}

func TestAuthNeverCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "token"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	resp, err := mustGet(t, c, "https://backend.test/auth/v1/token", nil)
	require.NoError(t, err)
	resp.Body.Close()
	c.Close()

	namespaces, err := store.Namespaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, namespaces)

	// On network failure an auth request propagates the error, never the cache.
	rt.set(errors.New("offline"), "")
	_, err = mustGet(t, c, "https://backend.test/auth/v1/token", nil)
	assert.Error(t, err)
}

func TestNetworkFirstStoresAndFallsBack(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: `[{"id":1}]`}
	c := newActiveController(t, testConfig("v1"), store, rt)

	resp, err := mustGet(t, c, "https://backend.test/rest/v1/kuis?select=*", nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, readBody(t, resp))

	// The successful response lands in the cache eventually.
	c.Close()

	// Network failure falls back to the stored snapshot.
	rt.set(errors.New("connection refused"), "")
	resp, err = mustGet(t, c, "https://backend.test/rest/v1/kuis?select=*", nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, readBody(t, resp))

	// With no cached entry, the failure propagates.
	_, err = mustGet(t, c, "https://backend.test/rest/v1/bookings", nil)
	assert.Error(t, err)
}

func TestNetworkFirstQueryOrderInsensitive(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "rows"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	resp, err := mustGet(t, c, "https://backend.test/rest/v1/kuis?b=2&a=1", nil)
	require.NoError(t, err)
	resp.Body.Close()
	c.Close()

	rt.set(errors.New("offline"), "")
	resp, err = mustGet(t, c, "https://backend.test/rest/v1/kuis?a=1&b=2", nil)
	require.NoError(t, err)
	assert.Equal(t, "rows", readBody(t, resp))
}

func TestCacheFirstSecondRequestSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "body{}"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	resp, err := mustGet(t, c, "https://app.test/assets/main.css", nil)
	require.NoError(t, err)
	assert.Equal(t, "body{}", readBody(t, resp))
	assert.Equal(t, 1, rt.callCount())

	resp, err = mustGet(t, c, "https://app.test/assets/main.css", nil)
	require.NoError(t, err)
	assert.Equal(t, "body{}", readBody(t, resp))
	assert.Equal(t, 1, rt.callCount(), "repeat must be served from cache")
}

func TestCacheFirstMissPropagatesFailure(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{err: errors.New("offline")}
	c := newActiveController(t, testConfig("v1"), store, rt)

	_, err := mustGet(t, c, "https://app.test/assets/app.js", nil)
	assert.Error(t, err)
}

func TestCacheFirstDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{status: http.StatusNotFound, body: "missing"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	resp, err := mustGet(t, c, "https://app.test/assets/gone.svg", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = mustGet(t, c, "https://app.test/assets/gone.svg", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 2, rt.callCount(), "404 must not be cached")
}

func TestStaleWhileRevalidateServesCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "first"}
	c := newActiveController(t, testConfig("v1"), store, rt)

	// Miss: blocks on network and stores.
	resp, err := mustGet(t, c, "https://app.test/dashboard", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", readBody(t, resp))

	// Hit: cached copy wins even though the network now fails.
	rt.set(errors.New("offline"), "")
	resp, err = mustGet(t, c, "https://app.test/dashboard", nil)
	require.NoError(t, err, "network outcome must not surface on a cache hit")
	assert.Equal(t, "first", readBody(t, resp))
	c.Close()

	// Background refresh picks up new content for the next read.
	rt.set(nil, "second")
	resp, err = mustGet(t, c, "https://app.test/dashboard", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", readBody(t, resp), "stale copy served while revalidating")
	c.Close()

	resp, err = mustGet(t, c, "https://app.test/dashboard", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", readBody(t, resp))
	c.Close()
}

func TestOfflineFallbackForNavigation(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	cfg := testConfig("v1")
	rt := &fakeTransport{body: "<h1>offline</h1>"}
	c := newActiveController(t, cfg, store, rt)

	// Precache the offline page by requesting it once.
	resp, err := mustGet(t, c, cfg.Origin+cfg.OfflinePath, nil)
	require.NoError(t, err)
	resp.Body.Close()

	rt.set(errors.New("network down"), "")

	nav := http.Header{"Accept": []string{"text/html,application/xhtml+xml"}}
	resp, err = mustGet(t, c, "https://app.test/kuis/123", nav)
	require.NoError(t, err, "navigation failure is substituted with the offline page")
	assert.Equal(t, "<h1>offline</h1>", readBody(t, resp))

	// Non-navigation requests still see the original error.
	_, err = mustGet(t, c, "https://app.test/some-data", nil)
	assert.Error(t, err)
}

func TestInactiveControllerPassesThrough(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemory(ctx)
	defer store.Close(ctx)
	rt := &fakeTransport{body: "x"}
	c, err := New(testConfig("v1"), store, logger.NewTestLogger(), WithTransport(rt))
	require.NoError(t, err)
	assert.Equal(t, StateInstalling, c.State())

	resp, err := mustGet(t, c, "https://app.test/assets/main.css", nil)
	require.NoError(t, err)
	resp.Body.Close()

	namespaces, err := store.Namespaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, namespaces)
}

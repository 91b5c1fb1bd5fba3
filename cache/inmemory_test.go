package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	defer c.Close(ctx)

	found, val, err := c.Get(ctx, "v1:test")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	assert.NoError(t, c.Set(ctx, "v1:test", "value", 10*time.Millisecond))
	found, val, err = c.Get(ctx, "v1:test")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)

	ok, hits := c.Hits(ctx, "v1:test")
	assert.True(t, ok)
	assert.Equal(t, 1, hits)

	time.Sleep(11 * time.Millisecond)
	found, _, err = c.Get(ctx, "v1:test")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestBackgroundSweep(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(50*time.Millisecond))
	defer c.Close(ctx)

	require.NoError(t, c.Set(ctx, "v1:a", "x", 30*time.Millisecond))
	time.Sleep(120 * time.Millisecond)

	impl := c.(*inMemoryCache)
	impl.mutex.Lock()
	assert.Empty(t, impl.entries)
	impl.mutex.Unlock()
}

func TestNamespacesAndDrop(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	defer c.Close(ctx)

	require.NoError(t, c.Set(ctx, Key("praktikum-v1", "a"), 1, time.Minute))
	require.NoError(t, c.Set(ctx, Key("praktikum-v1", "b"), 2, time.Minute))
	require.NoError(t, c.Set(ctx, Key("praktikum-v2", "a"), 3, time.Minute))

	namespaces, err := c.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"praktikum-v1", "praktikum-v2"}, namespaces)

	removed, err := c.Drop(ctx, "praktikum-v1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	namespaces, err = c.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"praktikum-v2"}, namespaces)

	found, _, err := c.Get(ctx, Key("praktikum-v2", "a"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSetResetsHits(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	defer c.Close(ctx)

	require.NoError(t, c.Set(ctx, "v1:k", "a", time.Minute))
	_, _, _ = c.Get(ctx, "v1:k")
	_, _, _ = c.Get(ctx, "v1:k")
	require.NoError(t, c.Set(ctx, "v1:k", "b", time.Minute))
	ok, hits := c.Hits(ctx, "v1:k")
	assert.True(t, ok)
	assert.Equal(t, 0, hits)
}

func TestExecCacheAside(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	defer c.Close(ctx)

	var calls int
	invoke := func(ctx context.Context) (string, bool, error) {
		calls++
		return "resolved", true, nil
	}

	found, val, err := Exec(ctx, c, "v1:user", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "resolved", val)
	assert.Equal(t, 1, calls)

	// Second call answers from cache.
	found, val, err = Exec(ctx, c, "v1:user", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "resolved", val)
	assert.Equal(t, 1, calls)
}

func TestExecNotFoundNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	defer c.Close(ctx)

	var calls int
	invoke := func(ctx context.Context) (string, bool, error) {
		calls++
		return "", false, nil
	}

	for i := 0; i < 2; i++ {
		found, _, err := Exec(ctx, c, "v1:missing", time.Minute, invoke)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, 2, calls)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompositePair(t *testing.T) (Cache, Cache, Cache) {
	t.Helper()
	ctx := context.Background()
	fast := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	slow := NewInMemory(ctx, WithExpiryCheck(time.Minute))
	c := NewComposite(fast, slow)
	t.Cleanup(func() { _ = c.Close(ctx) })
	return c, fast, slow
}

func TestCompositeGetFirstHitWins(t *testing.T) {
	ctx := context.Background()
	c, fast, slow := newCompositePair(t)

	// Only the second layer holds the value.
	require.NoError(t, slow.Set(ctx, "v1:k", "behind", time.Minute))
	found, val, err := c.Get(ctx, "v1:k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "behind", val)

	// The first layer shadows it once populated.
	require.NoError(t, fast.Set(ctx, "v1:k", "front", time.Minute))
	found, val, err = c.Get(ctx, "v1:k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "front", val)
}

func TestCompositeSetWritesAllLayers(t *testing.T) {
	ctx := context.Background()
	c, fast, slow := newCompositePair(t)

	require.NoError(t, c.Set(ctx, "v1:k", "both", time.Minute))
	for _, layer := range []Cache{fast, slow} {
		found, val, err := layer.Get(ctx, "v1:k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "both", val)
	}
}

func TestCompositeMiss(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCompositePair(t)

	found, val, err := c.Get(ctx, "v1:absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestCompositeNamespacesUnion(t *testing.T) {
	ctx := context.Background()
	c, fast, slow := newCompositePair(t)

	require.NoError(t, fast.Set(ctx, Key("praktikum-v1", "a"), 1, time.Minute))
	require.NoError(t, slow.Set(ctx, Key("praktikum-v1", "b"), 2, time.Minute))
	require.NoError(t, slow.Set(ctx, Key("praktikum-v2", "a"), 3, time.Minute))

	namespaces, err := c.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"praktikum-v1", "praktikum-v2"}, namespaces)
}

func TestCompositeDropSpansLayers(t *testing.T) {
	ctx := context.Background()
	c, fast, slow := newCompositePair(t)

	require.NoError(t, fast.Set(ctx, Key("praktikum-v1", "a"), 1, time.Minute))
	require.NoError(t, slow.Set(ctx, Key("praktikum-v1", "b"), 2, time.Minute))
	require.NoError(t, slow.Set(ctx, Key("praktikum-v2", "a"), 3, time.Minute))

	removed, err := c.Drop(ctx, "praktikum-v1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, layer := range []Cache{fast, slow} {
		found, _, err := layer.Get(ctx, Key("praktikum-v1", "a"))
		require.NoError(t, err)
		assert.False(t, found)
	}
	found, _, err := c.Get(ctx, Key("praktikum-v2", "a"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCompositeExpire(t *testing.T) {
	ctx := context.Background()
	c, _, slow := newCompositePair(t)

	require.NoError(t, slow.Set(ctx, "v1:k", "x", time.Minute))
	found, err := c.Expire(ctx, "v1:k")
	require.NoError(t, err)
	assert.True(t, found)

	found, _, err = c.Get(ctx, "v1:k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompositeExecCacheAside(t *testing.T) {
	ctx := context.Background()
	c, fast, _ := newCompositePair(t)

	var calls int
	invoke := func(ctx context.Context) (string, bool, error) {
		calls++
		return "resolved", true, nil
	}

	found, val, err := Exec(ctx, c, "v1:user", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "resolved", val)
	require.Equal(t, 1, calls)

	// The stored value now answers from the front layer.
	found, val, err = Exec(ctx, fast, "v1:user", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "resolved", val)
	assert.Equal(t, 1, calls)
}

func TestCompositeRequiresCaches(t *testing.T) {
	assert.Panics(t, func() { NewComposite() })
}

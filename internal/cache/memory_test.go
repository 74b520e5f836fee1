package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
)

func TestMemoryClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(4)
	defer c.Close()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("png"), time.Minute))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(4)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("x"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("y"), 0))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryClient_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "new", []byte("4"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, RasterKey("doc1", 1, 1.5, 2), []byte("a"), 0))
	require.NoError(t, c.Set(ctx, RasterKey("doc1", 2, 1.5, 2), []byte("b"), 0))
	require.NoError(t, c.Set(ctx, RasterKey("doc2", 1, 1.5, 2), []byte("c"), 0))

	require.NoError(t, c.DeleteByPrefix(ctx, DocumentPrefix("doc1")))
	assert.Equal(t, 1, c.Len())
}

func TestRasterKey(t *testing.T) {
	assert.Equal(t, "raster:abc:3:1.5000:2.4000", RasterKey("abc", 3, 1.5, 2.4))
	assert.Equal(t, "a:b", Key("a", "b"))
}

func TestNew_Memory(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: "memory", MaxEntries: 3})
	require.NoError(t, err)
	defer c.Close()
	_, ok := c.(*MemoryClient)
	assert.True(t, ok)

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

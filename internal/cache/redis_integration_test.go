//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"voeventdb/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheGenerations(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCache(testutil.Redis(t), time.Minute)

	var got map[string]int
	gen, hit, err := c.GetJSON(ctx, "map/role_count", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, gen, "map/role_count", map[string]int{"observation": 3}))
	_, hit, err = c.GetJSON(ctx, "map/role_count", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, map[string]int{"observation": 3}, got)

	require.NoError(t, c.Invalidate(ctx))
	got = nil
	next, hit, err := c.GetJSON(ctx, "map/role_count", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entries from older generations are not read")
	assert.Equal(t, gen+1, next)
}

func TestRedisCacheWriteAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCache(testutil.Redis(t), time.Minute)

	var got map[string]int
	gen, hit, err := c.GetJSON(ctx, "map/stream_count", &got)
	require.NoError(t, err)
	require.False(t, hit)

	// An ingest lands between the miss and the write.
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.SetJSON(ctx, gen, "map/stream_count", map[string]int{"stale": 1}))

	_, hit, err = c.GetJSON(ctx, "map/stream_count", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionedKey(t *testing.T) {
	assert.Equal(t, "voeventdb:g0:map/role_count?stream=a", VersionedKey(0, "map/role_count?stream=a"))
	assert.NotEqual(t, VersionedKey(1, "k"), VersionedKey(2, "k"))
}

func TestNoopNeverHits(t *testing.T) {
	ctx := context.Background()
	c := Noop()

	require.NoError(t, c.SetJSON(ctx, 0, "k", map[string]int{"a": 1}))
	var got map[string]int
	_, hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx))
}

package moderation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRiskStore(t *testing.T) {
	store := NewMemoryRiskStore()
	ctx := context.Background()

	_, err := store.Add(ctx, "a", 0.25)
	require.NoError(t, err)
	total, err := store.Add(ctx, "a", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)

	other, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestRedisRiskStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisRiskStore(client)
	ctx := context.Background()

	missing, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, missing)

	_, err = store.Add(ctx, "a", 0.5)
	require.NoError(t, err)
	total, err := store.Add(ctx, "a", 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-9)
}

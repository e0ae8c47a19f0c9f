package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
)

func newStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewIdempotencyStore(NewRedisClient(RedisConfig{Addr: mr.Addr()}), time.Hour, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestIdempotencyStore_ReserveSaveReplay(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must fail")

	pending, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, pending)

	want := &port.StoredResponse{StatusCode: 201, Body: []byte(`{"success":true}`)}
	require.NoError(t, store.Save(ctx, "k1", want))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"k1"))
}

func TestIdempotencyStore_ReleaseAndExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k2")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "k2"))
	ok, err = store.Reserve(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be reserved again")

	mr.FastForward(2 * time.Hour)
	missing, err := store.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIdempotencyStore_Unavailable(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))

	down := NewIdempotencyStore(NewRedisClient(RedisConfig{Addr: "127.0.0.1:1"}), 0, zap.NewNop())
	defer down.Close()

	_, err := down.Reserve(context.Background(), "k3")
	assert.Error(t, err)
	assert.Error(t, down.HealthCheck(context.Background()))
	assert.Equal(t, 24*time.Hour, down.ttl)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/config"
)

func newTestStore(t *testing.T) (*SeenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := New(context.Background(), config.RedisConfig{
		Addr:      mr.Addr(),
		KeyPrefix: "test",
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestMarkAndCheck(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	seen, err := store.IsProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkProcessed(ctx, "c1"))
	require.NoError(t, store.MarkProcessed(ctx, "c1"))

	seen, err = store.IsProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.True(t, mr.Exists("test:processed_comments"))
	assert.Equal(t, time.Hour, mr.TTL("test:processed_comments"))
}

func TestEntriesExpire(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.MarkProcessed(ctx, "c1"))
	mr.FastForward(2 * time.Hour)

	seen, err := store.IsProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestErrorsWhenServerGoesAway(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.IsProcessed(context.Background(), "c1")
	assert.Error(t, err)
	assert.Error(t, store.MarkProcessed(context.Background(), "c1"))
}

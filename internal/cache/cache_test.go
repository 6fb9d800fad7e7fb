package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/metadata"
	"songrecognition/internal/recognition"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStore_SetGet(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(val))

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with its ttl")
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))

	_, ok, _ := m.Get(ctx, "a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, 1, m.Len())
}

type countingBackend struct {
	lookups int
	err     error
}

func (c *countingBackend) Recognize(context.Context, []byte) (recognition.Candidate, error) {
	return recognition.Candidate{Matches: []recognition.Match{{ID: 7}}}, nil
}

func (c *countingBackend) Lookup(_ context.Context, id int64) (metadata.Track, error) {
	c.lookups++
	if c.err != nil {
		return metadata.Track{}, c.err
	}
	return metadata.Track{Key: "7", Title: "Cached Song"}, nil
}

func TestBackend_LookupIsCached(t *testing.T) {
	_, store := setupRedis(t)
	next := &countingBackend{}
	b := NewBackend(next, store, time.Hour, logger.Nop())
	ctx := context.Background()

	for range 3 {
		track, err := b.Lookup(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Cached Song", track.Title)
	}
	assert.Equal(t, 1, next.lookups)

	cand, err := b.Recognize(ctx, []byte("clip"))
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, cand.IDs())
}

func TestBackend_ErrorsAreNotCached(t *testing.T) {
	store := NewMemoryStore()
	next := &countingBackend{err: apperr.ErrNoMatch}
	b := NewBackend(next, store, time.Hour, nil)

	for range 2 {
		_, err := b.Lookup(context.Background(), 7)
		assert.True(t, errors.Is(err, apperr.ErrNoMatch))
	}
	assert.Equal(t, 2, next.lookups)
	assert.Equal(t, 0, store.Len())
}

func TestBackend_StoreFailureFallsThrough(t *testing.T) {
	mr, store := setupRedis(t)
	mr.SetError("ERR injected failure")
	next := &countingBackend{}
	b := NewBackend(next, store, time.Hour, nil)

	track, err := b.Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Cached Song", track.Title)
	assert.Equal(t, 1, next.lookups)
}

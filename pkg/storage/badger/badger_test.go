package badger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
	"github.com/nicktill/tracedump/pkg/storage/storagetest"
)

func TestBadgerStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		store, err := New(Config{InMemory: true})
		require.NoError(t, err)
		return store
	})
}

func TestBadgerStorage_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := series.Bucket{Key: storagetest.KeyA, Direction: series.Write, Second: 42, Bytes: 9, Packets: 3}

	{
		store, err := New(Config{Path: dir})
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, []series.Bucket{b}))
		require.NoError(t, store.Close())
	}

	store, err := New(Config{Path: dir, MaxMemoryMB: 32})
	require.NoError(t, err)
	defer store.Close()

	// Merging continues across restarts
	require.NoError(t, store.Write(ctx, []series.Bucket{b}))
	got, err := store.Query(ctx, storage.All())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(18), got[0].Bytes)
	assert.Equal(t, int64(6), got[0].Packets)
}

func TestBadgerStorage_LargeWrite(t *testing.T) {
	store, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	buckets := make([]series.Bucket, 0, 2*writeChunk+10)
	for i := 0; i < cap(buckets); i++ {
		buckets = append(buckets, series.Bucket{Key: storagetest.KeyA, Direction: series.Read, Second: int64(i), Bytes: 1, Packets: 1})
	}
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, buckets))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(buckets)), stats.TotalBuckets)
	assert.Equal(t, uint64(1), stats.TotalSeries)
}

func TestKeyLayout(t *testing.T) {
	tests := []struct {
		second int64
		dir    series.Direction
	}{
		{-100, series.Read},
		{0, series.Write},
		{1700000000, series.Read},
	}
	for _, tt := range tests {
		key := makeKey(storagetest.KeyA, tt.dir, tt.second)
		require.Len(t, key, keySize)

		_, second, dir := parseKey(key)
		assert.Equal(t, tt.second, second)
		assert.Equal(t, tt.dir, dir)
	}

	// Seconds sort numerically, negatives first
	a := makeKey(storagetest.KeyA, series.Read, -1)
	b := makeKey(storagetest.KeyA, series.Read, 0)
	c := makeKey(storagetest.KeyA, series.Read, 1)
	assert.Equal(t, -1, bytes.Compare(a, b))
	assert.Equal(t, -1, bytes.Compare(b, c))

	assert.True(t, bytes.HasPrefix(a, keyPrefix(storagetest.KeyA)))
	assert.False(t, bytes.HasPrefix(a, keyPrefix(storagetest.KeyB)))
}

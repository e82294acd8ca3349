// Package storagetest holds the behavior every storage backend shares.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

const (
	KeyA = "tcp:8080:[127.0.0.1]:443"
	KeyB = "udp:53:[8.8.8.8]:53"
)

// Run exercises a backend. newStore must return an empty store; the suite
// closes it.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"WriteAndQuery", testWriteAndQuery},
		{"WriteMerges", testWriteMerges},
		{"QueryFilters", testQueryFilters},
		{"Delete", testDelete},
		{"Stats", testStats},
		{"RejectsInvalid", testRejectsInvalid},
		{"CancelledContext", testCancelledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func sample() []series.Bucket {
	return []series.Bucket{
		{Key: KeyB, Direction: series.Write, Second: 100, Bytes: 7, Packets: 1},
		{Key: KeyA, Direction: series.Write, Second: 101, Bytes: 20, Packets: 2},
		{Key: KeyA, Direction: series.Read, Second: 100, Bytes: 10, Packets: 1},
		{Key: KeyA, Direction: series.Read, Second: -5, Bytes: 1, Packets: 1},
	}
}

func testWriteAndQuery(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, sample()))

	got, err := s.Query(ctx, storage.All())
	require.NoError(t, err)
	assert.Equal(t, []series.Bucket{
		{Key: KeyA, Direction: series.Read, Second: -5, Bytes: 1, Packets: 1},
		{Key: KeyA, Direction: series.Read, Second: 100, Bytes: 10, Packets: 1},
		{Key: KeyA, Direction: series.Write, Second: 101, Bytes: 20, Packets: 2},
		{Key: KeyB, Direction: series.Write, Second: 100, Bytes: 7, Packets: 1},
	}, got)
}

func testWriteMerges(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	b := series.Bucket{Key: KeyA, Direction: series.Read, Second: 100, Bytes: 10, Packets: 1}
	require.NoError(t, s.Write(ctx, []series.Bucket{b}))
	require.NoError(t, s.Write(ctx, []series.Bucket{b, b}))

	got, err := s.Query(ctx, storage.All())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(30), got[0].Bytes)
	assert.Equal(t, int64(3), got[0].Packets)
}

func testQueryFilters(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, sample()))

	got, err := s.Query(ctx, storage.QueryRequest{Start: 100, End: 100})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KeyA, got[0].Key)
	assert.Equal(t, KeyB, got[1].Key)

	got, err = s.Query(ctx, storage.QueryRequest{Start: 0, End: 1000, Keys: []string{KeyA}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, b := range got {
		assert.Equal(t, KeyA, b.Key)
	}

	req := storage.All()
	req.Limit = 3
	got, err = s.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Query(ctx, storage.QueryRequest{Start: 0, End: 1000, Keys: []string{"missing"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDelete(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, sample()))
	require.NoError(t, s.Delete(ctx, 101))

	got, err := s.Query(ctx, storage.All())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(101), got[0].Second)
}

func testStats(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalBuckets)

	require.NoError(t, s.Write(ctx, sample()))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.TotalBuckets)
	assert.Equal(t, uint64(2), stats.TotalSeries)
	assert.Equal(t, uint64(5), stats.TotalPackets)
	assert.Equal(t, uint64(38), stats.TotalBytes)
	assert.Equal(t, int64(-5), stats.Oldest)
	assert.Equal(t, int64(101), stats.Newest)
}

func testRejectsInvalid(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	err := s.Write(ctx, []series.Bucket{
		{Key: KeyA, Direction: series.Read, Second: 1, Bytes: 1, Packets: 1},
		{Key: KeyA, Direction: "up", Second: 1, Bytes: 1, Packets: 1},
	})
	var invalid *storage.InvalidBucketError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, 1, invalid.Index)

	got, err := s.Query(ctx, storage.All())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testCancelledContext(t *testing.T, s storage.Storage) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Write(ctx, sample()), context.Canceled)
	_, err := s.Query(ctx, storage.All())
	assert.ErrorIs(t, err, context.Canceled)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nicktill/tracedump/pkg/series"
)

// ErrUnknownBackend is returned when a store name is not recognized.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Storage defines the interface for bucket storage backends.
// Implementations: memory (testing), badger and sqlite (persistent)
type Storage interface {
	// Write merges buckets into the store, adding their totals to any
	// bucket already stored for the same key, direction and second
	Write(ctx context.Context, buckets []series.Bucket) error

	// Query retrieves buckets ordered by key, direction and second
	Query(ctx context.Context, req QueryRequest) ([]series.Bucket, error)

	// Delete removes buckets older than the given second
	Delete(ctx context.Context, before int64) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what buckets to retrieve
type QueryRequest struct {
	// Inclusive range of seconds
	Start int64
	End   int64

	// Filter by endpoint key (optional)
	Keys []string

	// Limit number of results (0 = no limit)
	Limit int
}

// All matches every stored bucket.
func All() QueryRequest {
	return QueryRequest{Start: math.MinInt64, End: math.MaxInt64}
}

// Matches applies the time range and key filters to b.
func (r QueryRequest) Matches(b series.Bucket) bool {
	if b.Second < r.Start || b.Second > r.End {
		return false
	}
	if len(r.Keys) == 0 {
		return true
	}
	for _, k := range r.Keys {
		if k == b.Key {
			return true
		}
	}
	return false
}

// Stats provides storage health and usage info
type Stats struct {
	TotalBuckets uint64 `json:"total_buckets"`
	TotalSeries  uint64 `json:"total_series"`
	TotalPackets uint64 `json:"total_packets"`
	TotalBytes   uint64 `json:"total_bytes"`

	// Storage size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	// Oldest and newest bucket second, zero when empty
	Oldest int64 `json:"oldest"`
	Newest int64 `json:"newest"`
}

// Sort orders buckets by key, direction and second.
func Sort(buckets []series.Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Second < b.Second
	})
}

// Validate checks every bucket of a write.
func Validate(buckets []series.Bucket) error {
	for i, b := range buckets {
		if err := b.Validate(); err != nil {
			return &InvalidBucketError{Index: i, Err: err}
		}
	}
	return nil
}

// InvalidBucketError reports the first invalid bucket of a write.
type InvalidBucketError struct {
	Index int
	Err   error
}

func (e *InvalidBucketError) Error() string {
	return fmt.Sprintf("invalid bucket %d: %v", e.Index, e.Err)
}

func (e *InvalidBucketError) Unwrap() error { return e.Err }

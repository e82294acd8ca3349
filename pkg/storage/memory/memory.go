package memory

import (
	"context"
	"sync"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

type bucketID struct {
	key    string
	dir    series.Direction
	second int64
}

// Storage stores buckets in memory. Data is lost on restart.
// Useful for testing and one-shot runs.
type Storage struct {
	buckets map[bucketID]*series.Bucket
	mu      sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		buckets: make(map[bucketID]*series.Bucket),
	}
}

// Write merges buckets into memory
func (s *Storage) Write(ctx context.Context, buckets []series.Bucket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.Validate(buckets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range buckets {
		id := bucketID{key: b.Key, dir: b.Direction, second: b.Second}
		if cur, ok := s.buckets[id]; ok {
			cur.Bytes += b.Bytes
			cur.Packets += b.Packets
			continue
		}
		stored := b
		s.buckets[id] = &stored
	}
	return nil
}

// Query retrieves buckets matching the request
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]series.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]series.Bucket, 0)
	for _, b := range s.buckets {
		if req.Matches(*b) {
			results = append(results, *b)
		}
	}
	s.mu.RUnlock()

	storage.Sort(results)
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// Delete removes buckets older than the given second
func (s *Storage) Delete(ctx context.Context, before int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.buckets {
		if id.second < before {
			delete(s.buckets, id)
		}
	}
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalBuckets: uint64(len(s.buckets)),
	}

	seriesMap := make(map[string]bool)
	first := true
	for _, b := range s.buckets {
		seriesMap[b.Key] = true
		stats.TotalPackets += uint64(b.Packets)
		stats.TotalBytes += uint64(b.Bytes)

		if first || b.Second < stats.Oldest {
			stats.Oldest = b.Second
		}
		if first || b.Second > stats.Newest {
			stats.Newest = b.Second
		}
		first = false
	}
	stats.TotalSeries = uint64(len(seriesMap))

	// Rough size estimate (each bucket ~100 bytes)
	stats.SizeBytes = uint64(len(s.buckets)) * 100

	return stats, nil
}

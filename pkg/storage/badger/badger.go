package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

const (
	keySize = 17

	// writeChunk bounds the buckets merged per transaction
	writeChunk = 1000
)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 48 MB)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	// 16 MB memtable by default; below that badger flushes constantly
	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}

	// Block and index caches are unbounded unless set
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// Write merges buckets into BadgerDB. Each chunk of buckets is one
// transaction; a failed chunk leaves earlier chunks applied.
func (s *Storage) Write(ctx context.Context, buckets []series.Bucket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.Validate(buckets); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		for start := 0; start < len(buckets); start += writeChunk {
			end := start + writeChunk
			if end > len(buckets) {
				end = len(buckets)
			}
			if err := ctx.Err(); err != nil {
				done <- err
				return
			}
			if err := s.db.Update(func(txn *badger.Txn) error {
				return mergeChunk(txn, buckets[start:end])
			}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

func mergeChunk(txn *badger.Txn, buckets []series.Bucket) error {
	for _, b := range buckets {
		key := makeKey(b.Key, b.Direction, b.Second)

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("failed to read bucket: %w", err)
		default:
			var cur series.Bucket
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &cur)
			}); err != nil {
				return fmt.Errorf("failed to decode bucket: %w", err)
			}
			if cur.Key != b.Key {
				return fmt.Errorf("hash collision between %q and %q", cur.Key, b.Key)
			}
			b.Bytes += cur.Bytes
			b.Packets += cur.Packets
		}

		value, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode bucket: %w", err)
		}
		if err := txn.Set(key, value); err != nil {
			return fmt.Errorf("failed to write bucket: %w", err)
		}
	}
	return nil
}

// Query retrieves buckets matching the request. With a key filter only the
// prefixes of those keys are scanned.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]series.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		results []series.Bucket
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		startTime := time.Now()
		var iterCount int

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100

			visit := func(it *badger.Iterator) error {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				var b series.Bucket
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &b)
				}); err != nil {
					return fmt.Errorf("failed to decode bucket: %w", err)
				}
				if req.Matches(b) {
					res.results = append(res.results, b)
				}
				return nil
			}

			if len(req.Keys) == 0 {
				it := txn.NewIterator(opts)
				defer it.Close()
				for it.Rewind(); it.Valid(); it.Next() {
					if err := visit(it); err != nil {
						return err
					}
				}
				return nil
			}

			for _, key := range req.Keys {
				prefix := keyPrefix(key)
				opts.Prefix = prefix
				it := txn.NewIterator(opts)
				for it.Seek(append(prefix, encodeSecond(req.Start)...)); it.ValidForPrefix(prefix); it.Next() {
					if _, second, _ := parseKey(it.Item().Key()); second > req.End {
						break
					}
					if err := visit(it); err != nil {
						it.Close()
						return err
					}
				}
				it.Close()
			}
			return nil
		})

		if elapsed := time.Since(startTime); elapsed > 5*time.Second {
			log.Printf("⚠️  Slow query completed in %v (%d iterations, %d results)", elapsed, iterCount, len(res.results))
		}

		storage.Sort(res.results)
		if req.Limit > 0 && len(res.results) > req.Limit {
			res.results = res.results[:req.Limit]
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.results == nil && res.err == nil {
			res.results = []series.Bucket{}
		}
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// Delete removes buckets older than the given second
func (s *Storage) Delete(ctx context.Context, before int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		var keysToDelete [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if _, second, _ := parseKey(it.Item().Key()); second < before {
					keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
				}
			}
			return nil
		})
		if err != nil {
			done <- err
			return
		}

		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				done <- fmt.Errorf("failed to delete bucket: %w", err)
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delete operation cancelled: %w", ctx.Err())
	}
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection. badger.ErrNoRewrite
// means there was nothing to reclaim.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			seriesMap := make(map[uint64]bool)
			for it.Rewind(); it.Valid(); it.Next() {
				if stats.TotalBuckets%1000 == 999 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				hash, second, _ := parseKey(it.Item().Key())
				var b series.Bucket
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &b)
				}); err != nil {
					return fmt.Errorf("failed to decode bucket: %w", err)
				}

				if stats.TotalBuckets == 0 || second < stats.Oldest {
					stats.Oldest = second
				}
				if stats.TotalBuckets == 0 || second > stats.Newest {
					stats.Newest = second
				}
				stats.TotalBuckets++
				stats.TotalPackets += uint64(b.Packets)
				stats.TotalBytes += uint64(b.Bytes)
				seriesMap[hash] = true
			}
			stats.TotalSeries = uint64(len(seriesMap))
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}
		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// makeKey creates a sortable key: series_hash + second + direction
// Format: [series_hash (8 bytes)][second (8 bytes)][direction (1 byte)]
func makeKey(key string, dir series.Direction, second int64) []byte {
	out := make([]byte, 0, keySize)
	out = append(out, keyPrefix(key)...)
	out = append(out, encodeSecond(second)...)
	if dir == series.Write {
		return append(out, 1)
	}
	return append(out, 0)
}

func keyPrefix(key string) []byte {
	return binary.BigEndian.AppendUint64(nil, xxhash.Sum64String(key))
}

// encodeSecond flips the sign bit so negative seconds sort first.
func encodeSecond(second int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(second)^(1<<63))
}

// parseKey extracts the series hash, second and direction from a storage key
func parseKey(key []byte) (hash uint64, second int64, dir series.Direction) {
	if len(key) != keySize {
		return 0, 0, ""
	}
	hash = binary.BigEndian.Uint64(key[0:8])
	second = int64(binary.BigEndian.Uint64(key[8:16]) ^ (1 << 63))
	dir = series.Read
	if key[16] == 1 {
		dir = series.Write
	}
	return hash, second, dir
}

/*
Package storage provides the pluggable bucket store behind tracedump's
ingest, export and serve commands.

# Storage Interface

Aggregated traffic is stored as buckets: the bytes and packet count of one
endpoint key, in one direction, at one second. Backends:
  - memory: in-process map, for tests and one-shot runs
  - badger: BadgerDB (LSM tree + Snappy compression)
  - sqlite: a single SQLite file, handy to inspect with the sqlite3 shell

All backends implement the Storage interface:

	type Storage interface {
	    Write(ctx context.Context, buckets []series.Bucket) error
	    Query(ctx context.Context, req QueryRequest) ([]series.Bucket, error)
	    Delete(ctx context.Context, before int64) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Merge Semantics

Write adds to what is stored. Ingesting two captures that overlap in time
yields the same buckets as ingesting their concatenation:

	store.Write(ctx, []series.Bucket{{Key: "tcp:80:[10.0.0.1]:443", Direction: series.Read, Second: 100, Bytes: 10, Packets: 1}})
	store.Write(ctx, []series.Bucket{{Key: "tcp:80:[10.0.0.1]:443", Direction: series.Read, Second: 100, Bytes: 5, Packets: 1}})
	// stored: Bytes 15, Packets 2

# Query Filtering

	// Everything
	buckets, err := store.Query(ctx, storage.All())

	// One endpoint over a range of seconds
	buckets, err := store.Query(ctx, storage.QueryRequest{
	    Start: 1700000000,
	    End:   1700003600,
	    Keys:  []string{"tcp:80:[10.0.0.1]:443"},
	})

Results are always ordered by key, direction and second, so backends can
be compared bucket for bucket.
*/
package storage

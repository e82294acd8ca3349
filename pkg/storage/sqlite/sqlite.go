package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS buckets (
    series    TEXT    NOT NULL,
    direction TEXT    NOT NULL,
    second    INTEGER NOT NULL,
    bytes     INTEGER NOT NULL,
    packets   INTEGER NOT NULL,
    PRIMARY KEY (series, direction, second)
);
CREATE INDEX IF NOT EXISTS buckets_second ON buckets (second);
`

const upsert = `
INSERT INTO buckets (series, direction, second, bytes, packets)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (series, direction, second) DO UPDATE SET
    bytes   = bytes + excluded.bytes,
    packets = packets + excluded.packets
`

// Storage implements storage.Storage on a single SQLite file
type Storage struct {
	db *sql.DB
}

// Config holds SQLite configuration
type Config struct {
	// Path of the database file, or MemoryPath
	Path string
}

// New opens (or creates) the database and its schema
func New(cfg Config) (*Storage, error) {
	path := cfg.Path
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection: every :memory: connection is its own database and
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Write merges buckets in a single transaction
func (s *Storage) Write(ctx context.Context, buckets []series.Bucket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.Validate(buckets); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range buckets {
		if _, err := stmt.ExecContext(ctx, b.Key, string(b.Direction), b.Second, b.Bytes, b.Packets); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write bucket: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit buckets: %w", err)
	}
	return nil
}

// Query retrieves buckets matching the request
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]series.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var q strings.Builder
	q.WriteString("SELECT series, direction, second, bytes, packets FROM buckets WHERE second BETWEEN ? AND ?")
	args := []any{req.Start, req.End}
	if len(req.Keys) > 0 {
		q.WriteString(" AND series IN (?" + strings.Repeat(", ?", len(req.Keys)-1) + ")")
		for _, k := range req.Keys {
			args = append(args, k)
		}
	}
	q.WriteString(" ORDER BY series, direction, second")
	if req.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	out := []series.Bucket{}
	for rows.Next() {
		var b series.Bucket
		var dir string
		if err := rows.Scan(&b.Key, &dir, &b.Second, &b.Bytes, &b.Packets); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		b.Direction = series.Direction(dir)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read buckets: %w", err)
	}
	return out, nil
}

// Delete removes buckets older than the given second
func (s *Storage) Delete(ctx context.Context, before int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM buckets WHERE second < ?", before); err != nil {
		return fmt.Errorf("failed to delete buckets: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COUNT(DISTINCT series),
               COALESCE(SUM(packets), 0),
               COALESCE(SUM(bytes), 0),
               COALESCE(MIN(second), 0),
               COALESCE(MAX(second), 0)
        FROM buckets`)
	if err := row.Scan(
		&stats.TotalBuckets, &stats.TotalSeries,
		&stats.TotalPackets, &stats.TotalBytes,
		&stats.Oldest, &stats.Newest,
	); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	var pageCount, pageSize uint64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page size: %w", err)
	}
	stats.SizeBytes = pageCount * pageSize
	return stats, nil
}

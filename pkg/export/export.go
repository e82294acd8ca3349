package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

// FormatVersion tags JSON backups.
const FormatVersion = "1.0"

// Exporter handles exporting buckets to various formats
type Exporter struct {
	storage storage.Storage
}

// NewExporter creates a new exporter
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{storage: store}
}

// ExportOptions configures the export operation
type ExportOptions struct {
	// Inclusive range of seconds
	Start int64
	End   int64

	// Filter by endpoint keys (nil = all)
	Keys []string

	// Format: "json" or "csv"
	Format string
}

// ExportOptionsAll exports every bucket of the store.
func ExportOptionsAll(format string) ExportOptions {
	all := storage.All()
	return ExportOptions{Start: all.Start, End: all.End, Format: format}
}

// ExportResult contains stats about the export
type ExportResult struct {
	BucketsExported int       `json:"buckets_exported,omitempty"`
	RowsExported    int       `json:"rows_exported,omitempty"`
	TimeRange       string    `json:"time_range"`
	Format          string    `json:"format"`
	ExportedAt      time.Time `json:"exported_at"`
}

// Backup is the JSON document written by ExportBucketsJSON and read back by
// the importer.
type Backup struct {
	Metadata struct {
		ExportedAt  time.Time `json:"exported_at"`
		Start       int64     `json:"start"`
		End         int64     `json:"end"`
		BucketCount int       `json:"bucket_count"`
		Format      string    `json:"format"`
		Version     string    `json:"version"`
	} `json:"metadata"`
	Buckets []series.Bucket `json:"buckets"`
}

// ExportBucketsJSON writes a re-importable JSON backup of the stored buckets
func (e *Exporter) ExportBucketsJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	buckets, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	var backup Backup
	backup.Buckets = buckets
	backup.Metadata.ExportedAt = time.Now()
	backup.Metadata.Start, backup.Metadata.End = span(buckets)
	backup.Metadata.BucketCount = len(buckets)
	backup.Metadata.Format = "json"
	backup.Metadata.Version = FormatVersion

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &ExportResult{
		BucketsExported: len(buckets),
		TimeRange:       timeRange(backup.Metadata.Start, backup.Metadata.End, len(buckets)),
		Format:          "json",
		ExportedAt:      backup.Metadata.ExportedAt,
	}, nil
}

// ExportBucketsCSV writes the stored buckets as flat CSV, one bucket per row
func (e *Exporter) ExportBucketsCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	buckets, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"key", "direction", "second", "bytes", "packets"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, b := range buckets {
		row := []string{
			b.Key,
			string(b.Direction),
			strconv.FormatInt(b.Second, 10),
			strconv.FormatInt(b.Bytes, 10),
			strconv.FormatInt(b.Packets, 10),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	start, end := span(buckets)
	return &ExportResult{
		BucketsExported: len(buckets),
		TimeRange:       timeRange(start, end, len(buckets)),
		Format:          "csv",
		ExportedAt:      time.Now(),
	}, nil
}

// ExportRowsCSV writes a folded series as CSV: offset, second and the
// eight value columns.
func ExportRowsCSV(w io.Writer, key string, rows []series.Row) (*ExportResult, error) {
	writer := csv.NewWriter(w)

	header := []string{"key", "offset", "second"}
	header = append(header, series.ColumnNames[:]...)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range rows {
		record := []string{key, strconv.FormatInt(r.Offset, 10), strconv.FormatInt(r.Second, 10)}
		for _, v := range r.Columns() {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	var start, end int64
	if len(rows) > 0 {
		start, end = rows[0].Second, rows[len(rows)-1].Second
	}
	return &ExportResult{
		RowsExported: len(rows),
		TimeRange:    timeRange(start, end, len(rows)),
		Format:       "csv",
		ExportedAt:   time.Now(),
	}, nil
}

func (e *Exporter) query(ctx context.Context, opts ExportOptions) ([]series.Bucket, error) {
	buckets, err := e.storage.Query(ctx, storage.QueryRequest{
		Start: opts.Start,
		End:   opts.End,
		Keys:  opts.Keys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	return buckets, nil
}

// span returns the first and last second of buckets.
func span(buckets []series.Bucket) (start, end int64) {
	for i, b := range buckets {
		if i == 0 || b.Second < start {
			start = b.Second
		}
		if i == 0 || b.Second > end {
			end = b.Second
		}
	}
	return start, end
}

func timeRange(start, end int64, n int) string {
	if n == 0 {
		return "empty"
	}
	return fmt.Sprintf("%s to %s",
		time.Unix(start, 0).UTC().Format(time.RFC3339),
		time.Unix(end, 0).UTC().Format(time.RFC3339))
}

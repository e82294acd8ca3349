package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

// Importer handles importing buckets from backup files
type Importer struct {
	storage   storage.Storage
	batchSize int
}

// NewImporter creates a new importer
func NewImporter(store storage.Storage) *Importer {
	return &Importer{storage: store, batchSize: config.ImportBatchSize}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	BucketsImported int       `json:"buckets_imported"`
	BatchesWritten  int       `json:"batches_written"`
	TimeRange       string    `json:"time_range"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// ImportFromJSON merges the buckets of a JSON backup into storage. Invalid
// buckets are reported in the result and skipped.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var backup Backup
	decoder := json.NewDecoder(io.LimitReader(r, config.ImportMaxBytes))
	if err := decoder.Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if backup.Metadata.Version != "" && backup.Metadata.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Metadata.Version)
	}
	if len(backup.Buckets) > config.ImportMaxBuckets {
		return nil, fmt.Errorf("backup holds %d buckets, limit is %d", len(backup.Buckets), config.ImportMaxBuckets)
	}

	var validationErrors []string
	valid := make([]series.Bucket, 0, len(backup.Buckets))
	for i, b := range backup.Buckets {
		if err := b.Validate(); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("bucket %d: %v", i, err))
			continue
		}
		valid = append(valid, b)
	}

	batchCount := 0
	for i := 0; i < len(valid); i += im.batchSize {
		end := i + im.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		if err := im.storage.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", batchCount, err)
		}
		batchCount++
	}

	start, end := span(valid)
	return &ImportResult{
		BucketsImported: len(valid),
		BatchesWritten:  batchCount,
		TimeRange:       timeRange(start, end, len(valid)),
		ImportedAt:      time.Now(),
		Errors:          validationErrors,
	}, nil
}

// Package pipeline feeds trace inputs into an aggregator: text logs, binary
// dumps or a bucket store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/dump"
	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/record"
	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

// ErrNoInput is returned when none of the inputs could be opened.
var ErrNoInput = errors.New("no readable input")

// ErrOpen wraps the failure to open the input of Records.
var ErrOpen = errors.New("cannot open input")

// WarnFunc receives non-fatal problems.
type WarnFunc func(format string, args ...any)

// checkEvery is how many events pass between context checks.
const checkEvery = 4096

// Options control how inputs are read.
type Options struct {
	Mask logparse.Mask

	// Dump reads binary record dumps instead of text logs
	Dump bool

	// Stdin is read for the "-" path, os.Stdin when nil
	Stdin io.Reader

	Warn WarnFunc
}

// Summary counts what was read.
type Summary struct {
	Files   int `json:"files"`
	Events  int `json:"events"`
	Skipped int `json:"skipped"` // non-data lines or records
}

// LoadFiles aggregates every path. A path that cannot be opened is
// reported through Warn and skipped; ErrNoInput is returned when no path
// could be read. A malformed dump is an error.
func LoadFiles(ctx context.Context, paths []string, opts Options) (*aggregate.Aggregator, *Summary, error) {
	agg := aggregate.New()
	sum := &Summary{}
	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		rc, err := open(path, opts.Stdin)
		if err != nil {
			warn("skipping %s: %v", path, err)
			continue
		}
		if opts.Dump {
			err = loadDump(ctx, rc, opts.Mask, agg, sum)
		} else {
			err = loadLog(ctx, rc, opts.Mask, agg, sum)
		}
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		sum.Files++
	}

	if sum.Files == 0 {
		return nil, nil, ErrNoInput
	}
	return agg, sum, nil
}

func open(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}

func loadLog(ctx context.Context, r io.Reader, mask logparse.Mask, agg *aggregate.Aggregator, sum *Summary) error {
	p := logparse.NewParser(r, mask)
	defer func() { sum.Skipped += p.Skipped() }()

	for {
		ev, err := p.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ingest(ctx, agg, ev, sum); err != nil {
			return err
		}
	}
}

func loadDump(ctx context.Context, r io.Reader, mask logparse.Mask, agg *aggregate.Aggregator, sum *Summary) error {
	dr := dump.NewReader(r)
	for {
		rec, err := dr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		ev, ok := logparse.EventFromRecord(rec, mask)
		if !ok {
			sum.Skipped++
			continue
		}
		if err := ingest(ctx, agg, ev, sum); err != nil {
			return err
		}
	}
}

func ingest(ctx context.Context, agg *aggregate.Aggregator, ev series.Event, sum *Summary) error {
	if err := agg.Ingest(ev); err != nil {
		return err
	}
	sum.Events++
	if sum.Events%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}

// LoadStore aggregates the buckets of store matching req.
func LoadStore(ctx context.Context, store storage.Storage, req storage.QueryRequest) (*aggregate.Aggregator, error) {
	buckets, err := store.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query store: %w", err)
	}
	agg := aggregate.New()
	for _, b := range buckets {
		if err := agg.IngestBucket(b); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// Records decodes every record of a dump file, calling fn for each. It
// stops at the first error fn returns.
func Records(path string, stdin io.Reader, fn func(record.Record) error) (int, error) {
	rc, err := open(path, stdin)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer rc.Close()

	dr := dump.NewReader(rc)
	for {
		rec, err := dr.Next()
		if err == io.EOF {
			return dr.Count(), nil
		}
		if err != nil {
			return dr.Count(), err
		}
		if err := fn(rec); err != nil {
			return dr.Count(), err
		}
	}
}

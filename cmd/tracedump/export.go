package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	"github.com/nicktill/tracedump/pkg/export"
	"github.com/nicktill/tracedump/pkg/pipeline"
	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/storage"
)

func exportCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("export", "[-format json|csv] [-key K] [-start S] [-end S] [-o file|-]", args, e)
	loadConfig := configFlag(fs)
	format := fs.String("format", "json", "json backup or csv")
	key := fs.String("key", "", "write the folded rows of this series as CSV ("+series.GlobalKey+" for all)")
	start := fs.Int64("start", math.MinInt64, "first second, unix time")
	end := fs.Int64("end", math.MaxInt64, "last second, unix time")
	out := fs.String("o", "-", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageErrorf(fs, "export takes no arguments")
	}
	*format = strings.ToLower(*format)
	if *format != "json" && *format != "csv" {
		return usageErrorf(fs, "format must be json or csv, got %q", *format)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore(store)

	var w io.Writer = e.stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	var result *export.ExportResult
	switch {
	case *key != "":
		req := storage.QueryRequest{Start: *start, End: *end}
		if *key != series.GlobalKey {
			req.Keys = []string{*key}
		}
		agg, err := pipeline.LoadStore(ctx, store, req)
		if err != nil {
			return err
		}
		var rows []series.Row
		if *key == series.GlobalKey {
			rows, err = agg.FinalizeGlobal()
		} else {
			rows, err = agg.Finalize(*key)
		}
		if err != nil {
			return err
		}
		result, err = export.ExportRowsCSV(w, *key, rows)
		if err != nil {
			return err
		}
	case *format == "csv":
		result, err = export.NewExporter(store).ExportBucketsCSV(ctx, w, export.ExportOptions{Start: *start, End: *end, Format: "csv"})
		if err != nil {
			return err
		}
	default:
		result, err = export.NewExporter(store).ExportBucketsJSON(ctx, w, export.ExportOptions{Start: *start, End: *end, Format: "json"})
		if err != nil {
			return err
		}
	}

	log.Printf("✅ Exported %d buckets, %d rows (%s) from %s", result.BucketsExported, result.RowsExported, result.Format, result.TimeRange)
	return nil
}

func importCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("import", "backup.json|-", args, e)
	loadConfig := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf(fs, "import takes exactly one backup file")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in := e.stdin
	if fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore(store)

	result, err := export.NewImporter(store).ImportFromJSON(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", fs.Arg(0), err)
	}
	for _, msg := range result.Errors {
		log.Printf("⚠️  Skipped %s", msg)
	}
	log.Printf("✅ Imported %d buckets in %d batches from %s", result.BucketsImported, result.BatchesWritten, result.TimeRange)
	return nil
}

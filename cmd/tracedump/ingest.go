package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/pipeline"
	"github.com/nicktill/tracedump/pkg/retention"
)

func ingestCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("ingest", "[-m mask] [-dump] files...", args, e)
	loadConfig := configFlag(fs)
	mask := fs.String("m", "", "key mask over %proto, %lport, %addr and %rport (default "+logparse.DefaultMask+")")
	fromDump := fs.Bool("dump", false, "inputs are binary dumps, not text logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErrorf(fs, "ingest needs at least one input, - for stdin")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend == "memory" {
		log.Println("⚠️  The memory store is dropped on exit; set store.backend to badger or sqlite")
	}

	agg, sum, err := pipeline.LoadFiles(ctx, fs.Args(), pipeline.Options{
		Mask:  logparse.Mask(pick(*mask, cfg.Mask)),
		Dump:  *fromDump,
		Stdin: e.stdin,
		Warn:  log.Printf,
	})
	if errors.Is(err, pipeline.ErrNoInput) {
		return usageErrorf(fs, "%v", err)
	}
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore(store)

	buckets := agg.Buckets()
	if err := store.Write(ctx, buckets); err != nil {
		return fmt.Errorf("failed to write buckets: %w", err)
	}
	log.Printf("✅ Merged %d buckets of %d events from %d inputs into the %s store", len(buckets), sum.Events, sum.Files, cfg.Store.Backend)

	if cfg.Store.Retention > 0 {
		res, err := retention.New(store, cfg.Store.Retention).Prune(ctx)
		if err != nil {
			return err
		}
		if res.Removed > 0 {
			log.Printf("Pruned %d buckets before second %d", res.Removed, res.Cutoff)
		}
	}
	return nil
}

package main

import (
	"context"
	"log"

	"github.com/nicktill/tracedump/pkg/retention"
)

func pruneCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("prune", "[-window d]", args, e)
	loadConfig := configFlag(fs)
	window := fs.Duration("window", 0, "history kept behind the newest bucket (default store.retention)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageErrorf(fs, "prune takes no arguments")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *window <= 0 {
		*window = cfg.Store.Retention
	}
	if *window <= 0 {
		return usageErrorf(fs, "no retention window: pass -window or set store.retention")
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore(store)

	res, err := retention.New(store, *window).Prune(ctx)
	if err != nil {
		return err
	}
	log.Printf("✅ Pruned %d buckets before second %d, %d kept", res.Removed, res.Cutoff, res.Kept)
	return nil
}

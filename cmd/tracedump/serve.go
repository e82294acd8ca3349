package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/pipeline"
	"github.com/nicktill/tracedump/pkg/retention"
	"github.com/nicktill/tracedump/pkg/server"
	"github.com/nicktill/tracedump/pkg/storage"
)

func serveCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("serve", "[-addr host:port] [-m mask] [-dump] [-interval d] [files...]", args, e)
	loadConfig := configFlag(fs)
	addr := fs.String("addr", "", "listen address (default from config)")
	mask := fs.String("m", "", "key mask over %proto, %lport, %addr and %rport (default "+logparse.DefaultMask+")")
	fromDump := fs.Bool("dump", false, "inputs are binary dumps, not text logs")
	interval := fs.Duration("interval", 0, "reload interval (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, path := range fs.Args() {
		if path == "-" {
			return usageErrorf(fs, "serve rereads its inputs and cannot use stdin")
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *interval <= 0 {
		*interval = cfg.Serve.ReloadInterval
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore(store)

	var load server.Loader
	if files := fs.Args(); len(files) > 0 {
		opts := pipeline.Options{
			Mask: logparse.Mask(pick(*mask, cfg.Mask)),
			Dump: *fromDump,
			Warn: log.Printf,
		}
		load = func(ctx context.Context) (*aggregate.Aggregator, error) {
			start := time.Now()
			agg, sum, err := pipeline.LoadFiles(ctx, files, opts)
			if err != nil {
				return nil, err
			}
			log.Printf("Loaded %d events from %d inputs in %v", sum.Events, sum.Files, time.Since(start).Round(time.Millisecond))
			return agg, nil
		}
	} else {
		log.Printf("No inputs given, serving the %s store", cfg.Store.Backend)
		load = func(ctx context.Context) (*aggregate.Aggregator, error) {
			return pipeline.LoadStore(ctx, store, storage.All())
		}
	}

	srv, err := server.New(server.Config{
		Load:           load,
		ReloadInterval: *interval,
		Store:          store,
		StorePath:      cfg.Store.Path,
		Addr:           pick(*addr, cfg.Serve.Addr),
	})
	if err != nil {
		return err
	}
	if err := srv.Reload(ctx); errors.Is(err, pipeline.ErrNoInput) {
		return usageErrorf(fs, "%v", err)
	} else if err != nil {
		return err
	}

	go srv.Run(ctx)
	go runBadgerGC(ctx, store)
	if cfg.Store.Retention > 0 {
		go retention.New(store, cfg.Store.Retention).Run(ctx, config.PruneInterval)
	}
	return srv.ListenAndServe(ctx)
}

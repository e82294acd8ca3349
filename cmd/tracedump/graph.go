package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/graph"
	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/pipeline"
	"github.com/nicktill/tracedump/pkg/storage"
)

func graphCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("graph", "[-m mask] [-o base] [-b browser | -B] [-dump] [-store] files...", args, e)
	loadConfig := configFlag(fs)
	mask := fs.String("m", "", "key mask over %proto, %lport, %addr and %rport (default "+logparse.DefaultMask+")")
	base := fs.String("o", config.DefaultOutput, "base path of the charts and the HTML page")
	browser := fs.String("b", "", "open the page with this browser")
	openDefault := fs.Bool("B", false, "open the page with the configured browser (default "+config.DefaultBrowser+")")
	fromDump := fs.Bool("dump", false, "inputs are binary dumps, not text logs")
	fromStore := fs.Bool("store", false, "plot the configured store instead of input files")
	gnuplot := fs.String("gnuplot", "", "gnuplot executable (default gnuplot)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*fromStore && fs.NArg() == 0 {
		return usageErrorf(fs, "graph needs at least one input, - for stdin")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var agg *aggregate.Aggregator
	if *fromStore {
		store, err := openStore(cfg.Store)
		if err != nil {
			return err
		}
		defer closeStore(store)
		if agg, err = pipeline.LoadStore(ctx, store, storage.All()); err != nil {
			return err
		}
	} else {
		var sum *pipeline.Summary
		agg, sum, err = pipeline.LoadFiles(ctx, fs.Args(), pipeline.Options{
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
		log.Printf("Read %d events from %d inputs (%d skipped)", sum.Events, sum.Files, sum.Skipped)
	}

	report, err := graph.Build(ctx, graph.NewGnuplot(pick(*gnuplot, cfg.Gnuplot)), agg, *base)
	if err != nil {
		return fmt.Errorf("failed to plot: %w", err)
	}
	page := *base + ".html"
	log.Printf("✅ Wrote %d charts, index in %s", len(report.Sections), page)

	open := *browser
	if open == "" && *openDefault {
		open = cfg.Browser
	}
	if open == "" {
		return nil
	}
	cmd := exec.Command(open, page)
	if err := cmd.Start(); err != nil {
		log.Printf("⚠️  Failed to open browser: %v", err)
		return nil
	}
	go cmd.Wait()
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nicktill/tracedump/pkg/dump"
	"github.com/nicktill/tracedump/pkg/pipeline"
	"github.com/nicktill/tracedump/pkg/record"
	"github.com/nicktill/tracedump/pkg/render"
)

func readCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("read", "[-s] [-r reversed.dump] file|-", args, e)
	simplified := fs.Bool("s", false, "print headers only, no payload hexdump")
	reversed := fs.String("r", "", "also write every record, reads and writes swapped, to this dump")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf(fs, "read takes exactly one input")
	}
	if *reversed == "-" {
		return usageErrorf(fs, "-r cannot write to stdout")
	}

	var rw *dump.Writer
	if *reversed != "" {
		var err error
		if rw, err = dump.Create(*reversed); err != nil {
			return err
		}
	}

	p := render.NewPrinter(e.stdout, *simplified)
	legacy := 0
	n, readErr := pipeline.Records(fs.Arg(0), e.stdin, func(r record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.IsLegacyForged() {
			legacy++
		}
		if err := p.Print(r); err != nil {
			return err
		}
		if rw != nil {
			return rw.Write(record.Reverse(r))
		}
		return nil
	})

	// What was rendered before a decode error is still flushed
	if err := p.Flush(); err != nil && readErr == nil {
		readErr = fmt.Errorf("failed to write output: %w", err)
	}
	if rw != nil {
		if err := rw.Close(); err != nil && readErr == nil {
			readErr = err
		}
	}
	if legacy > 0 {
		log.Printf("⚠️  %d of %d records look like forged test entries tagged read; their direction may be inverted", legacy, n)
	}
	if errors.Is(readErr, pipeline.ErrOpen) {
		return usageErrorf(fs, "%v", readErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to read %s after %d records: %w", fs.Arg(0), n, readErr)
	}
	if rw != nil {
		log.Printf("✅ Wrote %d reversed records to %s", rw.Count(), *reversed)
	}
	return nil
}

package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/nicktill/tracedump/pkg/dump"
	"github.com/nicktill/tracedump/pkg/forge"
)

// stdoutWriter hides Close so the dump writer leaves stdout open.
type stdoutWriter struct{ io.Writer }

func forgeCommand(ctx context.Context, e env, args []string) error {
	fs := newFlagSet("forge", "[-o file|-] [-d read|write] [script]", args, e)
	out := fs.String("o", "-", "output dump, - for stdout")
	dir := fs.String("d", forge.DefaultDirection.String(), "direction of the forged entries: read or write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usageErrorf(fs, "forge takes at most one script")
	}
	direction, err := forge.ParseDirection(*dir)
	if err != nil {
		return usageErrorf(fs, "%v", err)
	}

	in := e.stdin
	if fs.NArg() == 1 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var w *dump.Writer
	if *out == "-" {
		w = dump.NewWriter(stdoutWriter{e.stdout})
	} else if w, err = dump.Create(*out); err != nil {
		return err
	}

	c := forge.NewCompiler(in, log.Printf)
	var compileErr error
	for compileErr == nil {
		if compileErr = ctx.Err(); compileErr != nil {
			break
		}
		b, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			compileErr = err
			break
		}
		compileErr = w.Write(forge.BuildTestEntry(direction, b.Data))
	}

	// Entries compiled before a failing block are kept
	if err := w.Close(); err != nil && compileErr == nil {
		compileErr = err
	}
	if compileErr != nil {
		return compileErr
	}
	if *out != "-" {
		log.Printf("✅ Forged %d entries into %s", w.Count(), *out)
	}
	return nil
}

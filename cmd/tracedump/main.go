// Command tracedump reads, forges and graphs syscall trace dumps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicktill/tracedump/pkg/config"
)

const prog = "tracedump"

// env carries the standard streams so commands can be run from tests.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name     string
	synopsis string
	run      func(ctx context.Context, e env, args []string) error
}

var commands = []command{
	{"read", "render a dump as text", readCommand},
	{"forge", "compile a script into a dump of test entries", forgeCommand},
	{"graph", "plot the traffic of logs or dumps", graphCommand},
	{"ingest", "merge the buckets of logs or dumps into the store", ingestCommand},
	{"export", "write the store as a JSON backup or CSV", exportCommand},
	{"import", "restore a JSON backup into the store", importCommand},
	{"prune", "drop store buckets outside the retention window", pruneCommand},
	{"serve", "serve the series of logs or dumps over HTTP", serveCommand},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	cancel()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, e env) int {
	log.SetOutput(e.stderr)
	log.SetFlags(0)

	if len(args) == 0 {
		printRootHelp(e.stderr)
		return 2
	}

	name, rest := args[0], args[1:]
	switch name {
	case "help", "-h", "--help":
		return runHelp(ctx, rest, e)
	}

	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(e.stderr, "unknown command %q\n\n", name)
		printRootHelp(e.stderr)
		return 2
	}
	if len(rest) > 0 && rest[0] == "help" {
		rest = []string{"-h"}
	}

	if err := cmd.run(ctx, e, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runHelp(ctx context.Context, args []string, e env) int {
	if len(args) == 0 {
		printRootHelp(e.stdout)
		return 0
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(e.stderr, "unknown command %q\n\n", args[0])
		printRootHelp(e.stderr)
		return 2
	}
	_ = cmd.run(ctx, e, []string{"-h"})
	return 0
}

func printRootHelp(w io.Writer) {
	fmt.Fprintf(w, "%s: syscall trace dump toolkit\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s <command> [flags] [args]\n\n", prog)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.synopsis)
	}
	fmt.Fprintf(w, "\nRun '%s help <command>' for the flags of a command.\n", prog)
	fmt.Fprintf(w, "Settings are read from tracedump.yaml and %s_* environment variables.\n", config.EnvPrefix)
}

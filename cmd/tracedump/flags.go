package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/nicktill/tracedump/pkg/config"
)

func isHelpRequest(args []string) bool {
	for _, a := range args {
		switch a {
		case "-h", "--help", "-help":
			return true
		}
	}
	return false
}

// newFlagSet creates a FlagSet that prints its usage to stdout for help
// requests and to stderr otherwise. The flag package's own error output is
// discarded; realMain prints the error once.
func newFlagSet(name, usage string, args []string, e env) *flag.FlagSet {
	w := e.stderr
	if isHelpRequest(args) {
		w = e.stdout
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		fmt.Fprintf(w, "Usage: %s %s %s\n\nFlags:\n", prog, name, usage)
		fs.SetOutput(w)
		fs.PrintDefaults()
		fs.SetOutput(io.Discard)
	}
	return fs
}

// configFlag registers -config on fs and returns a loader for it.
func configFlag(fs *flag.FlagSet) func() (*config.Config, error) {
	path := fs.String("config", "", "config file (default ./tracedump.yaml if present)")
	return func() (*config.Config, error) {
		return config.Load(*path)
	}
}

// pick returns flagValue unless it is empty.
func pick(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// usageErrorf reports bad arguments after printing the usage.
func usageErrorf(fs *flag.FlagSet, format string, args ...any) error {
	fs.Usage()
	return fmt.Errorf(format, args...)
}

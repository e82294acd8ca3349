package graph

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/nicktill/tracedump/pkg/series"
)

// DefaultGnuplot is the command run when none is configured.
const DefaultGnuplot = "gnuplot"

// Gnuplot renders charts by running the gnuplot binary on a generated
// script. The data and script files are temporary.
type Gnuplot struct {
	Path    string // binary, DefaultGnuplot when empty
	TempDir string // os.TempDir when empty
	Width   int
	Height  int
}

// NewGnuplot returns an emitter running the given binary.
func NewGnuplot(path string) *Gnuplot {
	if path == "" {
		path = DefaultGnuplot
	}
	return &Gnuplot{Path: path, Width: 800, Height: 700}
}

// Emit writes <basePath>.png.
func (g *Gnuplot) Emit(ctx context.Context, name, basePath string, rows []series.Row) error {
	data, err := os.CreateTemp(g.TempDir, "tracedump-*.data")
	if err != nil {
		return fmt.Errorf("failed to create data file: %w", err)
	}
	defer os.Remove(data.Name())

	if err := WriteData(data, rows); err != nil {
		data.Close()
		return err
	}
	if err := data.Close(); err != nil {
		return fmt.Errorf("failed to close data file: %w", err)
	}

	script, err := os.CreateTemp(g.TempDir, "tracedump-*.gp")
	if err != nil {
		return fmt.Errorf("failed to create command file: %w", err)
	}
	defer os.Remove(script.Name())

	if _, err := script.WriteString(g.script(name, basePath+".png", data.Name(), len(rows))); err != nil {
		script.Close()
		return fmt.Errorf("failed to write command file: %w", err)
	}
	if err := script.Close(); err != nil {
		return fmt.Errorf("failed to close command file: %w", err)
	}

	path := g.Path
	if path == "" {
		path = DefaultGnuplot
	}
	out, err := exec.CommandContext(ctx, path, script.Name()).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("failed to plot %s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("failed to plot %s: %w", name, err)
	}
	return nil
}

// script is a two-panel multiplot: bytes per second on top, calls per
// second below, each with the per-minute averages as lines.
func (g *Gnuplot) script(name, output, data string, span int) string {
	width, height := g.Width, g.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 700
	}
	file := quote(data)

	var b strings.Builder
	fmt.Fprintf(&b, "set term png small background '#ffffff' size %d, %d\n", width, height)
	fmt.Fprintf(&b, "set output %s\n", quote(output))
	fmt.Fprintf(&b, "set xr [0:%d]\n", span)
	fmt.Fprintf(&b, "set multiplot layout 2,1 title %s\n", quote(name+" rate"))
	b.WriteString("set key outside left bottom horizontal Right\n")

	panels := [2][4]string{
		{"Receiving B/s", "Receiving B/s (on last minute)", "Sending B/s", "Sending B/s (on last minute)"},
		{"Receiving calls/s", "Receiving calls/s (on last minute)", "Sending calls/s", "Sending calls/s (on last minute)"},
	}
	col := 2
	for _, labels := range panels {
		b.WriteString("plot ")
		for i, label := range labels {
			style := "boxes"
			if i%2 == 1 {
				style = "lines"
			}
			if i > 0 {
				b.WriteString(", \\\n     ")
			}
			fmt.Fprintf(&b, "%s using 1:%d title %s with %s", file, col, quote(label+" "+name), style)
			col++
		}
		b.WriteString("\n")
	}
	b.WriteString("unset multiplot\n")
	return b.String()
}

// quote makes s a double-quoted gnuplot string.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

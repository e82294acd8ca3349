package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := realMain(context.Background(), args, env{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

const sampleLog = `[ts 100000] [line 0] connect tcp:80:[10.0.0.1]:443
[ts 100200] [line 0] read tcp:80:[10.0.0.1]:443 length=10
00000000  30 31 32 33 34 35 36 37  38 39                    |0123456789|

[ts 101900] [line 0] write tcp:80:[10.0.0.1]:443 length=4
[ts 102000] [line 0] read udp:53:[8.8.8.8]:53 length=3
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"frobnicate"}, 2},
		{"help", []string{"help"}, 0},
		{"dash h", []string{"-h"}, 0},
		{"help for command", []string{"help", "read"}, 0},
		{"help for unknown command", []string{"help", "nope"}, 2},
		{"command help flag", []string{"graph", "-h"}, 0},
		{"command help word", []string{"forge", "help"}, 0},
		{"bad flag", []string{"read", "-z"}, 1},
		{"missing input", []string{"read"}, 1},
		{"missing file", []string{"read", "/nonexistent/trace.dump"}, 1},
		{"bad direction", []string{"forge", "-d", "sideways"}, 1},
		{"graph without inputs", []string{"graph"}, 1},
		{"serve from stdin", []string{"serve", "-"}, 1},
		{"export bad format", []string{"export", "-format", "xml"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", tt.args...)
			assert.Equal(t, tt.code, res.code, "stdout: %s\nstderr: %s", res.stdout, res.stderr)
		})
	}
}

func TestHelpGoesToStdout(t *testing.T) {
	res := run(t, "", "help")
	assert.Contains(t, res.stdout, "Commands:")
	assert.Contains(t, res.stdout, "forge")
	assert.Empty(t, res.stderr)

	res = run(t, "", "read", "-h")
	assert.Contains(t, res.stdout, "Usage: tracedump read")
	assert.Contains(t, res.stdout, "-s")

	res = run(t, "", "read")
	assert.Contains(t, res.stderr, "Usage: tracedump read")
	assert.Contains(t, res.stderr, "error: read takes exactly one input")
}

func TestUnreadableInputsPrintUsage(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.dump")
	cfgPath := writeFile(t, dir, "tracedump.yaml",
		"store:\n  backend: sqlite\n  path: "+filepath.Join(dir, "buckets.db")+"\n")

	tests := []struct {
		name  string
		args  []string
		usage string
	}{
		{"read", []string{"read", missing}, "Usage: tracedump read"},
		{"read simplified", []string{"read", "-s", missing}, "Usage: tracedump read"},
		{"graph", []string{"graph", "-gnuplot", "true", "-o", filepath.Join(dir, "r"), missing, filepath.Join(dir, "also-missing.log")}, "Usage: tracedump graph"},
		{"ingest", []string{"ingest", "-config", cfgPath, missing}, "Usage: tracedump ingest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tt.usage)
			assert.Contains(t, res.stderr, "missing.dump")
		})
	}
}

func TestForgeThenRead(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "forged.dump")

	res := run(t, "text(eol=)\nhello\n\nhexa(endianess=be)\n4142\n\n", "forge", "-o", dumpPath)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Forged 2 entries")

	res = run(t, "", "read", dumpPath)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "[ts 0] [line 0] write tcp:0:[0.0.0.0]:0 length=5\n")
	assert.Contains(t, res.stdout, "|hello|")
	assert.Contains(t, res.stdout, "length=2\n")
	assert.Contains(t, res.stdout, "|AB|")
	assert.NotContains(t, res.stderr, "forged test entries")

	res = run(t, "", "read", "-s", dumpPath)
	require.Equal(t, 0, res.code)
	assert.Equal(t, "[ts 0] [line 0] write tcp:0:[0.0.0.0]:0 length=5\n[ts 0] [line 0] write tcp:0:[0.0.0.0]:0 length=2\n", res.stdout)
}

func TestForgeToStdout(t *testing.T) {
	res := run(t, "text()\nx\n\n", "forge", "-d", "read")
	require.Equal(t, 0, res.code, res.stderr)
	// 19-byte header, 4-byte length, "x\n"
	assert.Len(t, res.stdout, 25)
}

func TestForgeBlockErrorKeepsEarlierEntries(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "partial.dump")

	res := run(t, "text()\nok\n\nhexa(endianess=be)\n414\n\n", "forge", "-o", dumpPath)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "hexa block at line 4")

	res = run(t, "", "read", "-s", dumpPath)
	require.Equal(t, 0, res.code)
	assert.Equal(t, 1, strings.Count(res.stdout, "\n"))
}

func TestReadReversedAndLegacyWarning(t *testing.T) {
	dir := t.TempDir()
	forged := filepath.Join(dir, "legacy.dump")
	reversed := filepath.Join(dir, "reversed.dump")

	res := run(t, "text()\nping\n\n", "forge", "-d", "read", "-o", forged)
	require.Equal(t, 0, res.code, res.stderr)

	res = run(t, "", "read", "-r", reversed, forged)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "] read tcp:")
	assert.Contains(t, res.stderr, "1 of 1 records look like forged test entries")

	res = run(t, "", "read", "-s", reversed)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "] write tcp:")
}

func TestReadFromStdin(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "in.dump")
	require.Equal(t, 0, run(t, "text()\nz\n\n", "forge", "-o", dumpPath).code)

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)

	res := run(t, string(data), "read", "-s", "-")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "length=2")
}

func TestGraph(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "trace.log", sampleLog)
	base := filepath.Join(dir, "out", "report")
	require.NoError(t, os.MkdirAll(filepath.Dir(base), 0o755))

	res := run(t, "", "graph", "-gnuplot", "true", "-o", base, logPath, filepath.Join(dir, "missing.log"))
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "missing.log")
	assert.Contains(t, res.stderr, "Wrote 3 charts")

	page, err := os.ReadFile(base + ".html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "report_global.png")
	assert.Contains(t, string(page), "tcp80_10.0.0.1_443.png")
}

func TestGraphBrowser(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "trace.log", sampleLog)
	cfgPath := writeFile(t, dir, "tracedump.yaml", "browser: tracedump-configured-browser\n")

	tests := []struct {
		name   string
		flags  []string
		opened string
	}{
		{"none by default", nil, ""},
		{"explicit browser", []string{"-b", "tracedump-explicit-browser"}, "tracedump-explicit-browser"},
		{"configured browser", []string{"-B"}, "tracedump-configured-browser"},
		{"explicit wins", []string{"-B", "-b", "tracedump-explicit-browser"}, "tracedump-explicit-browser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"graph", "-config", cfgPath, "-gnuplot", "true", "-o", filepath.Join(dir, "r")}, tt.flags...)
			res := run(t, "", append(args, logPath)...)
			require.Equal(t, 0, res.code, res.stderr)
			if tt.opened == "" {
				assert.NotContains(t, res.stderr, "Failed to open browser")
				return
			}
			// The browsers do not exist, so the attempt shows up as a warning.
			assert.Contains(t, res.stderr, "Failed to open browser")
			assert.Contains(t, res.stderr, tt.opened)
		})
	}
}

func TestGraphNoData(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "empty.log", "[ts 1] [line 0] connect tcp:1:[1.1.1.1]:1\n")

	res := run(t, "", "graph", "-gnuplot", "true", "-o", filepath.Join(dir, "r"), logPath)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no data events")
}

func TestIngestExportImport(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "trace.log", sampleLog)
	cfgPath := writeFile(t, dir, "tracedump.yaml",
		"store:\n  backend: sqlite\n  path: "+filepath.Join(dir, "buckets.db")+"\n")

	res := run(t, "", "ingest", "-config", cfgPath, logPath)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Merged 3 buckets")

	res = run(t, "", "export", "-config", cfgPath, "-format", "csv")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "key,direction,second,bytes,packets\n")
	assert.Contains(t, res.stdout, "tcp:80:[10.0.0.1]:443,read,100,10,1\n")
	assert.Contains(t, res.stdout, "tcp:80:[10.0.0.1]:443,write,101,4,1\n")

	res = run(t, "", "export", "-config", cfgPath, "-key", "global")
	require.Equal(t, 0, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Len(t, lines, 4) // header and seconds 100..102
	assert.True(t, strings.HasPrefix(lines[0], "key,offset,second,"))

	backup := filepath.Join(dir, "backup.json")
	res = run(t, "", "export", "-config", cfgPath, "-o", backup)
	require.Equal(t, 0, res.code, res.stderr)

	otherCfg := writeFile(t, dir, "other.yaml",
		"store:\n  backend: badger\n  path: "+filepath.Join(dir, "badger")+"\n")
	res = run(t, "", "import", "-config", otherCfg, backup)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Imported 3 buckets")

	res = run(t, "", "export", "-config", otherCfg, "-format", "csv", "-start", "101")
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, ",100,")
	assert.Contains(t, res.stdout, "udp:53:[8.8.8.8]:53,read,102,3,1\n")
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "trace.log", sampleLog)
	cfgPath := writeFile(t, dir, "tracedump.yaml",
		"store:\n  backend: sqlite\n  path: "+filepath.Join(dir, "buckets.db")+"\n")

	require.Equal(t, 0, run(t, "", "ingest", "-config", cfgPath, logPath).code)

	res := run(t, "", "prune", "-config", cfgPath)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no retention window")

	res = run(t, "", "prune", "-config", cfgPath, "-window", "1s")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Pruned 1 buckets before second 101, 2 kept")

	res = run(t, "", "export", "-config", cfgPath, "-format", "csv")
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, ",100,")
}

func TestUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "bad.yaml", "store:\n  backend: cassandra\n")

	res := run(t, "", "export", "-config", cfgPath)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "unknown store.backend")
}

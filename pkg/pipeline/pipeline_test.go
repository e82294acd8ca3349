package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/dump"
	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/record"
	"github.com/nicktill/tracedump/pkg/render"
	"github.com/nicktill/tracedump/pkg/storage"
	"github.com/nicktill/tracedump/pkg/storage/memory"
)

func traceRecords() []record.Record {
	ep := record.Record{Protocol: record.TCP, LocalPort: 5000, RemoteAddr: [4]uint8{4, 3, 2, 1}, RemotePort: 80}
	at := func(ts uint64, a record.ActionKind, o record.Outcome, payload string) record.Record {
		r := ep
		r.Timestamp, r.Action, r.Outcome = ts, a, o
		if a.IsData() && o != record.Failed {
			r.Length = int32(len(payload))
			r.Payload = []byte(payload)
		}
		if o == record.Failed {
			r.Length = 104
		}
		return r
	}
	return []record.Record{
		at(100000, record.Connect, record.Succeeded, ""),
		at(100200, record.Write, record.Succeeded, "GET /"),
		at(101900, record.Read, record.Succeeded, "HTTP/1.1 200 OK"),
		at(102000, record.Read, record.Failed, ""),
		at(99000, record.Write, record.NotPerformed, ""),
		at(103000, record.Close, record.Succeeded, ""),
	}
}

func writeInputs(t *testing.T) (logPath, dumpPath string) {
	t.Helper()
	dir := t.TempDir()

	var text bytes.Buffer
	for _, r := range traceRecords() {
		require.NoError(t, render.WriteRecord(&text, r, false))
	}
	logPath = filepath.Join(dir, "trace.log")
	require.NoError(t, os.WriteFile(logPath, text.Bytes(), 0o644))

	dumpPath = filepath.Join(dir, "trace.dump")
	w, err := dump.Create(dumpPath)
	require.NoError(t, err)
	for _, r := range traceRecords() {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	return logPath, dumpPath
}

func TestLoadFilesLogAndDumpAgree(t *testing.T) {
	logPath, dumpPath := writeInputs(t)
	ctx := context.Background()

	fromLog, logSum, err := LoadFiles(ctx, []string{logPath}, Options{Mask: logparse.DefaultMask})
	require.NoError(t, err)
	fromDump, dumpSum, err := LoadFiles(ctx, []string{dumpPath}, Options{Mask: logparse.DefaultMask, Dump: true})
	require.NoError(t, err)

	assert.Equal(t, 3, logSum.Events)
	assert.Equal(t, 3, dumpSum.Events)
	assert.Equal(t, 3, dumpSum.Skipped)
	assert.Equal(t, fromDump.Keys(), fromLog.Keys())
	dumpRows, err := fromDump.FinalizeGlobal()
	require.NoError(t, err)
	logRows, err := fromLog.FinalizeGlobal()
	require.NoError(t, err)
	assert.Equal(t, dumpRows, logRows)

	min, max, ok := fromLog.Range()
	require.True(t, ok)
	assert.Equal(t, int64(99), min)
	assert.Equal(t, int64(101), max)
	assert.Equal(t, []string{"tcp:5000:[1.2.3.4]:80"}, fromLog.Keys())
}

func TestLoadFilesSkipsMissing(t *testing.T) {
	logPath, _ := writeInputs(t)
	var warnings []string
	warn := func(format string, args ...any) { warnings = append(warnings, format) }

	_, sum, err := LoadFiles(context.Background(), []string{"/nonexistent/trace.log", logPath}, Options{Warn: warn})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Len(t, warnings, 1)

	_, _, err = LoadFiles(context.Background(), []string{"/nonexistent/trace.log"}, Options{Warn: warn})
	assert.True(t, errors.Is(err, ErrNoInput))
}

func TestLoadFilesStdin(t *testing.T) {
	stdin := strings.NewReader("[ts 5000] [line 0] read udp:53:[8.8.8.8]:53 length=40\n")
	agg, sum, err := LoadFiles(context.Background(), []string{"-"}, Options{Mask: "%addr", Stdin: stdin})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Events)
	assert.Equal(t, []string{"8.8.8.8"}, agg.Keys())
}

func TestLoadFilesTruncatedDump(t *testing.T) {
	_, dumpPath := writeInputs(t)
	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dumpPath, data[:len(data)-3], 0o644))

	_, _, err = LoadFiles(context.Background(), []string{dumpPath}, Options{Dump: true})
	var de *record.DecodeError
	assert.True(t, errors.As(err, &de), "got %v", err)
}

func TestLoadFilesCancelled(t *testing.T) {
	logPath, _ := writeInputs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := LoadFiles(ctx, []string{logPath}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadStore(t *testing.T) {
	logPath, _ := writeInputs(t)
	ctx := context.Background()
	agg, _, err := LoadFiles(ctx, []string{logPath}, Options{})
	require.NoError(t, err)

	store := memory.New()
	defer store.Close()
	require.NoError(t, store.Write(ctx, agg.Buckets()))

	loaded, err := LoadStore(ctx, store, storage.All())
	require.NoError(t, err)
	want, err := agg.FinalizeGlobal()
	require.NoError(t, err)
	got, err := loaded.FinalizeGlobal()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecords(t *testing.T) {
	_, dumpPath := writeInputs(t)
	var actions []record.ActionKind
	n, err := Records(dumpPath, nil, func(r record.Record) error {
		actions = append(actions, r.Action)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, record.Connect, actions[0])

	stop := errors.New("stop")
	n, err = Records(dumpPath, nil, func(record.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)

	n, err = Records(filepath.Join(t.TempDir(), "missing.dump"), nil, func(record.Record) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, n)
}

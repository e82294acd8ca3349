// Package dump reads and writes sequences of trace records.
//
// A dump is the plain concatenation of encoded records: there is no file
// header, record count or offset table. Readers only move forward and
// writers only append.
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nicktill/tracedump/pkg/record"
)

const bufferSize = 256 * 1024

// Writer appends encoded records to an underlying stream.
type Writer struct {
	w     *bufio.Writer
	c     io.Closer
	count int
}

// NewWriter wraps w. If w is also an io.Closer, Close closes it.
func NewWriter(w io.Writer) *Writer {
	dw := &Writer{w: bufio.NewWriterSize(w, bufferSize)}
	if c, ok := w.(io.Closer); ok {
		dw.c = c
	}
	return dw
}

// Create opens path for writing, truncating it. "-" writes to stdout,
// which Close leaves open.
func Create(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("empty dump path")
	}
	if path == "-" {
		return &Writer{w: bufio.NewWriterSize(os.Stdout, bufferSize)}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump: %w", err)
	}
	return NewWriter(f), nil
}

// Write encodes r and appends it.
func (dw *Writer) Write(r record.Record) error {
	if _, err := r.WriteTo(dw.w); err != nil {
		return fmt.Errorf("failed to write record %d: %w", dw.count, err)
	}
	dw.count++
	return nil
}

// Count returns the number of records written.
func (dw *Writer) Count() int {
	return dw.count
}

// Flush writes buffered records to the underlying stream.
func (dw *Writer) Flush() error {
	return dw.w.Flush()
}

// Close flushes and closes the underlying stream.
func (dw *Writer) Close() error {
	var ret error
	if err := dw.w.Flush(); err != nil {
		ret = err
	}
	if dw.c != nil {
		if err := dw.c.Close(); err != nil && ret == nil {
			ret = err
		}
		dw.c = nil
	}
	return ret
}

// Reader decodes records one at a time.
type Reader struct {
	r     *bufio.Reader
	c     io.Closer
	count int
}

// NewReader wraps r. If r is also an io.Closer, Close closes it.
func NewReader(r io.Reader) *Reader {
	dr := &Reader{r: bufio.NewReaderSize(r, bufferSize)}
	if c, ok := r.(io.Closer); ok {
		dr.c = c
	}
	return dr
}

// Open opens path for reading. "-" reads stdin.
func Open(path string) (*Reader, error) {
	if path == "-" {
		return &Reader{r: bufio.NewReaderSize(os.Stdin, bufferSize)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next record. It returns io.EOF after the last complete
// record; a record cut short is a *record.DecodeError.
func (dr *Reader) Next() (record.Record, error) {
	rec, err := record.Decode(dr.r)
	if err != nil {
		if err == io.EOF {
			return record.Record{}, io.EOF
		}
		return record.Record{}, fmt.Errorf("record %d: %w", dr.count, err)
	}
	dr.count++
	return rec, nil
}

// Count returns the number of records decoded so far.
func (dr *Reader) Count() int {
	return dr.count
}

// Close closes the underlying stream.
func (dr *Reader) Close() error {
	if dr.c == nil {
		return nil
	}
	err := dr.c.Close()
	dr.c = nil
	return err
}

// ReadAll decodes every record of r.
func ReadAll(r io.Reader) ([]record.Record, error) {
	dr := NewReader(r)
	var out []record.Record
	for {
		rec, err := dr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

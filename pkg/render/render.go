// Package render prints trace records in the log line format followed by
// a hexdump of their payload.
//
//	[ts 1700000000123] [line 0] write tcp:8080:[127.0.0.1]:443 length=5
//	00000000  68 65 6c 6c 6f                                    |hello|
//
// The header line is the input format of the logparse package.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nicktill/tracedump/pkg/record"
)

// BytesPerRow is the width of one hexdump row.
const BytesPerRow = 16

// Header returns the log line of r.
func Header(r record.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ts %d] [line 0] %s %s", r.Timestamp, r.Action, r.Endpoint())

	if r.Outcome == record.Failed {
		fmt.Fprintf(&b, " error=%q", ErrnoText(r.Length))
		return b.String()
	}
	// Unknown kinds with a code below read/write keep the length
	if r.Action <= record.Write {
		fmt.Fprintf(&b, " length=%d", r.Length)
	}
	if r.Outcome == record.NotPerformed {
		b.WriteString(" callnotperformed")
	}
	return b.String()
}

// Printer writes records to an output stream.
type Printer struct {
	w          *bufio.Writer
	simplified bool
}

// NewPrinter writes to w. In simplified mode only header lines are printed.
func NewPrinter(w io.Writer, simplified bool) *Printer {
	return &Printer{w: bufio.NewWriter(w), simplified: simplified}
}

// Print writes one record.
func (p *Printer) Print(r record.Record) error {
	if _, err := p.w.WriteString(Header(r) + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if p.simplified || r.Action.IsConnection() || r.Outcome == record.Failed {
		return nil
	}
	if err := Hexdump(p.w, r.Payload); err != nil {
		return err
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}
	return nil
}

// Flush writes buffered output.
func (p *Printer) Flush() error {
	return p.w.Flush()
}

// WriteRecord prints a single record to w.
func WriteRecord(w io.Writer, r record.Record, simplified bool) error {
	p := NewPrinter(w, simplified)
	if err := p.Print(r); err != nil {
		return err
	}
	return p.Flush()
}

// Hexdump writes data in rows of 16 bytes: an 8 digit hex offset, the
// bytes in two groups of 8 and the printable characters between bars.
func Hexdump(w io.Writer, data []byte) error {
	var line strings.Builder
	for off := 0; off < len(data); off += BytesPerRow {
		end := off + BytesPerRow
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		line.Reset()
		fmt.Fprintf(&line, "%08x ", off)
		for i := 0; i < BytesPerRow; i++ {
			if i%8 == 0 {
				line.WriteByte(' ')
			}
			if i < len(row) {
				fmt.Fprintf(&line, "%02x ", row[i])
			} else {
				line.WriteString("   ")
			}
		}
		line.WriteString(" |")
		for _, c := range row {
			line.WriteByte(printable(c))
		}
		line.WriteString("|\n")

		if _, err := io.WriteString(w, line.String()); err != nil {
			return fmt.Errorf("failed to write hexdump row %08x: %w", off, err)
		}
	}
	return nil
}

func printable(c byte) byte {
	if c >= 32 && c <= 126 {
		return c
	}
	return '.'
}

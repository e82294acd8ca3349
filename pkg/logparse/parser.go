// Package logparse reads the text form of trace records back into events.
//
// Only data lines are of interest:
//
//	[ts 1700000000123] [line 0] read tcp:8080:[127.0.0.1]:443 length=512
//
// Connect, close and failed calls carry no length and are skipped, like
// any other line that does not match.
package logparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/nicktill/tracedump/pkg/record"
	"github.com/nicktill/tracedump/pkg/series"
)

var lineRe = regexp.MustCompile(`\[ts (\d+)\] \[line \d+\] (write|read) (tcp|udp):(\d+):\[(.+)\]:(\d+) length=(\d+)`)

// ParseLine extracts the event of one log line. ok is false when the line
// is not a data line.
func ParseLine(line string, mask Mask) (ev series.Event, ok bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return series.Event{}, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return series.Event{}, false
	}
	length, err := strconv.ParseInt(m[7], 10, 64)
	if err != nil {
		return series.Event{}, false
	}
	return series.Event{
		Key:       mask.Key(m[3], m[4], m[5], m[6]),
		Direction: series.Direction(m[2]),
		Second:    ts / 1000,
		Length:    length,
	}, true
}

// EventFromRecord returns the event the rendered log line of r would
// parse to. Only successful or not-performed reads and writes have one.
func EventFromRecord(r record.Record, mask Mask) (series.Event, bool) {
	if !r.Action.IsData() || r.Outcome == record.Failed {
		return series.Event{}, false
	}
	var dir series.Direction
	if r.Action == record.Read {
		dir = series.Read
	} else {
		dir = series.Write
	}
	return series.Event{
		Key: mask.Key(
			r.Protocol.String(),
			strconv.FormatUint(uint64(r.LocalPort), 10),
			r.AddrString(),
			strconv.FormatUint(uint64(r.RemotePort), 10),
		),
		Direction: dir,
		Second:    int64(r.Timestamp / 1000),
		Length:    int64(r.Length),
	}, true
}

// Parser yields the events of a log stream one at a time.
type Parser struct {
	s       *bufio.Scanner
	mask    Mask
	line    int
	skipped int
}

// NewParser reads log lines from r and keys events with mask.
func NewParser(r io.Reader, mask Mask) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 8*1024*1024)
	return &Parser{s: s, mask: mask}
}

// Next returns the next event, or io.EOF when the input is exhausted.
func (p *Parser) Next() (series.Event, error) {
	for p.s.Scan() {
		p.line++
		if ev, ok := ParseLine(p.s.Text(), p.mask); ok {
			return ev, nil
		}
		if len(p.s.Bytes()) > 0 {
			p.skipped++
		}
	}
	if err := p.s.Err(); err != nil {
		return series.Event{}, fmt.Errorf("scan line %d: %w", p.line+1, err)
	}
	return series.Event{}, io.EOF
}

// Lines returns the number of lines read.
func (p *Parser) Lines() int {
	return p.line
}

// Skipped returns the number of non-blank lines that were not data lines.
func (p *Parser) Skipped() int {
	return p.skipped
}

// ParseAll collects every event of r.
func ParseAll(r io.Reader, mask Mask) ([]series.Event, error) {
	p := NewParser(r, mask)
	var out []series.Event
	for {
		ev, err := p.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/series"
)

// ErrSpanTooLarge is returned when the observed range holds more seconds
// than config.GraphMaxSeconds. Folding builds one row per second.
var ErrSpanTooLarge = errors.New("time range too large to fold")

// totals is the content of one bucket.
type totals struct {
	bytes   int64
	packets int64
}

// table maps direction -> second -> totals for one series.
type table map[series.Direction]map[int64]*totals

func newTable() table {
	return table{
		series.Read:  make(map[int64]*totals),
		series.Write: make(map[int64]*totals),
	}
}

func (t table) add(dir series.Direction, second, bytes, packets int64) {
	cell, ok := t[dir][second]
	if !ok {
		cell = &totals{}
		t[dir][second] = cell
	}
	cell.bytes += bytes
	cell.packets += packets
}

func (t table) get(dir series.Direction, second int64) totals {
	if t == nil {
		return totals{}
	}
	if cell, ok := t[dir][second]; ok {
		return *cell
	}
	return totals{}
}

// Aggregator buckets events per endpoint key and globally, one bucket per
// second and direction. Events may arrive in any order.
type Aggregator struct {
	min, max int64
	seen     bool

	endpoints map[string]table
	global    table

	events int64
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		endpoints: make(map[string]table),
		global:    newTable(),
	}
}

// Ingest adds one event to its endpoint bucket and to the global bucket.
func (a *Aggregator) Ingest(ev series.Event) error {
	return a.IngestBucket(series.BucketFromEvent(ev))
}

// IngestBucket adds pre-aggregated totals, as loaded from a store.
func (a *Aggregator) IngestBucket(b series.Bucket) error {
	if b.Direction != series.Read && b.Direction != series.Write {
		return fmt.Errorf("invalid direction %q for %s", b.Direction, b.Key)
	}

	if !a.seen {
		a.min, a.max, a.seen = b.Second, b.Second, true
	}
	if b.Second < a.min {
		a.min = b.Second
	}
	if b.Second > a.max {
		a.max = b.Second
	}

	t, ok := a.endpoints[b.Key]
	if !ok {
		t = newTable()
		a.endpoints[b.Key] = t
	}
	t.add(b.Direction, b.Second, b.Bytes, b.Packets)
	a.global.add(b.Direction, b.Second, b.Bytes, b.Packets)
	a.events += b.Packets
	return nil
}

// Range returns the first and last observed second. ok is false until the
// first event.
func (a *Aggregator) Range() (min, max int64, ok bool) {
	return a.min, a.max, a.seen
}

// Events returns the number of packets ingested.
func (a *Aggregator) Events() int64 {
	return a.events
}

// Keys returns the endpoint keys in sorted order.
func (a *Aggregator) Keys() []string {
	keys := make([]string, 0, len(a.endpoints))
	for k := range a.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key has been observed.
func (a *Aggregator) Has(key string) bool {
	_, ok := a.endpoints[key]
	return ok
}

// CheckSpan fails with ErrSpanTooLarge when the observed range is too
// wide to fold, e.g. a zero-timestamp forged entry next to a real capture.
func (a *Aggregator) CheckSpan() error {
	if !a.seen {
		return nil
	}
	// Unsigned so that the full int64 range does not wrap
	if d := uint64(a.max) - uint64(a.min); d >= config.GraphMaxSeconds {
		return fmt.Errorf("%w: seconds %d to %d, limit is %d", ErrSpanTooLarge, a.min, a.max, config.GraphMaxSeconds)
	}
	return nil
}

// Finalize folds the series of key. An unknown key yields zero rows over
// the observed range.
func (a *Aggregator) Finalize(key string) ([]series.Row, error) {
	if err := a.CheckSpan(); err != nil {
		return nil, err
	}
	return a.fold(a.endpoints[key]), nil
}

// FinalizeGlobal folds the series of all endpoints together.
func (a *Aggregator) FinalizeGlobal() ([]series.Row, error) {
	if err := a.CheckSpan(); err != nil {
		return nil, err
	}
	return a.fold(a.global), nil
}

// fold emits one row per second of [min, max]. Each second lands in slot
// second mod 60; the average columns are the running sum of that slot
// alone divided by 60, not the sum over the whole window.
func (a *Aggregator) fold(t table) []series.Row {
	if !a.seen {
		return nil
	}

	var readBytes, writeBytes, readPackets, writePackets [series.SlotCount]int64

	rows := make([]series.Row, 0, a.max-a.min+1)
	for s := a.min; s <= a.max; s++ {
		slot := Slot(s)
		r := t.get(series.Read, s)
		w := t.get(series.Write, s)

		readBytes[slot] += r.bytes
		writeBytes[slot] += w.bytes
		readPackets[slot] += r.packets
		writePackets[slot] += w.packets

		rows = append(rows, series.Row{
			Offset:          s - a.min,
			Second:          s,
			ReadBytes:       r.bytes,
			ReadBytesAvg:    average(readBytes[slot]),
			WriteBytes:      -w.bytes,
			WriteBytesAvg:   average(-writeBytes[slot]),
			ReadPackets:     r.packets,
			ReadPacketsAvg:  average(readPackets[slot]),
			WritePackets:    -w.packets,
			WritePacketsAvg: average(-writePackets[slot]),
		})
	}
	return rows
}

// Slot folds an absolute second into [0, 60).
func Slot(second int64) int {
	s := second % series.SlotCount
	if s < 0 {
		s += series.SlotCount
	}
	return int(s)
}

func average(sum int64) float64 {
	if sum == 0 {
		return 0
	}
	return float64(sum) / series.SlotCount
}

// Buckets returns every endpoint bucket, ordered by key, direction and
// second.
func (a *Aggregator) Buckets() []series.Bucket {
	var out []series.Bucket
	for _, key := range a.Keys() {
		t := a.endpoints[key]
		for _, dir := range []series.Direction{series.Read, series.Write} {
			seconds := make([]int64, 0, len(t[dir]))
			for s := range t[dir] {
				seconds = append(seconds, s)
			}
			sort.Slice(seconds, func(i, j int) bool { return seconds[i] < seconds[j] })
			for _, s := range seconds {
				cell := t[dir][s]
				out = append(out, series.Bucket{
					Key:       key,
					Direction: dir,
					Second:    s,
					Bytes:     cell.bytes,
					Packets:   cell.packets,
				})
			}
		}
	}
	return out
}

package series

import (
	"fmt"
)

// GlobalKey names the series that aggregates every endpoint.
const GlobalKey = "global"

// SlotCount is the width of the circular folding window, in seconds.
const SlotCount = 60

// Direction of a data event.
type Direction string

const (
	Read  Direction = "read"
	Write Direction = "write"
)

// ParseDirection accepts "read" or "write".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Read, Write:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q", s)
}

// Event is one read or write observed on an endpoint.
type Event struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
	Second    int64     `json:"second"`
	Length    int64     `json:"length"`
}

// Bucket holds the totals of one endpoint and direction at one second.
type Bucket struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
	Second    int64     `json:"second"`
	Bytes     int64     `json:"bytes"`
	Packets   int64     `json:"packets"`
}

// Validate checks a bucket before it is stored.
func (b Bucket) Validate() error {
	if b.Key == "" {
		return fmt.Errorf("empty key")
	}
	if _, err := ParseDirection(string(b.Direction)); err != nil {
		return err
	}
	if b.Packets < 0 || b.Bytes < 0 {
		return fmt.Errorf("negative totals for %s/%s at %d", b.Key, b.Direction, b.Second)
	}
	return nil
}

// BucketFromEvent returns the single-packet bucket of ev.
func BucketFromEvent(ev Event) Bucket {
	return Bucket{
		Key:       ev.Key,
		Direction: ev.Direction,
		Second:    ev.Second,
		Bytes:     ev.Length,
		Packets:   1,
	}
}

// Row is one second of a folded series. Write columns are negated so read
// and write plot on opposite sides of the axis.
type Row struct {
	Offset int64 `json:"offset"` // seconds since the first observed second
	Second int64 `json:"second"`

	ReadBytes       int64   `json:"read_bytes"`
	ReadBytesAvg    float64 `json:"read_bytes_avg"`
	WriteBytes      int64   `json:"write_bytes"`
	WriteBytesAvg   float64 `json:"write_bytes_avg"`
	ReadPackets     int64   `json:"read_packets"`
	ReadPacketsAvg  float64 `json:"read_packets_avg"`
	WritePackets    int64   `json:"write_packets"`
	WritePacketsAvg float64 `json:"write_packets_avg"`
}

// Columns returns the eight value columns in plotting order.
func (r Row) Columns() [8]float64 {
	return [8]float64{
		float64(r.ReadBytes), r.ReadBytesAvg,
		float64(r.WriteBytes), r.WriteBytesAvg,
		float64(r.ReadPackets), r.ReadPacketsAvg,
		float64(r.WritePackets), r.WritePacketsAvg,
	}
}

// ColumnNames labels the values of Columns.
var ColumnNames = [8]string{
	"read_bytes", "read_bytes_avg",
	"write_bytes", "write_bytes_avg",
	"read_packets", "read_packets_avg",
	"write_packets", "write_packets_avg",
}

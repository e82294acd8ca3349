package forge

import (
	"fmt"

	"github.com/nicktill/tracedump/pkg/record"
)

// DefaultDirection tags forged entries unless the caller picks another.
const DefaultDirection = record.Write

// BuildTestEntry wraps compiled bytes in a successful TCP record with a
// zero timestamp and zero endpoint.
func BuildTestEntry(direction record.ActionKind, payload []byte) record.Record {
	return record.Record{
		Action:   direction,
		Protocol: record.TCP,
		Outcome:  record.Succeeded,
		Length:   int32(len(payload)),
		Payload:  payload,
	}
}

// ParseDirection accepts "read", "write", "1" or "2".
func ParseDirection(s string) (record.ActionKind, error) {
	switch s {
	case "read", "1":
		return record.Read, nil
	case "write", "2":
		return record.Write, nil
	default:
		return 0, fmt.Errorf("invalid direction %q (want read or write)", s)
	}
}

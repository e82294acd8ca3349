package record

import (
	"bytes"
	"fmt"
)

// ActionKind is the syscall that produced a record. Values are bit flags,
// only one of them is ever set on a record.
type ActionKind int8

const (
	Read    ActionKind = 1
	Write   ActionKind = 2
	Connect ActionKind = 4
	Close   ActionKind = 8
)

// String returns the name used by the log line format.
func (a ActionKind) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case Connect:
		return "connect"
	case Close:
		return "close"
	default:
		return "unknown-action"
	}
}

// IsData reports whether the action moves payload bytes.
func (a ActionKind) IsData() bool {
	return a == Read || a == Write
}

// IsConnection reports whether the action changes connection state.
func (a ActionKind) IsConnection() bool {
	return a == Connect || a == Close
}

// Protocol of the traced socket. Anything other than TCP is UDP.
type Protocol int8

const (
	TCP Protocol = 1
	UDP Protocol = 2
)

func (p Protocol) String() string {
	if p == TCP {
		return "tcp"
	}
	return "udp"
}

// Outcome of the traced syscall.
type Outcome int8

const (
	Failed       Outcome = -1 // Length holds an errno
	NotPerformed Outcome = 0  // logged but short-circuited
	Succeeded    Outcome = 1
)

// Record is one captured syscall event.
type Record struct {
	// Timestamp in milliseconds
	Timestamp uint64

	Action   ActionKind
	Protocol Protocol

	LocalPort uint16

	// RemoteAddr holds the octets in stored order (a1, a2, a3, a4).
	// They are rendered as a4.a3.a2.a1.
	RemoteAddr [4]uint8
	RemotePort uint16

	Outcome Outcome

	// Length is the byte count, or an errno when Outcome is Failed
	Length int32

	Payload []byte
}

// HasLength reports whether the encoded record carries the 4-byte length field.
func (r Record) HasLength() bool {
	return !r.Action.IsConnection() || r.Outcome == Failed
}

// HasPayload reports whether the encoded record carries payload bytes.
func (r Record) HasPayload() bool {
	return r.Length > 0 && r.Outcome != Failed
}

// AddrString renders the remote address, last stored octet first.
func (r Record) AddrString() string {
	a := r.RemoteAddr
	return fmt.Sprintf("%d.%d.%d.%d", a[3], a[2], a[1], a[0])
}

// Endpoint renders proto:lport:[addr]:rport.
func (r Record) Endpoint() string {
	return fmt.Sprintf("%s:%d:[%s]:%d", r.Protocol, r.LocalPort, r.AddrString(), r.RemotePort)
}

// Equal compares all fields, treating nil and empty payloads alike.
func (r Record) Equal(o Record) bool {
	return r.Timestamp == o.Timestamp &&
		r.Action == o.Action &&
		r.Protocol == o.Protocol &&
		r.LocalPort == o.LocalPort &&
		r.RemoteAddr == o.RemoteAddr &&
		r.RemotePort == o.RemotePort &&
		r.Outcome == o.Outcome &&
		r.Length == o.Length &&
		bytes.Equal(r.Payload, o.Payload)
}

// IsLegacyForged reports whether the record looks like a test entry from a
// forged dump written before the direction code was made explicit: zero
// timestamp, zero endpoint, tagged as a read.
func (r Record) IsLegacyForged() bool {
	return r.Timestamp == 0 &&
		r.Action == Read &&
		r.LocalPort == 0 &&
		r.RemotePort == 0 &&
		r.RemoteAddr == [4]uint8{}
}

// Reverse returns a copy of r with Read and Write swapped. Other actions
// are returned unchanged. The payload is copied.
func Reverse(r Record) Record {
	out := r
	switch r.Action {
	case Read:
		out.Action = Write
	case Write:
		out.Action = Read
	}
	if r.Payload != nil {
		out.Payload = append([]byte(nil), r.Payload...)
	}
	return out
}

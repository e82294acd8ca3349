package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header layout. All multi-byte fields are little-endian, no padding.
const (
	TimestampBytes  = 8
	ActionBytes     = 1
	ProtocolBytes   = 1
	LocalPortBytes  = 2
	AddrBytes       = 4
	RemotePortBytes = 2
	OutcomeBytes    = 1
	LengthBytes     = 4

	HeaderSize = TimestampBytes + ActionBytes + ProtocolBytes + LocalPortBytes + AddrBytes + RemotePortBytes + OutcomeBytes
)

// MaxPayloadLength bounds the payload a decoder accepts before allocating.
// Encode refuses longer payloads so every encoded record decodes again.
const MaxPayloadLength = 64 << 20

// ByteOrder is the byte order used for every multi-byte field.
var ByteOrder = binary.LittleEndian

// ErrInconsistentRecord is returned by Encode when the record's length and
// payload disagree with what its action and outcome call for.
var ErrInconsistentRecord = errors.New("inconsistent record")

// DecodeError is a fatal error found in the middle of a record.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Validate checks that the tail fields agree with the action and outcome.
func (r Record) Validate() error {
	if !r.HasLength() && r.Length != 0 {
		return fmt.Errorf("%w: %s with outcome %d carries no length, got %d", ErrInconsistentRecord, r.Action, r.Outcome, r.Length)
	}
	if r.Outcome != Failed && r.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInconsistentRecord, r.Length)
	}
	if r.HasPayload() {
		if r.Length > MaxPayloadLength {
			return fmt.Errorf("%w: length %d exceeds %d", ErrInconsistentRecord, r.Length, MaxPayloadLength)
		}
		if len(r.Payload) != int(r.Length) {
			return fmt.Errorf("%w: length %d but %d payload bytes", ErrInconsistentRecord, r.Length, len(r.Payload))
		}
	} else if len(r.Payload) != 0 {
		return fmt.Errorf("%w: %d payload bytes on a record without payload", ErrInconsistentRecord, len(r.Payload))
	}
	return nil
}

// EncodedSize returns the number of bytes Encode produces for r.
func (r Record) EncodedSize() int {
	n := HeaderSize
	if r.HasLength() {
		n += LengthBytes
	}
	if r.HasPayload() {
		n += int(r.Length)
	}
	return n
}

// Encode serializes r.
func Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, r.EncodedSize())
	putHeader(buf, r)
	off := HeaderSize
	if r.HasLength() {
		ByteOrder.PutUint32(buf[off:], uint32(r.Length))
		off += LengthBytes
	}
	if r.HasPayload() {
		copy(buf[off:], r.Payload)
	}
	return buf, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Record) MarshalBinary() ([]byte, error) {
	return Encode(r)
}

// WriteTo writes the encoded record to w.
func (r Record) WriteTo(w io.Writer) (int64, error) {
	buf, err := Encode(r)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

func putHeader(buf []byte, r Record) {
	ByteOrder.PutUint64(buf[0:8], r.Timestamp)
	buf[8] = byte(r.Action)
	buf[9] = byte(r.Protocol)
	ByteOrder.PutUint16(buf[10:12], r.LocalPort)
	copy(buf[12:16], r.RemoteAddr[:])
	ByteOrder.PutUint16(buf[16:18], r.RemotePort)
	buf[18] = byte(r.Outcome)
}

func parseHeader(buf []byte) Record {
	var r Record
	r.Timestamp = ByteOrder.Uint64(buf[0:8])
	r.Action = ActionKind(int8(buf[8]))
	r.Protocol = Protocol(int8(buf[9]))
	r.LocalPort = ByteOrder.Uint16(buf[10:12])
	copy(r.RemoteAddr[:], buf[12:16])
	r.RemotePort = ByteOrder.Uint16(buf[16:18])
	r.Outcome = Outcome(int8(buf[18]))
	return r
}

// Decode reads one record from rd. It returns io.EOF when no byte is
// available at a record boundary. Any short read after that is a
// *DecodeError wrapping io.ErrUnexpectedEOF.
func Decode(rd io.Reader) (Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(rd, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, &DecodeError{Field: "header", Err: err}
	}
	r := parseHeader(header[:])

	if r.HasLength() {
		var lb [LengthBytes]byte
		if _, err := io.ReadFull(rd, lb[:]); err != nil {
			return Record{}, &DecodeError{Field: "length", Err: eofToUnexpected(err)}
		}
		r.Length = int32(ByteOrder.Uint32(lb[:]))
	}

	if r.Outcome != Failed && r.Length < 0 {
		return Record{}, &DecodeError{Field: "length", Err: fmt.Errorf("negative length %d", r.Length)}
	}

	if r.HasPayload() {
		if r.Length > MaxPayloadLength {
			return Record{}, &DecodeError{Field: "payload", Err: fmt.Errorf("length %d exceeds %d", r.Length, MaxPayloadLength)}
		}
		r.Payload = make([]byte, r.Length)
		if _, err := io.ReadFull(rd, r.Payload); err != nil {
			return Record{}, &DecodeError{Field: "payload", Err: eofToUnexpected(err)}
		}
	}
	return r, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Trailing bytes are an error.
func (r *Record) UnmarshalBinary(data []byte) error {
	rd := bytes.NewReader(data)
	dec, err := Decode(rd)
	if err == io.EOF {
		return &DecodeError{Field: "header", Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return err
	}
	if rd.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after record", rd.Len())
	}
	*r = dec
	return nil
}

func eofToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

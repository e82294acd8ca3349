package forge

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/nicktill/tracedump/pkg/record"
)

// BatchError reports a hexa batch that cannot be turned into bytes.
type BatchError struct {
	Batch  string
	Reason string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("invalid batch %q: %s", e.Batch, e.Reason)
}

// Endianness values accepted by hexa(endianess=...).
const (
	EndianCodec  = "ce" // same byte order as the record header
	EndianBig    = "be"
	EndianLittle = "le"
)

func byteOrder(name string) (binary.AppendByteOrder, error) {
	switch name {
	case EndianCodec:
		return record.ByteOrder, nil
	case EndianBig:
		return binary.BigEndian, nil
	case EndianLittle:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("unknown endianess %q (want ce, be or le)", name)
	}
}

// compileHexa reads the body up to a blank line and decodes its batches.
func compileHexa(c *Compiler, params map[string]string) ([]byte, error) {
	var body strings.Builder
	for {
		raw, err := c.readBodyLine()
		if err != nil {
			return nil, err
		}
		if strings.TrimRight(raw, "\r\n") == "" {
			break
		}
		body.WriteString(raw)
	}

	order, err := byteOrder(params["endianess"])
	if err != nil {
		return nil, err
	}
	return decodeBatches(Batches(body.String()), order)
}

// Batches splits s on every character that is not a hex digit or 'x'.
func Batches(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isHexDigit(r) && r != 'x'
	})
}

func decodeBatches(batches []string, order binary.AppendByteOrder) ([]byte, error) {
	out := []byte{}
	for _, b := range batches {
		var err error
		if digits, ok := strings.CutPrefix(b, "0x"); ok && digits != "" && allHex(digits) {
			out, err = appendInteger(out, b, digits, order)
		} else {
			out, err = appendLiteral(out, b)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// appendInteger stores the value on the width its digit count calls for.
func appendInteger(out []byte, batch, digits string, order binary.AppendByteOrder) ([]byte, error) {
	if len(digits) > 16 {
		return nil, &BatchError{Batch: batch, Reason: "more than 64 bits"}
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return nil, &BatchError{Batch: batch, Reason: err.Error()}
	}
	switch n := len(digits); {
	case n <= 2:
		return append(out, byte(v)), nil
	case n <= 4:
		return order.AppendUint16(out, uint16(v)), nil
	case n <= 8:
		return order.AppendUint32(out, uint32(v)), nil
	default:
		return order.AppendUint64(out, v), nil
	}
}

func appendLiteral(out []byte, batch string) ([]byte, error) {
	if len(batch)%2 != 0 {
		return nil, &BatchError{Batch: batch, Reason: "odd number of hex digits"}
	}
	if !allHex(batch) {
		return nil, &BatchError{Batch: batch, Reason: "not a hex literal"}
	}
	b, err := hex.DecodeString(batch)
	if err != nil {
		return nil, &BatchError{Batch: batch, Reason: err.Error()}
	}
	return append(out, b...), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func allHex(s string) bool {
	for _, r := range s {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

package forge

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/record"
)

type warnings []string

func (w *warnings) add(format string, args ...any) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

func compileOne(t *testing.T, script string) ([]byte, error) {
	t.Helper()
	c := NewCompiler(strings.NewReader(script), nil)
	b, err := c.Next()
	return b.Data, err
}

func TestHexa(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []byte
	}{
		{"single byte integer", "hexa(endianess=be)\n0x41\n\n", []byte{0x41}},
		{"literal pairs", "hexa(endianess=be)\n4142\n\n", []byte{0x41, 0x42}},
		{"16 bit big endian", "hexa(endianess=be)\n0x0102\n\n", []byte{0x01, 0x02}},
		{"16 bit little endian", "hexa(endianess=le)\n0x0102\n\n", []byte{0x02, 0x01}},
		{"codec order is little endian", "hexa()\n0x0102\n\n", []byte{0x02, 0x01}},
		{"three digits take two bytes", "hexa(endianess=be)\n0x123\n\n", []byte{0x01, 0x23}},
		{"32 bit", "hexa(endianess=be)\n0xdeadbeef\n\n", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"64 bit", "hexa(endianess=le)\n0x0102030405\n\n", []byte{0x05, 0x04, 0x03, 0x02, 0x01, 0, 0, 0}},
		{"separators", "hexa(endianess=be)\n41 42, 43-44\n45:0x46\n\n", []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x46}},
		{"newline separates lines", "hexa()\n41\n42\n\n", []byte{0x41, 0x42}},
		{"uppercase literal", "hexa()\nABcd\n\n", []byte{0xab, 0xcd}},
		{"empty body", "hexa()\n\n", []byte{}},
		{"body ends at eof", "hexa()\n4142", []byte{0x41, 0x42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileOne(t, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexaOddBatch(t *testing.T) {
	got, err := compileOne(t, "hexa(endianess=be)\n4142 414\n\n")
	require.Error(t, err)
	assert.Nil(t, got)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "414", be.Batch)
	assert.Contains(t, err.Error(), `"414"`)
}

func TestHexaInvalidBatches(t *testing.T) {
	for _, body := range []string{"x1", "0x", "4x41", "0x11112222333344445"} {
		_, err := compileOne(t, "hexa()\n"+body+"\n\n")
		var be *BatchError
		assert.True(t, errors.As(err, &be), "body %q: %v", body, err)
	}
}

func TestHexaUnknownEndianess(t *testing.T) {
	_, err := compileOne(t, "hexa(endianess=middle)\n41\n\n")
	assert.Error(t, err)
}

func TestHexaErrorKeepsEarlierBlocks(t *testing.T) {
	script := "text()\nfirst\n\nhexa()\n414\n\ntext()\nlast\n\n"
	out, err := CompileAll(strings.NewReader(script), nil)
	require.Error(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "first\n", string(out[0]))
}

func TestText(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"default eol", "text()\nab\ncd\n\n", "ab\ncd\n"},
		{"empty eol", "text(eol=)\nab\ncd\n\n", "abcd"},
		{"crlf eol", `text(eol=\r\n)` + "\nab\n\n", "ab\r\n"},
		{"custom eol", "text(eol=;)\na\nb\n\n", "a;b;"},
		{"strips carriage return", "text()\nab\r\n\r\n", "ab\n"},
		{"blank first line", "text()\n\n", "\n"},
		{"blank first line empty eol", "text(eol=)\n\n", ""},
		{"spaces are content", "text(eol=)\n  \n\n", "  "},
		{"eof ends block", "text(eol=|)\nab", "ab|"},
		{"eof right after header", "text(eol=|)\n", "|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileOne(t, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUnknownLinesAreSkipped(t *testing.T) {
	var w warnings
	script := "hello there\nbinary(x=1)\n\n  text()  \nok\n\n"
	c := NewCompiler(strings.NewReader(script), w.add)

	b, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "text", b.Command)
	assert.Equal(t, 4, b.Line)
	assert.Equal(t, "ok\n", string(b.Data))
	assert.Len(t, w, 2)

	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
}

func TestParamsMergeDefaults(t *testing.T) {
	var w warnings
	c := NewCompiler(strings.NewReader("text(foo=bar,junk)\nx\n\n"), w.add)
	b, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"eol": `\n`}, b.Params)
	assert.Len(t, w, 2)
}

func TestSequenceOfBlocks(t *testing.T) {
	script := "text(eol=)\nGET / HTTP/1.0\n\nhexa(endianess=be)\n0d0a 0d0a\n\n"
	out, err := CompileAll(strings.NewReader(script), nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "GET / HTTP/1.0", string(out[0]))
	assert.Equal(t, []byte("\r\n\r\n"), out[1])
}

func TestBuildTestEntry(t *testing.T) {
	r := BuildTestEntry(record.Write, []byte("abc"))
	assert.Equal(t, record.Write, r.Action)
	assert.Equal(t, record.TCP, r.Protocol)
	assert.Equal(t, record.Succeeded, r.Outcome)
	assert.Equal(t, int32(3), r.Length)
	assert.Equal(t, uint64(0), r.Timestamp)
	assert.Equal(t, [4]uint8{}, r.RemoteAddr)
	require.NoError(t, r.Validate())

	empty := BuildTestEntry(record.Read, []byte{})
	require.NoError(t, empty.Validate())
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("read")
	require.NoError(t, err)
	assert.Equal(t, record.Read, d)

	d, err = ParseDirection("2")
	require.NoError(t, err)
	assert.Equal(t, record.Write, d)

	_, err = ParseDirection("connect")
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []string{"hexa", "text"}, Commands())
}

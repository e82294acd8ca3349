package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/logparse"
	"github.com/nicktill/tracedump/pkg/record"
)

func base(action record.ActionKind, outcome record.Outcome, length int32) record.Record {
	return record.Record{
		Timestamp:  1700000000123,
		Action:     action,
		Protocol:   record.TCP,
		LocalPort:  8080,
		RemoteAddr: [4]uint8{1, 0, 0, 127},
		RemotePort: 443,
		Outcome:    outcome,
		Length:     length,
	}
}

func TestHeader(t *testing.T) {
	udp := base(record.Read, record.Succeeded, 0)
	udp.Protocol = record.UDP

	tests := []struct {
		name string
		rec  record.Record
		want string
	}{
		{"write", base(record.Write, record.Succeeded, 5), "[ts 1700000000123] [line 0] write tcp:8080:[127.0.0.1]:443 length=5"},
		{"read udp", udp, "[ts 1700000000123] [line 0] read udp:8080:[127.0.0.1]:443 length=0"},
		{"not performed", base(record.Read, record.NotPerformed, 0), "[ts 1700000000123] [line 0] read tcp:8080:[127.0.0.1]:443 length=0 callnotperformed"},
		{"connect", base(record.Connect, record.Succeeded, 0), "[ts 1700000000123] [line 0] connect tcp:8080:[127.0.0.1]:443"},
		{"close not performed", base(record.Close, record.NotPerformed, 0), "[ts 1700000000123] [line 0] close tcp:8080:[127.0.0.1]:443 callnotperformed"},
		{"unknown high", base(16, record.Succeeded, 0), "[ts 1700000000123] [line 0] unknown-action tcp:8080:[127.0.0.1]:443"},
		{"unknown low", base(0, record.Succeeded, 3), "[ts 1700000000123] [line 0] unknown-action tcp:8080:[127.0.0.1]:443 length=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Header(tt.rec))
		})
	}
}

func TestHeaderFailed(t *testing.T) {
	got := Header(base(record.Write, record.Failed, 32))
	assert.True(t, strings.HasPrefix(got, `[ts 1700000000123] [line 0] write tcp:8080:[127.0.0.1]:443 error="`), got)
	assert.NotContains(t, got, "length=")
	assert.True(t, strings.HasSuffix(got, `"`))
}

func TestHeaderParsesBack(t *testing.T) {
	rec := base(record.Write, record.Succeeded, 5)
	ev, ok := logparse.ParseLine(Header(rec), logparse.DefaultMask)
	require.True(t, ok)

	want, ok := logparse.EventFromRecord(rec, logparse.DefaultMask)
	require.True(t, ok)
	assert.Equal(t, want, ev)
}

func TestHexdump(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("0123456789abcdef\x00\x7fZ")
	require.NoError(t, Hexdump(&buf, data))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"00000000  30 31 32 33 34 35 36 37  38 39 61 62 63 64 65 66  |0123456789abcdef|",
		lines[0])
	assert.Equal(t,
		"00000010  00 7f 5a                                          |..Z|",
		lines[1])
}

func TestHexdumpEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Hexdump(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestPrinter(t *testing.T) {
	payload := base(record.Read, record.Succeeded, 2)
	payload.Payload = []byte("hi")

	t.Run("full", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, false)
		require.NoError(t, p.Print(payload))
		require.NoError(t, p.Print(base(record.Connect, record.Succeeded, 0)))
		require.NoError(t, p.Flush())

		want := "[ts 1700000000123] [line 0] read tcp:8080:[127.0.0.1]:443 length=2\n" +
			"00000000  68 69                                             |hi|\n" +
			"\n" +
			"[ts 1700000000123] [line 0] connect tcp:8080:[127.0.0.1]:443\n"
		assert.Equal(t, want, buf.String())
	})

	t.Run("simplified", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteRecord(&buf, payload, true))
		assert.Equal(t, "[ts 1700000000123] [line 0] read tcp:8080:[127.0.0.1]:443 length=2\n", buf.String())
	})

	t.Run("failed has no dump", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteRecord(&buf, base(record.Read, record.Failed, 104), false))
		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	})
}

package logparse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tracedump/pkg/record"
	"github.com/nicktill/tracedump/pkg/series"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want series.Event
		ok   bool
	}{
		{
			line: "[ts 1700000000999] [line 3] read tcp:8080:[127.0.0.1]:443 length=512",
			want: series.Event{Key: "tcp:8080:[127.0.0.1]:443", Direction: series.Read, Second: 1700000000, Length: 512},
			ok:   true,
		},
		{
			line: "[ts 999] [line 0] write udp:53:[8.8.8.8]:53 length=0 callnotperformed",
			want: series.Event{Key: "udp:53:[8.8.8.8]:53", Direction: series.Write, Second: 0, Length: 0},
			ok:   true,
		},
		{line: "[ts 1000] [line 0] connect tcp:0:[1.2.3.4]:80", ok: false},
		{line: `[ts 1000] [line 0] read tcp:1:[1.2.3.4]:80 error="Connection reset by peer"`, ok: false},
		{line: "00000000  41 42                                             |AB|", ok: false},
		{line: "", ok: false},
		{line: "[ts 99999999999999999999] [line 0] read tcp:1:[1.2.3.4]:80 length=1", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseLine(tt.line, DefaultMask)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, got, "line %q", tt.line)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		mask Mask
		want string
	}{
		{DefaultMask, "tcp:80:[10.0.0.1]:443"},
		{"", "tcp:80:[10.0.0.1]:443"},
		{"%proto", "tcp"},
		{"%addr", "10.0.0.1"},
		{"host %addr port %rport", "host 10.0.0.1 port 443"},
		{"%lport-%lport", "80-80"},
		{"static", "static"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mask.Key("tcp", "80", "10.0.0.1", "443"), "mask %q", tt.mask)
	}
}

func TestMaskSinglePass(t *testing.T) {
	// A substituted value that itself looks like a placeholder stays as is.
	got := Mask("%addr:%rport").Key("tcp", "1", "%rport", "9")
	assert.Equal(t, "%rport:9", got)
}

func TestParserSkipsNoise(t *testing.T) {
	input := strings.Join([]string{
		"[ts 100000] [line 0] connect tcp:0:[1.2.3.4]:80",
		"[ts 100500] [line 0] write tcp:0:[1.2.3.4]:80 length=10",
		"00000000  61 62 63                                         |abc|",
		"",
		"[ts 101000] [line 0] read tcp:0:[1.2.3.4]:80 length=20",
		"",
	}, "\n")

	p := NewParser(strings.NewReader(input), DefaultMask)
	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, series.Write, ev.Direction)
	assert.Equal(t, int64(100), ev.Second)

	ev, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, series.Read, ev.Direction)
	assert.Equal(t, int64(101), ev.Second)
	assert.Equal(t, int64(20), ev.Length)

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, p.Skipped())
	assert.Equal(t, 5, p.Lines())
}

func TestKeyIgnoresTimestamp(t *testing.T) {
	events, err := ParseAll(strings.NewReader(
		"[ts 5000] [line 0] read tcp:22:[10.1.1.1]:5555 length=1\n"+
			"[ts 9000] [line 7] read tcp:22:[10.1.1.1]:5555 length=2\n"), DefaultMask)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Key, events[1].Key)
}

func TestEventFromRecord(t *testing.T) {
	r := record.Record{
		Timestamp:  123456,
		Action:     record.Write,
		Protocol:   record.TCP,
		LocalPort:  8080,
		RemoteAddr: [4]uint8{1, 0, 0, 127},
		RemotePort: 443,
		Outcome:    record.Succeeded,
		Length:     3,
		Payload:    []byte("abc"),
	}
	ev, ok := EventFromRecord(r, DefaultMask)
	require.True(t, ok)
	assert.Equal(t, series.Event{Key: "tcp:8080:[127.0.0.1]:443", Direction: series.Write, Second: 123, Length: 3}, ev)

	r.Outcome = record.Failed
	r.Payload = nil
	_, ok = EventFromRecord(r, DefaultMask)
	assert.False(t, ok)

	_, ok = EventFromRecord(record.Record{Action: record.Connect, Outcome: record.Succeeded}, DefaultMask)
	assert.False(t, ok)
}

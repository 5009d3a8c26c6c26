package wire

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "request", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`},
		{name: "nested params", body: `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"read_file","arguments":{"path":"/etc/hosts"}}}`},
		{name: "unicode body", body: `{"jsonrpc":"2.0","id":2,"result":{"text":"héllo wörld ✓"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, []byte(tt.body)))

			dec := NewDecoder(0)
			bodies, err := dec.Feed(buf.Bytes())
			require.NoError(t, err)
			require.Len(t, bodies, 1)
			assert.JSONEq(t, tt.body, string(bodies[0]))
			assert.Equal(t, 0, dec.Buffered())
		})
	}
}

func TestDecoderPartialFrames(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte(body)))
	raw := buf.Bytes()

	// Deliver the frame byte by byte; exactly one message must come out,
	// and only once the final byte has arrived.
	dec := NewDecoder(0)
	var got [][]byte
	for i, b := range raw {
		bodies, err := dec.Feed([]byte{b})
		require.NoError(t, err)
		if i < len(raw)-1 {
			assert.Empty(t, bodies)
		}
		got = append(got, bodies...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, body, string(got[0]))
}

func TestDecoderSplitPoints(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":42,"result":"ok"}`
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte(body)))
	raw := buf.Bytes()

	for split := 1; split < len(raw); split++ {
		dec := NewDecoder(0)
		first, err := dec.Feed(raw[:split])
		require.NoError(t, err)
		rest, err := dec.Feed(raw[split:])
		require.NoError(t, err)
		all := append(first, rest...)
		require.Len(t, all, 1, "split at %d", split)
		assert.Equal(t, body, string(all[0]))
	}
}

func TestDecoderMergedFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":null}`, i+1)
		require.NoError(t, Encode(&buf, []byte(body)))
	}

	dec := NewDecoder(0)
	bodies, err := dec.Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, bodies, 3)
	for i, b := range bodies {
		assert.Contains(t, string(b), fmt.Sprintf(`"id":%d`, i+1))
	}
}

func TestDecoderShortBodyWaits(t *testing.T) {
	// Header declares length 2 but only one body byte has arrived. The
	// decoder must wait, not error.
	dec := NewDecoder(0)
	bodies, err := dec.Feed([]byte("Content-Length: 2\r\n\r\n{"))
	require.NoError(t, err)
	assert.Empty(t, bodies)
	assert.Positive(t, dec.Buffered())

	bodies, err = dec.Feed([]byte("}"))
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Equal(t, "{}", string(bodies[0]))
}

func TestDecoderBodyCap(t *testing.T) {
	dec := NewDecoder(1024)
	bodies, err := dec.Feed([]byte("Content-Length: 2048\r\n\r\n"))
	assert.Empty(t, bodies)

	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "exceeds cap")
	assert.Equal(t, 0, dec.Buffered())
}

func TestDecoderBadLength(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "negative", header: "Content-Length: -5\r\n\r\n"},
		{name: "non numeric", header: "Content-Length: banana\r\n\r\n"},
		{name: "missing", header: "Content-Type: application/json\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(0)
			_, err := dec.Feed([]byte(tt.header))
			var fe *FramingError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, 0, dec.Buffered())
		})
	}
}

func TestDecoderHeaderScanBound(t *testing.T) {
	dec := NewDecoder(0)
	junk := bytes.Repeat([]byte("x"), maxHeaderScanBytes+1)
	_, err := dec.Feed(junk)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, dec.Buffered())
}

func TestDecoderExtraHeaderLines(t *testing.T) {
	dec := NewDecoder(0)
	frame := "Content-Type: application/json\r\ncontent-length: 2\r\n\r\n{}"
	bodies, err := dec.Feed([]byte(frame))
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Equal(t, "{}", string(bodies[0]))
}

func TestDecoderTrailingBytesKept(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte(`{"jsonrpc":"2.0","id":1,"result":null}`)))
	buf.WriteString("Content-Length: 50")

	dec := NewDecoder(0)
	bodies, err := dec.Feed(buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, bodies, 1)
	assert.Equal(t, len("Content-Length: 50"), dec.Buffered())
}

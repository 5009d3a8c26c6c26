// Copyright 2025 The toolmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Message framing over a continuous byte stream. Each message is a
// "Content-Length: <N>" header, a blank line, and exactly N bytes of JSON.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerName      = "Content-Length"
	headerDelimiter = "\r\n\r\n"

	// DefaultMaxBodyBytes caps the declared body length of a single message.
	// Bounds memory against a misbehaving or malicious peer.
	DefaultMaxBodyBytes = 10 << 20

	// maxHeaderScanBytes bounds how much buffered input may accumulate
	// without a complete header before the stream is treated as corrupt.
	maxHeaderScanBytes = 64 << 10
)

// FramingError reports a violation of the wire framing. Any framing error is
// fatal for the stream that produced it.
type FramingError struct {
	Reason string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	return "framing error: " + e.Reason
}

// Encode writes one framed message body to w: header, blank line, body.
func Encode(w io.Writer, body []byte) error {
	header := fmt.Sprintf("%s: %d%s", headerName, len(body), headerDelimiter)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// EncodeMessage marshals m and writes it as one framed message.
func EncodeMessage(w io.Writer, m *Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return Encode(w, body)
}

// Decoder reassembles framed message bodies from arbitrarily chunked input.
// The internal buffer only ever holds bytes of an as-yet-incomplete message
// plus any trailing bytes awaiting the next header.
type Decoder struct {
	buf     bytes.Buffer
	maxBody int
}

// NewDecoder creates a decoder with the given body-size cap.
// A non-positive cap uses DefaultMaxBodyBytes.
func NewDecoder(maxBody int) *Decoder {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Decoder{maxBody: maxBody}
}

// Buffered reports how many bytes are held awaiting a complete message.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Feed appends a chunk of stream input and returns every complete message
// body it now holds. A returned *FramingError means the stream is corrupt;
// the buffer has been cleared and the connection must be torn down.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf.Write(chunk)

	var bodies [][]byte
	for {
		data := d.buf.Bytes()
		headerEnd := bytes.Index(data, []byte(headerDelimiter))
		if headerEnd < 0 {
			if d.buf.Len() > maxHeaderScanBytes {
				d.buf.Reset()
				return bodies, &FramingError{Reason: fmt.Sprintf("no header within %d bytes", maxHeaderScanBytes)}
			}
			return bodies, nil
		}

		length, err := parseContentLength(data[:headerEnd])
		if err != nil {
			d.buf.Reset()
			return bodies, err
		}
		if length > d.maxBody {
			d.buf.Reset()
			return bodies, &FramingError{Reason: fmt.Sprintf("declared body length %d exceeds cap %d", length, d.maxBody)}
		}

		total := headerEnd + len(headerDelimiter) + length
		if d.buf.Len() < total {
			// Partial body. Wait for more input.
			return bodies, nil
		}

		body := make([]byte, length)
		copy(body, data[headerEnd+len(headerDelimiter):total])
		d.buf.Next(total)
		bodies = append(bodies, body)
	}
}

// parseContentLength extracts the declared body length from a header block.
// Unknown header lines are ignored; a missing or malformed length is fatal.
func parseContentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), headerName) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, &FramingError{Reason: fmt.Sprintf("invalid %s value %q", headerName, strings.TrimSpace(value))}
		}
		return n, nil
	}
	return 0, &FramingError{Reason: "header block missing " + headerName}
}

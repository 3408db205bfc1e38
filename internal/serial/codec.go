// Package serial is the gateway's serial console: every bus frame is echoed
// as a CR-terminated hex line, and lines typed on the console are parsed
// back into frames for transmission.
package serial

import (
	"bytes"

	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
)

// Banner is written once when the console opens.
const Banner = "VPW gateway\r"

// Codec renders console lines. The zero value is ready to use.
type Codec struct{}

var lines = hexline.Codec{Terminator: "\r"}

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	// If buffer size < 1KB, skip.
	if len(data) < 1024 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// Encode returns the echo line for f, e.g. "28 1B 10 02 0A F0\r".
func (Codec) Encode(f j1850.Frame) []byte {
	return lines.AppendFrame(make([]byte, 0, 3*j1850.MaxFrameLen+1), f)
}

// DecodeStream consumes complete lines from in and emits their frames via
// out. Lines end in CR or LF; blank lines are ignored and malformed ones
// are counted and skipped. A trailing partial line stays in the buffer
// unless it already exceeds hexline.MaxLine, in which case it is dropped.
func (Codec) DecodeStream(in *bytes.Buffer, out func(j1850.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			if len(data) > hexline.MaxLine {
				metrics.IncMalformed()
				in.Reset()
			}
			return nil
		}
		line := bytes.TrimSpace(data[:i])
		switch {
		case len(line) == 0:
		case len(line) > hexline.MaxLine:
			metrics.IncMalformed()
		default:
			if f, err := lines.ParseLine(line); err == nil {
				metrics.IncConsoleRx()
				out(f)
			}
		}
		in.Next(i + 1)
	}
}

// Package hexline is the text wire format of the gateway: one frame per
// line, bytes as upper-case hex separated by single spaces.
//
//	28 1B 10 02 0A F0\r\n
package hexline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
)

// MaxLine bounds an input line, terminator excluded.
const MaxLine = 128

var (
	// ErrSyntax is returned for characters that are not hex digits or
	// separators, or for an odd number of digits in a byte group.
	ErrSyntax = errors.New("hexline: syntax error")
	// ErrInvalidLength is returned for lines with no bytes or more than
	// a frame can carry.
	ErrInvalidLength = errors.New("hexline: invalid length")
	// ErrLineTooLong is returned when no terminator shows up within MaxLine.
	ErrLineTooLong = errors.New("hexline: line too long")
)

// Codec encodes and parses frames. Stateless and safe for concurrent use.
type Codec struct {
	// Terminator ends every encoded line; empty means "\r\n".
	Terminator string
}

const hexDigits = "0123456789ABCDEF"

func (c *Codec) term() string {
	if c.Terminator == "" {
		return "\r\n"
	}
	return c.Terminator
}

// AppendFrame appends the text form of f, terminator included.
func (c *Codec) AppendFrame(dst []byte, f j1850.Frame) []byte {
	for i, b := range f.Bytes() {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return append(dst, c.term()...)
}

// Encode renders frames as consecutive lines.
func (c *Codec) Encode(frames []j1850.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(frames)*(3*j1850.MaxFrameLen+2))
	for _, f := range frames {
		buf = c.AppendFrame(buf, f)
	}
	return buf
}

// EncodeTo writes frames to w in one call and returns the bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []j1850.Frame) (int, error) {
	n, err := w.Write(c.Encode(frames))
	if err != nil {
		return n, fmt.Errorf("hexline encode: %w", err)
	}
	return n, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// ParseLine parses one line without its terminator. Bytes may be separated
// by spaces or tabs, or packed ("281B10"); digits may be lower case.
func (c *Codec) ParseLine(line []byte) (j1850.Frame, error) {
	var f j1850.Frame
	line = bytes.TrimRight(line, "\r\n")
	n := 0
	var hi byte
	half := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == ' ' || ch == '\t' {
			if half {
				metrics.IncMalformed()
				return f, fmt.Errorf("%w: lone digit at column %d", ErrSyntax, i)
			}
			continue
		}
		v, ok := unhex(ch)
		if !ok {
			metrics.IncMalformed()
			return f, fmt.Errorf("%w: %q at column %d", ErrSyntax, ch, i+1)
		}
		if !half {
			hi, half = v, true
			continue
		}
		if n == j1850.MaxFrameLen {
			metrics.IncMalformed()
			return f, fmt.Errorf("%w: more than %d bytes", ErrInvalidLength, j1850.MaxFrameLen)
		}
		f.Data[n] = hi<<4 | v
		n++
		half = false
	}
	if half {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w: odd number of digits", ErrSyntax)
	}
	if n == 0 {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w: empty frame", ErrInvalidLength)
	}
	f.Len = uint8(n)
	return f, nil
}

// Malformed reports whether err came from a bad line rather than from the
// underlying reader.
func Malformed(err error) bool {
	return errors.Is(err, ErrSyntax) || errors.Is(err, ErrInvalidLength) || errors.Is(err, ErrLineTooLong)
}

// Decoder reads frames line by line. A partial line survives read errors
// such as deadline timeouts, so the caller can retry on the same Decoder.
type Decoder struct {
	codec   *Codec
	br      *bufio.Reader
	pending []byte
	skip    bool
}

// NewDecoder wraps r.
func (c *Codec) NewDecoder(r io.Reader) *Decoder {
	return &Decoder{codec: c, br: bufio.NewReaderSize(r, 512)}
}

// readLine returns the next non-empty line.
func (d *Decoder) readLine() ([]byte, error) {
	for {
		chunk, err := d.br.ReadSlice('\n')
		if !d.skip {
			d.pending = append(d.pending, chunk...)
		}
		if err == nil {
			line := bytes.TrimSpace(d.pending)
			d.pending = d.pending[:0]
			if d.skip {
				d.skip = false
				continue
			}
			if len(line) == 0 {
				continue
			}
			if len(line) > MaxLine {
				metrics.IncMalformed()
				return nil, fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(line))
			}
			return line, nil
		}
		if !d.skip && len(d.pending) > MaxLine {
			// Drop the rest of this line once its terminator arrives.
			d.pending = d.pending[:0]
			d.skip = true
			metrics.IncMalformed()
			return nil, fmt.Errorf("%w: over %d bytes", ErrLineTooLong, MaxLine)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && !d.skip {
			if line := bytes.TrimSpace(d.pending); len(line) > 0 {
				d.pending = d.pending[:0]
				return line, nil
			}
		}
		return nil, err
	}
}

// Decode returns the next frame. Malformed lines yield an error for which
// Malformed is true; decoding can continue after them.
func (d *Decoder) Decode() (j1850.Frame, error) {
	line, err := d.readLine()
	if err != nil {
		return j1850.Frame{}, err
	}
	return d.codec.ParseLine(line)
}

// DecodeN decodes up to max frames (if max>0) or until an error (if
// max<=0), invoking onFrame for each. It returns the number of frames
// decoded and the terminal error.
func (d *Decoder) DecodeN(max int, onFrame func(j1850.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := d.Decode()
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}

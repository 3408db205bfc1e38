package j1850

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFrameLen is the longest frame (header, data and CRC together) a node
// may put on the bus.
const MaxFrameLen = 12

// ErrFrameLength is returned when a payload does not fit in a frame.
var ErrFrameLength = errors.New("j1850: invalid frame length")

// Frame is one complete bus message in transmission order.
// Only the first Len bytes of Data are valid. A received frame may be
// empty (Len == 0) when EOD follows SOF directly.
type Frame struct {
	Len  uint8
	Data [MaxFrameLen]byte
}

// NewFrame copies b into a Frame. b must hold 1..12 bytes.
func NewFrame(b ...byte) (Frame, error) {
	var f Frame
	if len(b) == 0 || len(b) > MaxFrameLen {
		return f, fmt.Errorf("%w (%d)", ErrFrameLength, len(b))
	}
	f.Len = uint8(len(b))
	copy(f.Data[:], b)
	return f, nil
}

// MustFrame is NewFrame for literals in tests and tables; it panics on a bad length.
func MustFrame(b ...byte) Frame {
	f, err := NewFrame(b...)
	if err != nil {
		panic(err)
	}
	return f
}

// Bytes returns the valid portion of the frame.
func (f Frame) Bytes() []byte { return f.Data[:f.Len:f.Len] }

// Equal reports whether both frames carry the same bytes.
func (f Frame) Equal(g Frame) bool {
	if f.Len != g.Len {
		return false
	}
	return string(f.Data[:f.Len]) == string(g.Data[:g.Len])
}

// HasPrefix reports whether the frame starts with p.
func (f Frame) HasPrefix(p ...byte) bool {
	if len(p) > int(f.Len) {
		return false
	}
	for i, b := range p {
		if f.Data[i] != b {
			return false
		}
	}
	return true
}

// AppendCRC returns a copy of f with the CRC-8 of its bytes appended.
func (f Frame) AppendCRC() (Frame, error) {
	if f.Len >= MaxFrameLen {
		return f, fmt.Errorf("%w: no room for crc", ErrFrameLength)
	}
	f.Data[f.Len] = CRC8(f.Data[:f.Len])
	f.Len++
	return f, nil
}

// CheckCRC reports whether the last byte is the CRC-8 of the bytes before it.
func (f Frame) CheckCRC() bool {
	if f.Len < 2 {
		return false
	}
	return CRC8(f.Data[:f.Len-1]) == f.Data[f.Len-1]
}

// String renders the frame as upper-case hex bytes separated by spaces.
func (f Frame) String() string {
	var sb strings.Builder
	for i := 0; i < int(f.Len); i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", f.Data[i])
	}
	return sb.String()
}

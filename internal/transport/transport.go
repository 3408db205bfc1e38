package transport

import (
	"io"

	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

// FrameParser parses one text line into a frame.
type FrameParser interface {
	ParseLine(line []byte) (j1850.Frame, error)
}

// StreamDecoder hands out a stateful line decoder per connection.
type StreamDecoder interface {
	NewDecoder(r io.Reader) *hexline.Decoder
}

// FrameBatchEncoder can encode batches efficiently (either to bytes or directly to writer).
type FrameBatchEncoder interface {
	Encode([]j1850.Frame) []byte
	EncodeTo(w io.Writer, frames []j1850.Frame) (int, error)
}

// FrameCodec is what the TCP server needs from a wire codec.
type FrameCodec interface {
	StreamDecoder
	FrameBatchEncoder
}

// FrameSink is a generic frame transmission target.
type FrameSink interface {
	SendFrame(j1850.Frame) error
}

// Compile-time assertions that *hexline.Codec satisfies the capabilities.
var (
	_ FrameParser       = (*hexline.Codec)(nil)
	_ StreamDecoder     = (*hexline.Codec)(nil)
	_ FrameBatchEncoder = (*hexline.Codec)(nil)
	_ FrameCodec        = (*hexline.Codec)(nil)
	_ FrameSink         = (*AsyncTx)(nil)
)

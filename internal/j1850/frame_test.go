package j1850

import (
	"errors"
	"testing"
)

func TestNewFrameLength(t *testing.T) {
	if _, err := NewFrame(); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("empty: expected ErrFrameLength, got %v", err)
	}
	if _, err := NewFrame(make([]byte, 13)...); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("13 bytes: expected ErrFrameLength, got %v", err)
	}
	f, err := NewFrame(make([]byte, 12)...)
	if err != nil || f.Len != 12 {
		t.Fatalf("12 bytes: len=%d err=%v", f.Len, err)
	}
}

func TestFrameStringAndPrefix(t *testing.T) {
	f := MustFrame(0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0)
	if s := f.String(); s != "28 1B 10 02 0A F0" {
		t.Fatalf("String=%q", s)
	}
	if !f.HasPrefix(0x28, 0x1B, 0x10, 0x02) {
		t.Fatalf("expected prefix match")
	}
	if f.HasPrefix(0x28, 0x1C) {
		t.Fatalf("unexpected prefix match")
	}
	if MustFrame(0x01).HasPrefix(0x01, 0x02) {
		t.Fatalf("prefix longer than frame must not match")
	}
}

func TestFrameCRCRoundTrip(t *testing.T) {
	f := MustFrame(0x68, 0x6A, 0xF1, 0x01, 0x00)
	g, err := f.AppendCRC()
	if err != nil {
		t.Fatalf("AppendCRC: %v", err)
	}
	if g.Len != 6 || g.Data[5] != 0x17 {
		t.Fatalf("unexpected frame %s", g)
	}
	if !g.CheckCRC() {
		t.Fatalf("CheckCRC false on fresh crc")
	}
	g.Data[3] ^= 0x01
	if g.CheckCRC() {
		t.Fatalf("CheckCRC true after corruption")
	}
	if _, err := MustFrame(make([]byte, 12)...).AppendCRC(); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("full frame: expected ErrFrameLength, got %v", err)
	}
}

func TestFrameEqualIgnoresTail(t *testing.T) {
	a := MustFrame(1, 2, 3)
	b := a
	b.Data[7] = 0xFF
	if !a.Equal(b) {
		t.Fatalf("bytes past Len must not affect Equal")
	}
	b.Data[2] = 9
	if a.Equal(b) {
		t.Fatalf("expected mismatch")
	}
}

func TestHeaderDecode(t *testing.T) {
	h, ok := MustFrame(0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0).Header()
	if !ok {
		t.Fatalf("header not decoded")
	}
	want := Header{Priority: 1, NoIFR: true, Target: 0x1B, Source: 0x10}
	if h != want {
		t.Fatalf("got %+v want %+v", h, want)
	}
	h, ok = MustFrame(0x6C, 0x10, 0xF1, 0x20).Header()
	if !ok || !h.Physical || h.Priority != 3 || h.Target != 0x10 || h.Source != 0xF1 {
		t.Fatalf("physical header: %+v ok=%v", h, ok)
	}
	if _, ok := MustFrame(0x28, 0x1B).Header(); ok {
		t.Fatalf("truncated three byte header must fail")
	}
	f := MustFrame(0x38, 0xAA, 0xBB)
	if h, ok := f.Header(); !ok || !h.SingleHdr {
		t.Fatalf("single byte header: %+v ok=%v", h, ok)
	}
	if p := f.Payload(); len(p) != 2 || p[0] != 0xAA {
		t.Fatalf("payload % X", p)
	}
}

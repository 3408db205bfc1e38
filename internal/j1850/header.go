package j1850

// Header is the decoded one or three byte J1850 message header.
//
// First byte layout (MSB first):
//
//	PPP H K Y ZZ
//	 |  | | |  +- message type
//	 |  | | +---- addressing: 0 functional, 1 physical
//	 |  | +------ 1 = in-frame response not required
//	 |  +-------- 0 = three byte header, 1 = single byte header
//	 +----------- priority, 0 is highest
type Header struct {
	Priority  uint8
	SingleHdr bool
	NoIFR     bool
	Physical  bool
	Type      uint8
	Target    byte
	Source    byte
}

// Header decodes the header of f. ok is false when the frame is shorter
// than its header.
func (f Frame) Header() (h Header, ok bool) {
	if f.Len == 0 {
		return h, false
	}
	b := f.Data[0]
	h.Priority = b >> 5
	h.SingleHdr = b&0x10 != 0
	h.NoIFR = b&0x08 != 0
	h.Physical = b&0x04 != 0
	h.Type = b & 0x03
	if h.SingleHdr {
		return h, true
	}
	if f.Len < 3 {
		return h, false
	}
	h.Target = f.Data[1]
	h.Source = f.Data[2]
	return h, true
}

// Payload returns the bytes after the header.
func (f Frame) Payload() []byte {
	if f.Len == 0 {
		return nil
	}
	n := 3
	if f.Data[0]&0x10 != 0 {
		n = 1
	}
	if int(f.Len) < n {
		return nil
	}
	return f.Data[n:f.Len]
}

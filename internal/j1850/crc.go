package j1850

// SAE J1850 CRC-8: polynomial x^8+x^4+x^3+x^2+1, initial register 0xFF,
// message bits MSB first in frame order, result complemented.

const crcInit = 0xFF

var crcTable = func() (t [256]byte) {
	for i := range t {
		t[i] = shiftByte(byte(i), 0)
	}
	return t
}()

// crcStep feeds one message bit into the register. The tap depends on the
// register's top bit and the incoming bit.
func crcStep(acc byte, bit byte) byte {
	var tap byte
	switch {
	case acc&0x80 != 0 && bit != 0:
		tap = 0x01
	case acc&0x80 != 0:
		tap = 0x1D
	case bit != 0:
		tap = 0x1C
	}
	return (acc<<1 | bit) ^ tap
}

// shiftByte runs crcStep for the eight bits of b, MSB first.
func shiftByte(acc, b byte) byte {
	for m := byte(0x80); m != 0; m >>= 1 {
		var bit byte
		if b&m != 0 {
			bit = 1
		}
		acc = crcStep(acc, bit)
	}
	return acc
}

// crcBitwise is the reference bit-serial engine.
func crcBitwise(data []byte) byte {
	acc := byte(crcInit)
	for _, b := range data {
		acc = shiftByte(acc, b)
	}
	return ^acc
}

// CRC8 returns the J1850 checksum of data.
func CRC8(data []byte) byte {
	acc := byte(crcInit)
	for _, b := range data {
		acc = crcTable[acc^b]
	}
	return ^acc
}

// Hash is a streaming CRC-8. The zero value is not ready; use NewHash.
type Hash struct{ acc byte }

// NewHash returns a Hash with the register initialized.
func NewHash() *Hash { return &Hash{acc: crcInit} }

// Write feeds p into the register. It never fails.
func (h *Hash) Write(p []byte) (int, error) {
	for _, b := range p {
		h.acc = crcTable[h.acc^b]
	}
	return len(p), nil
}

// Sum appends the current checksum to b.
func (h *Hash) Sum(b []byte) []byte { return append(b, ^h.acc) }

// Sum8 returns the current checksum.
func (h *Hash) Sum8() byte { return ^h.acc }

func (h *Hash) Reset()         { h.acc = crcInit }
func (h *Hash) Size() int      { return 1 }
func (h *Hash) BlockSize() int { return 1 }

package dash

import "github.com/kstaniek/go-vpw-gateway/internal/mm5450"

// Glyph indexes into the segment tables.
const (
	glyphOff  = 10
	glyphDash = 17
	// Bar levels 0..7 use glyphs 10..17 on the fourth digit position.
	barBase = 10
	barMax  = 7
)

// digitSegments are the four-digit display patterns, segment a in bit 7.
// Indexes 10-17 double as the eight RPM bar levels.
var digitSegments = [...]byte{
	// 0-9
	0xFC, 0x60, 0xDA, 0xF2, 0x66, 0xB6, 0xBE, 0xE0, 0xFE, 0xF6,
	// off, bar 1-7
	0x00, 0x02, 0x06, 0x0E, 0x1E, 0x3E, 0x7E, 0xFE,
}

// gearSegments drive the common-anode gear digit; a cleared bit lights a
// segment.
var gearSegments = [...]byte{
	// 0-9
	0x41, 0xF9, 0x23, 0x31, 0x99, 0x15, 0x05, 0x79, 0x01, 0x19,
	// off
	0xFF,
	// single segments a-g; g alone is the dash
	0x7F, 0xFB, 0xFD, 0xF7, 0xEF, 0xDF, 0xBF,
}

// render writes four glyphs into the LED array. Digit k occupies pins
// 8k+1..8k+8 with its segment bits reversed onto the pins.
func render(digits [4]int) mm5450.LEDs {
	var a mm5450.LEDs
	for k, g := range digits {
		seg := digitSegments[g]
		for i := 1; i <= 8; i++ {
			a.Set(8*k+i, seg&(1<<uint(8-i)) != 0)
		}
	}
	return a
}

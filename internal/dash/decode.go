// Package dash turns broadcast engine data into what a small motorcycle
// dashboard shows: a four digit 7-segment display with an RPM bar, a
// single gear digit and three mode LEDs.
package dash

import (
	"fmt"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

// Kind is the quantity carried by a recognized frame.
type Kind uint8

const (
	KindRPM Kind = iota + 1
	KindGear
	KindTemp
	KindSpeed
)

var kindNames = map[Kind]string{KindRPM: "rpm", KindGear: "gear", KindTemp: "temp", KindSpeed: "speed"}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Kinds lists every recognized kind.
func Kinds() []Kind { return []Kind{KindRPM, KindGear, KindTemp, KindSpeed} }

// Reading is one decoded value. Gear is 0 for neutral, 1-5, or -1 when the
// gear byte is not recognized. Temp is in °C, Speed in km/h.
type Reading struct {
	Kind  Kind
	Value int
}

type pattern struct {
	kind   Kind
	prefix [4]byte
	size   int
	decode func(b []byte) int
}

func word(b []byte) int { return int(b[0])<<8 | int(b[1]) }

var patterns = []pattern{
	{KindRPM, [4]byte{0x28, 0x1B, 0x10, 0x02}, 2, func(b []byte) int { return word(b) / 4 }},
	{KindGear, [4]byte{0xA8, 0x3B, 0x10, 0x03}, 1, func(b []byte) int { return gearNumber(b[0]) }},
	{KindTemp, [4]byte{0xA8, 0x49, 0x10, 0x10}, 1, func(b []byte) int { return int(b[0]) - 40 }},
	{KindSpeed, [4]byte{0x48, 0x29, 0x10, 0x02}, 2, func(b []byte) int { return word(b) / 128 }},
}

func gearNumber(b byte) int {
	switch b {
	case 0x00:
		return 0
	case 0x02:
		return 1
	case 0x04:
		return 2
	case 0x08:
		return 3
	case 0x10:
		return 4
	case 0x20:
		return 5
	}
	return -1
}

// Decode recognizes the frames the dashboard uses. Trailing bytes such as
// the CRC are ignored.
func Decode(f j1850.Frame) (Reading, bool) {
	for _, p := range patterns {
		if !f.HasPrefix(p.prefix[:]...) || int(f.Len) < len(p.prefix)+p.size {
			continue
		}
		return Reading{Kind: p.kind, Value: p.decode(f.Data[len(p.prefix):])}, true
	}
	return Reading{}, false
}

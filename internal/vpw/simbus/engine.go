package simbus

import "github.com/kstaniek/go-vpw-gateway/internal/j1850"

// Engine produces the broadcasts of an engine sweeping from idle to the
// red line and back, cycling through rpm, gear, coolant temperature and
// vehicle speed. Every frame carries its CRC. Use it as Emulator.Next.
type Engine struct {
	n    int
	rpm  int
	up   bool
	gear int
	// Temp is the reported coolant temperature in °C.
	Temp int
}

var gearCodes = [...]byte{0x00, 0x02, 0x04, 0x08, 0x10, 0x20}

const (
	idleRPM = 800
	redRPM  = 6000
)

func NewEngine() *Engine { return &Engine{rpm: idleRPM, up: true, Temp: 90} }

// Next returns the following broadcast.
func (e *Engine) Next() j1850.Frame {
	defer func() { e.n++ }()
	var f j1850.Frame
	switch e.n % 4 {
	case 0:
		e.rev()
		v := e.rpm * 4
		f = j1850.MustFrame(0x28, 0x1B, 0x10, 0x02, byte(v>>8), byte(v))
	case 1:
		f = j1850.MustFrame(0xA8, 0x3B, 0x10, 0x03, gearCodes[e.gear])
	case 2:
		f = j1850.MustFrame(0xA8, 0x49, 0x10, 0x10, byte(e.Temp+40))
	default:
		v := e.speed() * 128
		f = j1850.MustFrame(0x48, 0x29, 0x10, 0x02, byte(v>>8), byte(v))
	}
	f, _ = f.AppendCRC()
	return f
}

// rev sweeps rpm, shifting up at the top of each sweep.
func (e *Engine) rev() {
	if e.up {
		e.rpm += 150
		if e.rpm >= redRPM {
			e.up = false
			if e.gear < len(gearCodes)-1 {
				e.gear++
			}
		}
		return
	}
	e.rpm -= 250
	if e.rpm <= idleRPM {
		e.rpm, e.up = idleRPM, true
		if e.gear == len(gearCodes)-1 {
			e.gear = 0
		}
	}
}

func (e *Engine) speed() int { return e.gear * e.rpm / 150 }

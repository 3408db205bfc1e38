// Package vpw implements the SAE J1850 Variable Pulse Width physical layer:
// symbol timing, a polling frame receiver and a collision-aware transmitter.
//
// The codec never touches hardware directly. It samples a BusLine and
// measures time with a Timer, so the same code runs against a GPIO pin or
// the simulated bus in package simbus.
package vpw

import "math"

// Level is the electrical state of the single bus wire.
type Level uint8

const (
	// Passive is the recessive state; it is what the bus shows when idle.
	Passive Level = iota
	// Active is the dominant state; any driving node wins over Passive.
	Active
)

func (l Level) String() string {
	if l == Active {
		return "active"
	}
	return "passive"
}

// Ticks is a duration in timer counts. The length of one tick is the
// resolution of the Table in use.
type Ticks uint32

// MaxTicks is the longest representable duration.
const MaxTicks = math.MaxUint32

// BusLine samples and drives the bus wire. Polarity of the physical pin is
// the implementation's concern.
type BusLine interface {
	ReadLevel() Level
	Drive(Level)
}

// Configurer is implemented by lines that need one-time pin setup.
type Configurer interface {
	Configure() error
}

// Timer is a free-running counter. Restart resets it to zero; Elapsed
// reads it without stopping it.
type Timer interface {
	Restart()
	Elapsed() Ticks
}

// Package mm5450 drives an MM5450 LED display driver: 35 outputs loaded
// through a clocked serial input that starts with a single start bit.
package mm5450

import (
	"fmt"
	"time"
)

const (
	// Outputs is the number of LED outputs on the chip.
	Outputs = 35
	// ArrayLen is the number of bytes needed to hold Outputs bits.
	ArrayLen = (Outputs + 7) / 8
)

// LEDs holds one bit per output. Pin n (1-based) is bit (n-1)%8 of byte
// (n-1)/8; bytes are shifted out MSB first.
type LEDs [ArrayLen]byte

func (a *LEDs) locate(pin int) (int, byte) {
	if pin < 1 || pin > ArrayLen*8 {
		panic(fmt.Sprintf("mm5450: pin %d out of range", pin))
	}
	return (pin - 1) / 8, 1 << uint((pin-1)%8)
}

// Set turns pin on or off.
func (a *LEDs) Set(pin int, on bool) {
	i, m := a.locate(pin)
	if on {
		a[i] |= m
	} else {
		a[i] &^= m
	}
}

// Toggle flips pin.
func (a *LEDs) Toggle(pin int) {
	i, m := a.locate(pin)
	a[i] ^= m
}

// Get reports whether pin is on.
func (a *LEDs) Get(pin int) bool {
	i, m := a.locate(pin)
	return a[i]&m != 0
}

// AllOn lights every output.
func (a *LEDs) AllOn() {
	for p := 1; p <= Outputs; p++ {
		a.Set(p, true)
	}
}

// Clear turns everything off.
func (a *LEDs) Clear() { *a = LEDs{} }

// Pin is one digital output.
type Pin interface {
	Set(high bool) error
}

// Default bit timing. The chip accepts clock rates up to 500 kHz.
const (
	DefaultSetup = 20 * time.Microsecond
	DefaultHold  = 50 * time.Microsecond
)

var sleepFn = time.Sleep

// Driver shifts LED frames out on a clock and a data pin.
type Driver struct {
	Clock, Data Pin
	// Setup is the data-to-clock delay, Hold the clock high time.
	// Zero values use the defaults; negative values disable the delay.
	Setup, Hold time.Duration
}

// Init leaves both lines low.
func (d *Driver) Init() error {
	if err := d.Clock.Set(false); err != nil {
		return fmt.Errorf("mm5450 clock: %w", err)
	}
	if err := d.Data.Set(false); err != nil {
		return fmt.Errorf("mm5450 data: %w", err)
	}
	return nil
}

// Send shifts the start bit followed by the 35 output bits.
func (d *Driver) Send(a LEDs) error {
	if err := d.bit(true); err != nil {
		return err
	}
	n := 0
	for _, b := range a {
		for i := 0; i < 8 && n < Outputs; i++ {
			if err := d.bit(b&(0x80>>uint(i)) != 0); err != nil {
				return err
			}
			n++
		}
	}
	if err := d.Data.Set(false); err != nil {
		return fmt.Errorf("mm5450 data: %w", err)
	}
	return nil
}

func (d *Driver) bit(v bool) error {
	if err := d.Data.Set(v); err != nil {
		return fmt.Errorf("mm5450 data: %w", err)
	}
	d.wait(d.Setup, DefaultSetup)
	if err := d.Clock.Set(true); err != nil {
		return fmt.Errorf("mm5450 clock: %w", err)
	}
	d.wait(d.Hold, DefaultHold)
	if err := d.Clock.Set(false); err != nil {
		return fmt.Errorf("mm5450 clock: %w", err)
	}
	d.wait(d.Setup, DefaultSetup)
	return nil
}

func (d *Driver) wait(v, def time.Duration) {
	switch {
	case v < 0:
	case v == 0:
		sleepFn(def)
	default:
		sleepFn(v)
	}
}

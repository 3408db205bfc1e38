package mm5450

import "sync"

// Chip emulates the MM5450 input shift register. Its clock and data pins
// can be handed to a Driver; outputs latch after a start bit and 35 data
// bits have been clocked in.
type Chip struct {
	mu      sync.Mutex
	data    bool
	clock   bool
	started bool
	n       int
	shift   LEDs
	out     LEDs
	frames  int
}

type chipPin struct {
	c     *Chip
	clock bool
}

func (p chipPin) Set(high bool) error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if !p.clock {
		p.c.data = high
		return nil
	}
	rising := high && !p.c.clock
	p.c.clock = high
	if rising {
		p.c.sample()
	}
	return nil
}

func (c *Chip) sample() {
	if !c.started {
		// Zeros before the start bit are ignored.
		if c.data {
			c.started = true
			c.n = 0
			c.shift = LEDs{}
		}
		return
	}
	if c.data {
		c.shift[c.n/8] |= 0x80 >> uint(c.n%8)
	}
	c.n++
	if c.n == Outputs {
		c.out = c.shift
		c.started = false
		c.frames++
	}
}

// ClockPin returns the clock input.
func (c *Chip) ClockPin() Pin { return chipPin{c: c, clock: true} }

// DataPin returns the data input.
func (c *Chip) DataPin() Pin { return chipPin{c: c} }

// Outputs returns the latched outputs.
func (c *Chip) Outputs() LEDs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

// Frames counts completed loads.
func (c *Chip) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

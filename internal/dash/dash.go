package dash

import (
	"fmt"
	"sync"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/mm5450"
)

// Mode selects what the four digit display shows.
type Mode uint8

const (
	ModeRPM Mode = iota
	ModeSpeed
	ModeTemp
	ModeBlank
	modeCount
)

var modeNames = [...]string{"rpm", "speed", "temp", "blank"}

func (m Mode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", m)
}

const (
	// EngineOnRPM separates a running engine from a stalled or off one.
	EngineOnRPM = 500
	// BlinkRPM is where the RPM bar starts flashing.
	BlinkRPM = 5500

	BrightnessLow  = 10
	BrightnessHigh = 60

	// Presses shorter than ShortPress are contact bounce; presses of
	// LongPress or more toggle brightness instead of changing mode.
	ShortPress = 50 * time.Millisecond
	LongPress  = time.Second

	engineSwitchCount = 4
	gearStableCount   = 4
	blinkPeriod       = 2

	idleLow, idleHigh, idleShown = 650, 850, 800
)

// barSteps are the lower rpm bounds of bar levels 1..7.
var barSteps = [barMax]int{700, 1500, 2500, 3500, 4000, 4500, 5000}

// Display is one refresh worth of outputs.
type Display struct {
	// Digits feeds the MM5450 driving the four digit display and bar.
	Digits mm5450.LEDs
	// Gear is the port value for the gear digit.
	Gear byte
	// ModeLEDs light for ModeRPM, ModeSpeed and ModeTemp respectively.
	ModeLEDs [3]bool
	// Bar is set when the fourth digit position shows the RPM bar.
	Bar        bool
	Brightness int
}

// State is a copy of the current readings, for logs and status.
type State struct {
	Mode       Mode
	RPM        int
	Speed      int
	Temp       int
	Gear       int
	GearKnown  bool
	EngineOn   bool
	Brightness int
	Seen       bool
}

// Dash keeps the filtered readings and the user selected mode. It is safe
// for concurrent use: frames arrive from the bus worker while a separate
// loop renders and polls the button.
type Dash struct {
	mu sync.Mutex

	mode       Mode
	brightness int
	seen       bool

	rpm, prevRPM int
	engineOn     bool
	engineCount  int

	speed, temp int

	gear                int
	gearKnown           bool
	candidate, candSeen int

	blink  int
	barLit bool
}

// New returns a dashboard in RPM mode at full brightness.
func New() *Dash {
	return &Dash{brightness: BrightnessHigh, candidate: -2}
}

// Update feeds a received frame. Any frame marks the bus as seen; the
// decoded reading is returned when the frame is recognized.
func (d *Dash) Update(f j1850.Frame) (Reading, bool) {
	r, ok := Decode(f)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = true
	if ok {
		d.apply(r)
	}
	return r, ok
}

func (d *Dash) apply(r Reading) {
	switch r.Kind {
	case KindRPM:
		d.prevRPM, d.rpm = d.rpm, r.Value
		// The engine state flips only after several readings on the
		// other side of the threshold.
		if (!d.engineOn && r.Value > EngineOnRPM) || (d.engineOn && r.Value < EngineOnRPM) {
			d.engineCount++
			if d.engineCount >= engineSwitchCount {
				d.engineOn = !d.engineOn
				d.engineCount = 0
			}
		} else {
			d.engineCount = 0
		}
	case KindGear:
		if r.Value == d.candidate {
			d.candSeen++
		} else {
			d.candidate, d.candSeen = r.Value, 1
		}
		if d.candSeen >= gearStableCount {
			d.gear, d.gearKnown = d.candidate, true
		}
	case KindTemp:
		d.temp = r.Value
	case KindSpeed:
		d.speed = r.Value
	}
}

// Press handles a button release after being held for held.
func (d *Dash) Press(held time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case held < ShortPress:
	case held < LongPress:
		d.mode = (d.mode + 1) % modeCount
		d.blink = 0
	default:
		if d.brightness == BrightnessHigh {
			d.brightness = BrightnessLow
		} else {
			d.brightness = BrightnessHigh
		}
	}
}

// SetMode selects a mode directly.
func (d *Dash) SetMode(m Mode) {
	if m >= modeCount {
		return
	}
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
}

// State returns the current readings.
func (d *Dash) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Mode:       d.mode,
		RPM:        d.rpm,
		Speed:      d.speed,
		Temp:       d.temp,
		Gear:       d.gear,
		GearKnown:  d.gearKnown,
		EngineOn:   d.engineOn,
		Brightness: d.brightness,
		Seen:       d.seen,
	}
}

// Render computes the outputs for one refresh. It advances the bar blink
// phase, so call it at the display refresh rate.
func (d *Dash) Render() Display {
	d.mu.Lock()
	defer d.mu.Unlock()

	rpm := d.rpm
	if d.engineOn && rpm < EngineOnRPM {
		rpm = d.prevRPM
	}
	out := Display{Brightness: d.brightness}
	if d.mode < ModeBlank {
		out.ModeLEDs[d.mode] = true
	}

	digits := [4]int{glyphOff, glyphOff, glyphOff, glyphOff}
	switch d.mode {
	case ModeRPM:
		d.blink = 0
		digits = rpmDigits(rpm)
	case ModeSpeed, ModeTemp:
		out.Bar = true
		v := d.speed
		if d.mode == ModeTemp {
			v = d.temp
		}
		copy(digits[:3], threeDigits(v))
		digits[3] = d.barGlyph(rpm)
	default:
		d.blink = 0
	}
	out.Digits = render(digits)
	out.Gear = d.gearGlyph()
	return out
}

func (d *Dash) gearGlyph() byte {
	switch {
	case d.mode == ModeBlank:
		return gearSegments[glyphOff]
	case !d.seen || !d.gearKnown || d.gear < 0:
		return gearSegments[glyphDash]
	}
	return gearSegments[d.gear]
}

func (d *Dash) barGlyph(rpm int) int {
	if rpm < BlinkRPM {
		d.blink = 0
		level := 0
		for _, s := range barSteps {
			if rpm >= s {
				level++
			}
		}
		return barBase + level
	}
	if d.blink == 0 {
		d.barLit = true
	}
	d.blink++
	if d.blink > blinkPeriod {
		d.blink = 1
		d.barLit = !d.barLit
	}
	if d.barLit {
		return barBase + barMax
	}
	return glyphOff
}

// rpmDigits shows rpm in steps of 50 with leading zeros blanked. Idle
// wobble between 650 and 850 is shown as a steady 800.
func rpmDigits(rpm int) [4]int {
	if rpm < 0 {
		rpm = 0
	}
	if rpm > 9999 {
		rpm = 9999
	}
	if rpm > idleLow && rpm < idleHigh {
		rpm = idleShown
	}
	var g [4]int
	g[3] = rpm / 1000
	if g[3] == 0 {
		g[3] = glyphOff
	}
	g[2] = rpm / 100 % 10
	if g[2] == 0 && g[3] == glyphOff {
		g[2] = glyphOff
	}
	if rpm/10%10 >= 5 {
		g[1] = 5
	}
	if g[1] == 0 && g[2] == glyphOff {
		g[1] = glyphOff
	}
	g[0] = 0
	return g
}

// threeDigits returns units, tens and hundreds with leading zeros blanked.
func threeDigits(v int) []int {
	if v < 0 {
		v = 0
	}
	if v > 999 {
		v = 999
	}
	g := []int{v % 10, v / 10 % 10, v / 100 % 10}
	if g[2] == 0 {
		g[2] = glyphOff
	}
	if g[1] == 0 && g[2] == glyphOff {
		g[1] = glyphOff
	}
	return g
}

// Button turns sampled switch states into press durations.
type Button struct {
	down    bool
	pressed time.Time
}

// Sample records the switch state at now. On release it returns how long
// the switch was held.
func (b *Button) Sample(down bool, now time.Time) (time.Duration, bool) {
	switch {
	case down && !b.down:
		b.down, b.pressed = true, now
	case !down && b.down:
		b.down = false
		return now.Sub(b.pressed), true
	}
	return 0, false
}

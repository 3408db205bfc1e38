package mm5450

import (
	"errors"
	"testing"
	"time"
)

func TestLEDsSetGet(t *testing.T) {
	var a LEDs
	a.Set(1, true)
	a.Set(9, true)
	a.Set(35, true)
	if a[0] != 0x01 || a[1] != 0x01 || a[4] != 0x04 {
		t.Fatalf("layout % X", a)
	}
	a.Set(9, false)
	if a.Get(9) || !a.Get(1) {
		t.Fatalf("get after clear: % X", a)
	}
	a.Toggle(2)
	if a[0] != 0x03 {
		t.Fatalf("toggle: % X", a)
	}
	a.Clear()
	if a != (LEDs{}) {
		t.Fatalf("clear")
	}
	a.AllOn()
	if a != (LEDs{0xFF, 0xFF, 0xFF, 0xFF, 0x07}) {
		t.Fatalf("all on: % X", a)
	}
}

func TestLEDsPinRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for pin 0")
		}
	}()
	var a LEDs
	a.Set(0, true)
}

func noSleep(t *testing.T) {
	old := sleepFn
	sleepFn = func(time.Duration) {}
	t.Cleanup(func() { sleepFn = old })
}

func TestDriverChipRoundTrip(t *testing.T) {
	noSleep(t)
	var chip Chip
	d := &Driver{Clock: chip.ClockPin(), Data: chip.DataPin()}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	frames := []LEDs{
		{0xFC, 0x60, 0xDA, 0xF2, 0xE0},
		{0x00, 0x00, 0x00, 0x00, 0x00},
		{0x01, 0x80, 0x7F, 0xAA, 0xE0},
	}
	for i, f := range frames {
		if err := d.Send(f); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if got := chip.Outputs(); got != f {
			t.Fatalf("frame %d: chip latched % X want % X", i, got, f)
		}
	}
	if chip.Frames() != len(frames) {
		t.Fatalf("frames=%d", chip.Frames())
	}
}

type countPin struct {
	sets int
	fail int
}

var errPin = errors.New("pin write failed")

func (p *countPin) Set(bool) error {
	p.sets++
	if p.fail > 0 && p.sets >= p.fail {
		return errPin
	}
	return nil
}

func TestDriverBitCountAndErrors(t *testing.T) {
	noSleep(t)
	clk, data := &countPin{}, &countPin{}
	d := &Driver{Clock: clk, Data: data}
	if err := d.Send(LEDs{}); err != nil {
		t.Fatal(err)
	}
	// Start bit plus 35 outputs, two clock edges each.
	if clk.sets != 2*(1+Outputs) {
		t.Fatalf("clock edges=%d", clk.sets)
	}
	d.Clock = &countPin{fail: 5}
	if err := d.Send(LEDs{}); !errors.Is(err, errPin) {
		t.Fatalf("expected pin error, got %v", err)
	}
}

func TestDriverDelays(t *testing.T) {
	var slept []time.Duration
	old := sleepFn
	sleepFn = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleepFn = old }()

	d := &Driver{Clock: &countPin{}, Data: &countPin{}, Hold: -1}
	if err := d.bit(true); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 2 || slept[0] != DefaultSetup || slept[1] != DefaultSetup {
		t.Fatalf("slept %v", slept)
	}
}

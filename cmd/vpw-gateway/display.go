package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/dash"
	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
	"github.com/kstaniek/go-vpw-gateway/internal/mm5450"
)

type outPin interface {
	Set(high bool) error
	Close() error
}

type inPin interface {
	Read() (bool, error)
	Close() error
}

func defaultOpenOutput(root string, n int, invert bool) (outPin, error) {
	o, err := gpio.OpenOutput(root, n, invert)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func defaultOpenInput(root string, n int, invert bool) (inPin, error) {
	i, err := gpio.OpenInput(root, n, invert)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// Hooks for tests.
var (
	openOutput = defaultOpenOutput
	openInput  = defaultOpenInput
)

// panel shows dashboard outputs.
type panel interface {
	Show(dash.Display) error
}

// ledPanel drives the MM5450 digits, the gear digit, the mode LEDs and the
// dim line. Pins left nil are not fitted.
type ledPanel struct {
	digits *mm5450.Driver
	gear   []mm5450.Pin
	mode   []mm5450.Pin
	dim    mm5450.Pin

	last  dash.Display
	shown bool
}

func (p *ledPanel) Show(d dash.Display) error {
	if p.shown && d == p.last {
		return nil
	}
	var errs []error
	if p.digits != nil && (!p.shown || d.Digits != p.last.Digits) {
		errs = append(errs, p.digits.Send(d.Digits))
	}
	for i, pin := range p.gear {
		errs = append(errs, pin.Set(d.Gear&(1<<uint(i)) != 0))
	}
	for i, pin := range p.mode {
		errs = append(errs, pin.Set(d.ModeLEDs[i]))
	}
	if p.dim != nil {
		errs = append(errs, p.dim.Set(d.Brightness == dash.BrightnessLow))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.last, p.shown = d, true
	return nil
}

// initDisplay opens the dashboard pins. On the sim backend the digits go to
// an emulated MM5450 and no GPIO is touched.
func initDisplay(cfg *appConfig, l *slog.Logger) (*ledPanel, inPin, func(), error) {
	if cfg.backend == "sim" {
		chip := &mm5450.Chip{}
		p := &ledPanel{digits: &mm5450.Driver{Clock: chip.ClockPin(), Data: chip.DataPin(), Setup: -1, Hold: -1}}
		if err := p.digits.Init(); err != nil {
			return nil, nil, func() {}, err
		}
		l.Info("display_sim")
		return p, nil, func() {}, nil
	}
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	out := func(n int) (mm5450.Pin, error) {
		o, err := openOutput(cfg.gpioRoot, n, false)
		if err != nil {
			return nil, fmt.Errorf("gpio %d: %w", n, err)
		}
		closers = append(closers, o.Close)
		return o, nil
	}
	fail := func(err error) (*ledPanel, inPin, func(), error) {
		cleanup()
		return nil, nil, func() {}, err
	}

	p := &ledPanel{digits: &mm5450.Driver{}}
	var err error
	if p.digits.Clock, err = out(cfg.ledClockPin); err != nil {
		return fail(err)
	}
	if p.digits.Data, err = out(cfg.ledDataPin); err != nil {
		return fail(err)
	}
	if err := p.digits.Init(); err != nil {
		return fail(err)
	}
	gear, _ := parsePins(cfg.gearPins)
	for _, n := range gear {
		pin, err := out(n)
		if err != nil {
			return fail(err)
		}
		p.gear = append(p.gear, pin)
	}
	mode, _ := parsePins(cfg.modePins)
	for _, n := range mode {
		pin, err := out(n)
		if err != nil {
			return fail(err)
		}
		p.mode = append(p.mode, pin)
	}
	if cfg.dimPin >= 0 {
		if p.dim, err = out(cfg.dimPin); err != nil {
			return fail(err)
		}
	}
	var btn inPin
	if cfg.buttonPin >= 0 {
		// The button pulls the line low.
		if btn, err = openInput(cfg.gpioRoot, cfg.buttonPin, true); err != nil {
			return fail(fmt.Errorf("gpio %d: %w", cfg.buttonPin, err))
		}
		closers = append(closers, btn.Close)
	}
	l.Info("display_gpio", "clock_pin", cfg.ledClockPin, "data_pin", cfg.ledDataPin,
		"gear_pins", len(p.gear), "mode_pins", len(p.mode), "dim_pin", cfg.dimPin, "button_pin", cfg.buttonPin)
	return p, btn, cleanup, nil
}

// runDisplay refreshes p from d every refresh period and feeds button
// presses back into d until ctx is done.
func runDisplay(ctx context.Context, d *dash.Dash, p panel, btn inPin, refresh time.Duration, l *slog.Logger) error {
	t := time.NewTicker(refresh)
	defer t.Stop()
	var b dash.Button
	failing := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if btn != nil {
				down, err := btn.Read()
				if err != nil {
					metrics.IncError(metrics.ErrDisplay)
					l.Debug("button_read_error", "error", err)
				} else if held, ok := b.Sample(down, now); ok {
					d.Press(held)
					st := d.State()
					l.Info("button_press", "held", held, "mode", st.Mode.String(), "brightness", st.Brightness)
				}
			}
			err := p.Show(d.Render())
			switch {
			case err != nil:
				metrics.IncError(metrics.ErrDisplay)
				if !failing {
					l.Warn("display_error", "error", err)
				}
				failing = true
			case failing:
				l.Info("display_recovered")
				failing = false
			}
		}
	}
}

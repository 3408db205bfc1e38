package vpw

import (
	"context"
	"fmt"
	"time"
)

// DefaultIdleTimeout bounds the wait for an idle bus before giving up
// with ReasonBusBusy.
const DefaultIdleTimeout = 20 * time.Millisecond

// Transceiver owns one BusLine and one Timer. It is not safe for
// concurrent use: at most one Receive, Transmit or WaitIdle may run at a
// time, and it occupies the calling goroutine for the whole frame.
type Transceiver struct {
	line  BusLine
	timer Timer
	table Table

	strict      bool
	skipIdle    bool
	idleTimeout time.Duration
}

// Option configures a Transceiver.
type Option func(*Transceiver)

// WithTable selects the timing table; its resolution must match the Timer.
func WithTable(t Table) Option { return func(x *Transceiver) { x.table = t } }

// WithStrict makes the receiver reject pulses that are neither short nor
// long instead of decoding them as 0.
func WithStrict(on bool) Option { return func(x *Transceiver) { x.strict = on } }

// WithSkipIdleSync makes Receive start waiting for SOF immediately. Use it
// when the caller is woken by the bus edge itself, or after WaitIdle.
func WithSkipIdleSync(on bool) Option { return func(x *Transceiver) { x.skipIdle = on } }

// WithIdleTimeout sets the ceiling for idle waits.
func WithIdleTimeout(d time.Duration) Option {
	return func(x *Transceiver) {
		if d > 0 {
			x.idleTimeout = d
		}
	}
}

// New builds a Transceiver over line and timer.
func New(line BusLine, timer Timer, opts ...Option) *Transceiver {
	x := &Transceiver{
		line:        line,
		timer:       timer,
		table:       DefaultTable,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Table returns the timing table in use.
func (x *Transceiver) Table() Table { return x.table }

// Init prepares the line and leaves the bus released. Call it once before
// the first Receive or Transmit.
func (x *Transceiver) Init() error {
	if c, ok := x.line.(Configurer); ok {
		if err := c.Configure(); err != nil {
			return fmt.Errorf("vpw: configure line: %w", err)
		}
	}
	x.line.Drive(Passive)
	return nil
}

// WaitIdle blocks until the bus has been Passive for the IFS window.
// Any Active sample restarts the idle timer. It fails with ReasonBusBusy
// once the idle timeout has been spent without reaching idle.
func (x *Transceiver) WaitIdle(ctx context.Context) error {
	ceiling := x.table.Ticks(x.idleTimeout)
	if ceiling < x.table.IFS.Min {
		ceiling = x.table.IFS.Min
	}
	var spent Ticks
	x.timer.Restart()
	for {
		if err := interrupted(ctx); err != nil {
			return err
		}
		e := x.timer.Elapsed()
		if x.line.ReadLevel() == Active {
			spent += e
			if spent >= ceiling {
				return busError(ReasonBusBusy, spent)
			}
			x.timer.Restart()
			continue
		}
		if e >= x.table.IFS.Min {
			return nil
		}
		if spent+e >= ceiling {
			return busError(ReasonBusBusy, spent+e)
		}
	}
}

func interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

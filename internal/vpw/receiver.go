package vpw

import (
	"context"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

type rxState uint8

const (
	stateWaitIdle rxState = iota
	stateWaitSOF
	stateDecoding
)

// Receive reads one frame from the bus.
//
// Unless idle sync is skipped it first waits for an idle bus, then up to
// timeout for the first Active edge (ErrNoData if none; timeout <= 0 means
// NoDataTimeout). The SOF pulse must fit the SOF window. Data symbols are
// decoded MSB first until EOD or twelve bytes. A frame that ends early is
// not an error: the returned Frame holds the fully received bytes. Failures
// are *BusError values; there are no retries.
func (x *Transceiver) Receive(ctx context.Context, timeout time.Duration) (j1850.Frame, error) {
	var fr j1850.Frame
	if timeout <= 0 {
		timeout = NoDataTimeout
	}
	st := stateWaitIdle
	if x.skipIdle {
		st = stateWaitSOF
	}
	for {
		switch st {
		case stateWaitIdle:
			if err := x.WaitIdle(ctx); err != nil {
				return fr, err
			}
			st = stateWaitSOF
		case stateWaitSOF:
			if err := x.waitSOF(ctx, x.table.Ticks(timeout)); err != nil {
				return fr, err
			}
			st = stateDecoding
		case stateDecoding:
			err := x.decode(ctx, &fr)
			return fr, err
		}
	}
}

// waitSOF waits for the bus to go Active and measures the SOF pulse.
func (x *Transceiver) waitSOF(ctx context.Context, noData Ticks) error {
	x.timer.Restart()
	for x.line.ReadLevel() != Active {
		if err := interrupted(ctx); err != nil {
			return err
		}
		if x.timer.Elapsed() >= noData {
			return ErrNoData
		}
	}
	x.timer.Restart()
	for {
		if err := interrupted(ctx); err != nil {
			return err
		}
		d := x.timer.Elapsed()
		if d >= x.table.SOF.Max {
			return busError(ReasonSOFLong, d)
		}
		if x.line.ReadLevel() != Active {
			if !x.table.IsSOF(d) {
				return busError(ReasonSOFShort, d)
			}
			return nil
		}
	}
}

// decode runs the bit loop. Each symbol is timed from the previous
// transition; the level seen when SOF ended seeds the polarity.
func (x *Transceiver) decode(ctx context.Context, fr *j1850.Frame) error {
	last := x.line.ReadLevel()
	x.timer.Restart()
	for n := 0; n < j1850.MaxFrameLen; n++ {
		var cur byte
		for bit := 0; bit < 8; bit++ {
			cur <<= 1
			var d Ticks
			measured := last
			for {
				if err := interrupted(ctx); err != nil {
					return err
				}
				d = x.timer.Elapsed()
				if d >= x.table.EOD.Min {
					// End of data. A partial byte is dropped.
					fr.Len = uint8(n)
					return nil
				}
				if lvl := x.line.ReadLevel(); lvl != last {
					x.timer.Restart()
					last = lvl
					break
				}
			}
			c := x.table.Classify(d)
			switch {
			case d < x.table.Short.Min:
				return &BusError{Reason: ReasonGlitch, Ticks: d, Byte: n, Bit: bit}
			case c != Short && c != Long && x.strict:
				return &BusError{Reason: ReasonInvalidPulse, Ticks: d, Byte: n, Bit: bit}
			}
			if bitValue(measured, c) {
				cur |= 1
			}
		}
		fr.Data[n] = cur
	}
	fr.Len = j1850.MaxFrameLen
	return nil
}

package vpw

import (
	"errors"
	"fmt"
	"time"
)

// SAE J1850 VPW pulse widths at 10.4 kbit/s.
const (
	TxShort = 64 * time.Microsecond
	TxLong  = 128 * time.Microsecond
	TxSOF   = 200 * time.Microsecond
	TxEOD   = 200 * time.Microsecond
	TxEOF   = 280 * time.Microsecond
	TxBreak = 300 * time.Microsecond
	TxIFS   = 300 * time.Microsecond

	RxShortMin = 34 * time.Microsecond
	RxShortMax = 96 * time.Microsecond
	RxLongMin  = 96 * time.Microsecond
	RxLongMax  = 163 * time.Microsecond

	// The SOF window is wider than the transmit nominal so frames from
	// nodes with a drifting clock are still accepted. An Active pulse that
	// reaches RxSOFMax is a break.
	RxSOFMin = 123 * time.Microsecond
	RxSOFMax = 279 * time.Microsecond
	RxEODMin = 163 * time.Microsecond
	RxEODMax = 239 * time.Microsecond
	RxEOFMin = 239 * time.Microsecond
	RxIFSMin = 280 * time.Microsecond

	// NoDataTimeout bounds the wait for the first edge of a response.
	NoDataTimeout = 300 * time.Microsecond
)

// Category is the class of a measured pulse.
type Category uint8

const (
	Invalid Category = iota
	Short
	Long
	SOF
	EOD
	EOF
	IFS
	Break
)

var categoryNames = [...]string{"invalid", "short", "long", "sof", "eod", "eof", "ifs", "break"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", c)
}

// Window is a tick range with an inclusive minimum and an exclusive
// maximum. A zero Max means unbounded.
type Window struct {
	Min, Max Ticks
}

// Contains reports whether Min <= d < Max.
func (w Window) Contains(d Ticks) bool {
	return d >= w.Min && (w.Max == 0 || d < w.Max)
}

// ErrTable is returned for a resolution too coarse to keep the receive
// windows apart.
var ErrTable = errors.New("vpw: invalid timing table")

// Table holds the receive windows and transmit nominals in ticks.
type Table struct {
	Resolution time.Duration

	Short, Long, SOF, EOD, EOF, IFS Window
	BreakMin                        Ticks

	TxShort, TxLong, TxSOF, TxEOF, TxIFS Ticks
}

// DefaultTable uses one microsecond per tick.
var DefaultTable = MustTable(time.Microsecond)

// NewTable converts the standard timings to ticks of length res.
func NewTable(res time.Duration) (Table, error) {
	if res <= 0 {
		return Table{}, fmt.Errorf("%w: resolution %v", ErrTable, res)
	}
	conv := func(d time.Duration) Ticks { return Ticks((d + res/2) / res) }
	t := Table{
		Resolution: res,
		Short:      Window{conv(RxShortMin), conv(RxShortMax)},
		Long:       Window{conv(RxLongMin), conv(RxLongMax)},
		SOF:        Window{conv(RxSOFMin), conv(RxSOFMax)},
		EOD:        Window{conv(RxEODMin), conv(RxEODMax)},
		EOF:        Window{conv(RxEOFMin), conv(RxIFSMin)},
		IFS:        Window{Min: conv(RxIFSMin)},
		BreakMin:   conv(RxSOFMax),
		TxShort:    conv(TxShort),
		TxLong:     conv(TxLong),
		TxSOF:      conv(TxSOF),
		TxEOF:      conv(TxEOF),
		TxIFS:      conv(TxIFS),
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// MustTable is NewTable that panics on error; for package-level defaults.
func MustTable(res time.Duration) Table {
	t, err := NewTable(res)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks that the data-phase windows are non-empty, ordered and
// do not overlap, and that every transmit nominal decodes to its own class.
func (t Table) Validate() error {
	ws := []struct {
		name string
		w    Window
	}{{"short", t.Short}, {"long", t.Long}, {"eod", t.EOD}, {"eof", t.EOF}}
	var prevMax Ticks
	for _, e := range ws {
		if e.w.Min < 1 || e.w.Max <= e.w.Min {
			return fmt.Errorf("%w: empty %s window %v", ErrTable, e.name, e.w)
		}
		if e.w.Min < prevMax {
			return fmt.Errorf("%w: %s window overlaps its predecessor", ErrTable, e.name)
		}
		prevMax = e.w.Max
	}
	if t.EOF.Min != t.EOD.Max || t.IFS.Min != t.EOF.Max {
		return fmt.Errorf("%w: frame boundary windows must be contiguous", ErrTable)
	}
	if t.SOF.Max <= t.SOF.Min {
		return fmt.Errorf("%w: empty sof window", ErrTable)
	}
	switch {
	case !t.Short.Contains(t.TxShort):
		return fmt.Errorf("%w: short nominal outside short window", ErrTable)
	case !t.Long.Contains(t.TxLong):
		return fmt.Errorf("%w: long nominal outside long window", ErrTable)
	case !t.SOF.Contains(t.TxSOF):
		return fmt.Errorf("%w: sof nominal outside sof window", ErrTable)
	case t.TxEOF < t.EOD.Min:
		return fmt.Errorf("%w: eof nominal shorter than eod", ErrTable)
	}
	return nil
}

// Ticks converts a duration to ticks, rounding half up. Durations beyond
// the tick range saturate at MaxTicks.
func (t Table) Ticks(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	n := d / t.Resolution
	if d%t.Resolution >= (t.Resolution+1)/2 {
		n++
	}
	if n >= MaxTicks {
		return MaxTicks
	}
	return Ticks(n)
}

// Duration converts ticks back to wall time.
func (t Table) Duration(n Ticks) time.Duration { return time.Duration(n) * t.Resolution }

// Classify places a data-phase duration in exactly one category. The
// categories partition the tick axis in order:
// Invalid < Short < Long < EOD < EOF < IFS. Durations inside a gap between
// two windows of a custom table are Invalid.
func (t Table) Classify(d Ticks) Category {
	switch {
	case d < t.Short.Min:
		return Invalid
	case d < t.Short.Max:
		return Short
	case d < t.Long.Min:
		return Invalid
	case d < t.Long.Max:
		return Long
	case d < t.EOD.Min:
		return Invalid
	case d < t.EOD.Max:
		return EOD
	case d < t.EOF.Max:
		return EOF
	default:
		return IFS
	}
}

// ClassifyPulse classifies a pulse with its polarity. Passive pulses follow
// Classify. An Active pulse is Short or Long when it fits a bit window,
// otherwise SOF inside the SOF window and Break from SOF.Max on, the same
// boundary Receive applies to a start of frame.
func (t Table) ClassifyPulse(l Level, d Ticks) Category {
	if l == Passive {
		return t.Classify(d)
	}
	switch {
	case t.Short.Contains(d):
		return Short
	case t.Long.Contains(d):
		return Long
	case t.SOF.Contains(d):
		return SOF
	case d >= t.BreakMin:
		return Break
	}
	return Invalid
}

// IsSOF reports whether an Active pulse of length d is a start of frame.
func (t Table) IsSOF(d Ticks) bool { return t.SOF.Contains(d) }

// Pulse is one symbol on the wire: a level held for a number of ticks.
type Pulse struct {
	Level Level
	Ticks Ticks
}

// Encode returns the pulse train for payload: SOF, eight alternating
// symbols per byte starting Passive, then EOF. A 1 bit is a short Active or
// long Passive symbol; a 0 bit is the opposite width.
func (t Table) Encode(payload []byte) []Pulse {
	out := make([]Pulse, 0, 2+8*len(payload))
	out = append(out, Pulse{Active, t.TxSOF})
	for _, b := range payload {
		for i := 0; i < 8; i++ {
			lvl := Passive
			if i&1 == 1 {
				lvl = Active
			}
			out = append(out, Pulse{lvl, t.bitWidth(lvl, b&(0x80>>i) != 0)})
		}
	}
	return append(out, Pulse{Passive, t.TxEOF})
}

func (t Table) bitWidth(l Level, one bool) Ticks {
	if (l == Active) == one {
		return t.TxShort
	}
	return t.TxLong
}

// bitValue is the inverse of bitWidth for a measured pulse.
func bitValue(l Level, c Category) bool {
	return (c == Short && l == Active) || (c == Long && l == Passive)
}

package vpw

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors; match with errors.Is.
var (
	// ErrNoData means no edge appeared within the receive timeout.
	ErrNoData = errors.New("vpw: no data")
	// ErrBus covers timing violations, out-of-window pulses and collisions.
	// The concrete error is a *BusError.
	ErrBus = errors.New("vpw: bus error")
	// ErrData is returned for a payload outside 1..12 bytes.
	ErrData = errors.New("vpw: data error")
)

// Reason tells what kind of bus error occurred.
type Reason uint8

const (
	ReasonSOFShort Reason = iota + 1
	ReasonSOFLong
	ReasonGlitch
	ReasonInvalidPulse
	ReasonCollision
	ReasonBusBusy
)

var reasonNames = map[Reason]string{
	ReasonSOFShort:     "sof_short",
	ReasonSOFLong:      "sof_long",
	ReasonGlitch:       "glitch",
	ReasonInvalidPulse: "invalid_pulse",
	ReasonCollision:    "collision",
	ReasonBusBusy:      "bus_busy",
}

// Reasons lists every reason, in declaration order.
func Reasons() []Reason {
	return []Reason{ReasonSOFShort, ReasonSOFLong, ReasonGlitch, ReasonInvalidPulse, ReasonCollision, ReasonBusBusy}
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", r)
}

// BusError describes a failed frame. Byte and Bit locate the symbol inside
// the frame and are -1 outside the data phase.
type BusError struct {
	Reason Reason
	Ticks  Ticks
	Byte   int
	Bit    int
}

func (e *BusError) Error() string {
	if e.Byte < 0 {
		return fmt.Sprintf("vpw: bus error: %s after %d ticks", e.Reason, e.Ticks)
	}
	return fmt.Sprintf("vpw: bus error: %s after %d ticks at byte %d bit %d", e.Reason, e.Ticks, e.Byte, e.Bit)
}

// Is makes errors.Is(err, ErrBus) true for every *BusError.
func (e *BusError) Is(target error) bool { return target == ErrBus }

func busError(r Reason, d Ticks) *BusError {
	return &BusError{Reason: r, Ticks: d, Byte: -1, Bit: -1}
}

// Stable labels returned by Kind.
const (
	KindNoData   = "no_data"
	KindBus      = "bus_error"
	KindData     = "data_error"
	KindCanceled = "canceled"
	KindOther    = "other"
)

// Kind maps a codec error to a stable label for logs and metrics.
// It returns "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoData):
		return KindNoData
	case errors.Is(err, ErrBus):
		return KindBus
	case errors.Is(err, ErrData):
		return KindData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}

// ReasonOf extracts the bus error reason, if err wraps a *BusError.
func ReasonOf(err error) (Reason, bool) {
	var be *BusError
	if errors.As(err, &be) {
		return be.Reason, true
	}
	return 0, false
}

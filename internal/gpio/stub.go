//go:build !linux

package gpio

import (
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// Line is unavailable off Linux; Configure always fails.
type Line struct{}

func NewLine(LineConfig) *Line     { return &Line{} }
func (*Line) Configure() error     { return ErrUnsupported }
func (*Line) ReadLevel() vpw.Level { return vpw.Passive }
func (*Line) Drive(vpw.Level)      {}
func (*Line) Err() error           { return nil }
func (*Line) Close() error         { return nil }

type Output struct{}

func OpenOutput(string, int, bool) (*Output, error) { return nil, ErrUnsupported }
func (*Output) Set(bool) error                      { return ErrUnsupported }
func (*Output) Close() error                        { return nil }

type Input struct{}

func OpenInput(string, int, bool) (*Input, error) { return nil, ErrUnsupported }
func (*Input) Read() (bool, error)                { return false, ErrUnsupported }
func (*Input) Close() error                       { return nil }

// Timer falls back to the runtime monotonic clock.
type Timer struct{ start time.Time }

func NewTimer() *Timer    { return &Timer{start: time.Now()} }
func (t *Timer) Restart() { t.start = time.Now() }
func (t *Timer) Elapsed() vpw.Ticks {
	return vpw.Ticks(time.Since(t.start) / Resolution)
}

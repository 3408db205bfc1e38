package simbus

import (
	"context"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// Emulator plays frames from Next onto a Bus as a remote node would.
type Emulator struct {
	Bus      *Bus
	Table    vpw.Table
	Interval time.Duration
	// Lead is how far ahead of the current virtual time a frame starts.
	// It must stay below the receiver's no-data timeout.
	Lead uint64
	Next func() j1850.Frame
	// OnSkip is called when a frame is dropped because the previous one
	// has not been consumed yet. Optional.
	OnSkip func()
}

// Run schedules one frame per Interval until ctx is done.
func (e *Emulator) Run(ctx context.Context) error {
	iv := e.Interval
	if iv <= 0 {
		iv = 10 * time.Millisecond
	}
	lead := e.Lead
	if lead == 0 {
		lead = uint64(e.Table.TxShort)
	}
	t := time.NewTicker(iv)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if e.Bus.Pending() {
				if e.OnSkip != nil {
					e.OnSkip()
				}
				continue
			}
			f := e.Next()
			if f.Len == 0 {
				continue
			}
			e.Bus.Append(e.Table.Encode(f.Bytes()), lead, uint64(e.Table.IFS.Min))
		}
	}
}

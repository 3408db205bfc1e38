package vpw

import (
	"context"
	"fmt"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

// Transmit sends payload as one frame.
//
// The payload must be 1..12 bytes, otherwise ErrData is returned before the
// bus is touched. Transmit waits for an idle bus, sends SOF, the data
// symbols and EOF. While holding a Passive symbol it keeps sampling the
// line; an Active reading means another node is driving, and Transmit
// returns a ReasonCollision *BusError at once without driving further
// symbols. Retransmission is left to the caller.
func (x *Transceiver) Transmit(ctx context.Context, payload []byte) error {
	if len(payload) == 0 || len(payload) > j1850.MaxFrameLen {
		return fmt.Errorf("%w: payload length %d", ErrData, len(payload))
	}
	if err := x.WaitIdle(ctx); err != nil {
		return err
	}
	pulses := x.table.Encode(payload)
	eof := len(pulses) - 1
	for i, p := range pulses {
		x.line.Drive(p.Level)
		x.timer.Restart()
		// Active dominates, so only Passive data symbols can reveal a collision.
		watch := p.Level == Passive && i != eof
		for {
			if err := interrupted(ctx); err != nil {
				x.line.Drive(Passive)
				return err
			}
			e := x.timer.Elapsed()
			if e >= p.Ticks {
				break
			}
			if watch && x.line.ReadLevel() == Active {
				be := &BusError{Reason: ReasonCollision, Ticks: e, Byte: -1, Bit: -1}
				if i > 0 {
					be.Byte, be.Bit = (i-1)/8, (i-1)%8
				}
				return be
			}
		}
	}
	return nil
}

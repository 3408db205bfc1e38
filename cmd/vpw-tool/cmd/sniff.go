package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-vpw-gateway/internal/dash"
	"github.com/kstaniek/go-vpw-gateway/internal/gateway"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw/simbus"
)

var (
	sniffCount    int
	sniffWindow   time.Duration
	sniffInterval time.Duration
	sniffDecode   bool
)

func init() {
	rootCmd.AddCommand(sniffCmd)
	f := sniffCmd.Flags()
	f.IntVarP(&sniffCount, "count", "n", 0, "stop after this many frames (0 = until interrupted)")
	f.DurationVar(&sniffWindow, "rx-window", 10*time.Millisecond, "longest wait for a start of frame per receive")
	f.DurationVar(&sniffInterval, "sim-interval", 25*time.Millisecond, "frame interval of the simulated engine")
	f.BoolVar(&sniffDecode, "decode", true, "annotate dashboard readings")
}

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Print frames seen on the bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBus(false)
		if err != nil {
			return err
		}
		defer b.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		p := &printer{w: cmd.OutOrStdout(), decode: sniffDecode, limit: sniffCount, done: cancel, start: time.Now()}
		opts := []gateway.Option{
			gateway.WithSink(p.print),
			gateway.WithReceiveWindow(sniffWindow),
			gateway.WithResync(true),
			gateway.WithLogger(logging.L()),
		}
		g, gctx := errgroup.WithContext(ctx)
		if b.sim != nil {
			opts = append(opts, gateway.WithIdleSleep(time.Millisecond))
			emu := &simbus.Emulator{Bus: b.sim, Table: b.x.Table(), Interval: sniffInterval, Next: simbus.NewEngine().Next}
			g.Go(func() error {
				if err := emu.Run(gctx); err != nil && gctx.Err() == nil {
					return err
				}
				return nil
			})
		}
		w := gateway.New(b.x, opts...)
		g.Go(func() error { return w.Run(gctx) })
		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), yellow("%d frames, %d bad crc", p.frames(), p.bad))
		return nil
	},
}

// printer writes one line per frame:
//
//	+12.345ms || 28 1B 10 || 28 1B 10 02 0A F0 68 || rpm=643
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	decode bool
	limit  int
	done   func()
	start  time.Time
	n, bad int
}

func (p *printer) print(f j1850.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && p.n >= p.limit {
		return
	}
	p.n++
	var out strings.Builder
	fmt.Fprintf(&out, "%+10.3fms || ", float64(time.Since(p.start).Microseconds())/1000)
	out.WriteString(headerString(f) + " || ")
	if f.CheckCRC() {
		out.WriteString(green("%-35s", f))
	} else {
		p.bad++
		out.WriteString(red("%-35s", f))
	}
	if p.decode {
		if r, ok := dash.Decode(f); ok {
			out.WriteString(" || " + yellow("%s=%d", r.Kind, r.Value))
		}
	}
	fmt.Fprintln(p.w, out.String())
	if p.limit > 0 && p.n >= p.limit {
		p.done()
	}
}

func (p *printer) frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// headerString renders priority and addressing of f.
func headerString(f j1850.Frame) string {
	h, ok := f.Header()
	switch {
	case !ok:
		return "short   "
	case h.SingleHdr:
		return fmt.Sprintf("p%d 1-byte", h.Priority)
	default:
		return fmt.Sprintf("p%d %02X>%02X", h.Priority, h.Source, h.Target)
	}
}

// Package gateway runs the bus worker: the single goroutine that owns the
// transceiver, alternating bounded receives with queued transmissions and
// fanning received frames out to sinks.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// ErrTxOverflow is returned by Send when the transmit queue is full.
var ErrTxOverflow = errors.New("bus tx overflow")

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

const (
	defaultRxWindow  = 10 * time.Millisecond
	defaultTxQueue   = 64
	defaultTxRetries = 2
	backoffMin       = 20 * time.Millisecond
	backoffMax       = 500 * time.Millisecond
)

// Bus is the part of *vpw.Transceiver the worker drives.
type Bus interface {
	Init() error
	Receive(ctx context.Context, timeout time.Duration) (j1850.Frame, error)
	Transmit(ctx context.Context, payload []byte) error
	WaitIdle(ctx context.Context) error
}

var _ Bus = (*vpw.Transceiver)(nil)

// Worker owns a Bus. Run must be called exactly once.
type Worker struct {
	bus       Bus
	sinks     []func(j1850.Frame)
	tx        chan j1850.Frame
	logger    *slog.Logger
	rxWindow  time.Duration
	idleSleep time.Duration
	txRetries int
	appendCRC bool
	echoTx    bool
	resync    bool
}

type Option func(*Worker)

// WithSink adds a receiver of every bus frame. Sinks run on the worker
// goroutine and must not block.
func WithSink(fn func(j1850.Frame)) Option {
	return func(w *Worker) {
		if fn != nil {
			w.sinks = append(w.sinks, fn)
		}
	}
}

// WithReceiveWindow bounds each wait for a start of frame, which is also
// the worst-case latency of a queued transmission.
func WithReceiveWindow(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.rxWindow = d
		}
	}
}

// WithIdleSleep yields for d after a receive window without traffic.
// The simulated bus needs it; on hardware it stays zero.
func WithIdleSleep(d time.Duration) Option { return func(w *Worker) { w.idleSleep = d } }

func WithTxQueue(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.tx = make(chan j1850.Frame, n)
		}
	}
}

// WithTxRetries sets how often a frame that lost arbitration is retried.
func WithTxRetries(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.txRetries = n
		}
	}
}

// WithAppendCRC makes the worker append the CRC byte to queued frames.
func WithAppendCRC(on bool) Option { return func(w *Worker) { w.appendCRC = on } }

// WithEchoTx passes successfully transmitted frames to the sinks as well.
func WithEchoTx(on bool) Option { return func(w *Worker) { w.echoTx = on } }

// WithResync makes the worker wait for an idle bus after a bus error. Use
// it with a transceiver built WithSkipIdleSync.
func WithResync(on bool) Option { return func(w *Worker) { w.resync = on } }

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a worker over bus.
func New(bus Bus, opts ...Option) *Worker {
	w := &Worker{
		bus:       bus,
		tx:        make(chan j1850.Frame, defaultTxQueue),
		logger:    logging.L(),
		rxWindow:  defaultRxWindow,
		txRetries: defaultTxRetries,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Send queues f for transmission without blocking.
func (w *Worker) Send(f j1850.Frame) error {
	select {
	case w.tx <- f:
		return nil
	default:
		metrics.IncError(metrics.ErrTxOverflow)
		return ErrTxOverflow
	}
}

// Pending returns the number of queued transmissions.
func (w *Worker) Pending() int { return len(w.tx) }

// Run initializes the bus and loops until ctx is done. It returns nil on
// cancellation and the Init error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.bus.Init(); err != nil {
		return err
	}
	w.logger.Info("bus_worker_start", "rx_window", w.rxWindow, "append_crc", w.appendCRC)
	defer w.logger.Info("bus_worker_end")
	backoff := backoffMin
	for ctx.Err() == nil {
		select {
		case f := <-w.tx:
			w.transmit(ctx, f)
			continue
		default:
		}
		fr, err := w.bus.Receive(ctx, w.rxWindow)
		switch {
		case err == nil:
			backoff = backoffMin
			w.deliver(fr)
		case errors.Is(err, vpw.ErrNoData):
			backoff = backoffMin
			metrics.IncNoData()
			if w.idleSleep > 0 {
				sleepFn(w.idleSleep)
			}
		case errors.Is(err, vpw.ErrBus):
			w.busError(slog.LevelDebug, "bus_rx_error", metrics.ErrBusRx, err, fr)
			r, _ := vpw.ReasonOf(err)
			busy := r == vpw.ReasonBusBusy
			if !busy && w.resync {
				busy = w.waitIdle(ctx)
			}
			if busy {
				w.logger.Warn("bus_busy", "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
			}
		case ctx.Err() != nil:
			return nil
		default:
			metrics.IncError(metrics.ErrBusRx)
			w.logger.Error("bus_rx_error", "error", err)
		}
	}
	return nil
}

// waitIdle resynchronizes after a broken frame. It reports whether the bus
// stayed busy past the idle timeout.
func (w *Worker) waitIdle(ctx context.Context) bool {
	err := w.bus.WaitIdle(ctx)
	if err == nil || ctx.Err() != nil {
		return false
	}
	if r, ok := vpw.ReasonOf(err); ok {
		metrics.IncBusError(r.String())
		return r == vpw.ReasonBusBusy
	}
	return false
}

func (w *Worker) deliver(fr j1850.Frame) {
	metrics.IncBusRx(int(fr.Len))
	if !fr.CheckCRC() {
		metrics.IncError(metrics.ErrBusCRC)
		w.logger.Debug("bus_crc_mismatch", "frame", fr.String())
	}
	for _, s := range w.sinks {
		s(fr)
	}
}

func (w *Worker) transmit(ctx context.Context, f j1850.Frame) {
	if w.appendCRC {
		g, err := f.AppendCRC()
		if err != nil {
			metrics.IncError(metrics.ErrBusTx)
			w.logger.Warn("tx_rejected", "error", err, "frame", f.String())
			return
		}
		f = g
	}
	for attempt := 0; ; attempt++ {
		err := w.bus.Transmit(ctx, f.Bytes())
		if err == nil {
			metrics.IncBusTx()
			if w.echoTx {
				for _, s := range w.sinks {
					s(f)
				}
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if r, ok := vpw.ReasonOf(err); ok && r == vpw.ReasonCollision && attempt < w.txRetries {
			metrics.IncBusError(r.String())
			w.logger.Debug("tx_collision_retry", "frame", f.String(), "attempt", attempt+1)
			continue
		}
		if errors.Is(err, vpw.ErrBus) {
			w.busError(slog.LevelWarn, "bus_tx_error", metrics.ErrBusTx, err, f)
			return
		}
		metrics.IncError(metrics.ErrBusTx)
		w.logger.Warn("bus_tx_error", "error", err, "kind", vpw.Kind(err), "frame", f.String())
		return
	}
}

func (w *Worker) busError(level slog.Level, msg, where string, err error, fr j1850.Frame) {
	metrics.IncError(where)
	attrs := []any{"error", err}
	if r, ok := vpw.ReasonOf(err); ok {
		metrics.IncBusError(r.String())
		attrs = append(attrs, "reason", r.String())
	}
	if fr.Len > 0 {
		attrs = append(attrs, "frame", fr.String())
	}
	w.logger.Log(context.Background(), level, msg, attrs...)
}

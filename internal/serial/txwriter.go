package serial

import (
	"context"
	"errors"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
	"github.com/kstaniek/go-vpw-gateway/internal/transport"
)

var ErrTxOverflow = errors.New("console tx overflow")

// TXWriter funnels all console writes through one goroutine so a slow
// UART never stalls the bus worker.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a console TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, sp Port, codec Codec, buf int) *TXWriter {
	send := func(fr j1850.Frame) error {
		_, err := sp.Write(codec.Encode(fr))
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrConsoleWrite)
			logging.L().Error("console_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncConsoleTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrConsoleOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous echo (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(fr j1850.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
	"github.com/kstaniek/go-vpw-gateway/internal/serial"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// console is the serial port that echoes bus frames as hex lines and
// accepts hex lines to transmit.
type console struct {
	sp    serial.Port
	tx    *serial.TXWriter
	codec serial.Codec
	send  func(j1850.Frame) error
	l     *slog.Logger
}

// initConsole opens the console device and announces the gateway on it.
// Frames read back from the port are handed to send.
func initConsole(ctx context.Context, cfg *appConfig, send func(j1850.Frame) error, l *slog.Logger) (*console, error) {
	sp, err := openSerialPort(ctx, cfg.consoleDev, cfg.consoleBaud, cfg.consoleReadTO)
	if err != nil {
		return nil, fmt.Errorf("open console: %w", err)
	}
	if _, err := sp.Write([]byte(serial.Banner)); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("console banner: %w", err)
	}
	l.Info("console_open", "device", cfg.consoleDev, "baud", cfg.consoleBaud)
	c := &console{sp: sp, send: send, l: l}
	// The echo writer lives until Close, not until the read loop ends.
	c.tx = serial.NewTXWriter(context.Background(), sp, c.codec, consoleQueueSize)
	return c, nil
}

// Echo queues f for the console. It never blocks; a full queue drops.
func (c *console) Echo(f j1850.Frame) { _ = c.tx.SendFrame(f) }

// Close releases the port and stops the writer.
func (c *console) Close() {
	_ = c.sp.Close()
	c.tx.Close()
}

// Run reads the console until ctx is done or the device goes away.
func (c *console) Run(ctx context.Context) error {
	defer c.l.Info("console_rx_end")
	buf := make([]byte, consoleReadBufSize)
	acc := bytes.NewBuffer(nil)
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := c.sp.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			_ = c.codec.DecodeStream(acc, c.submit)
			if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
				acc = bytes.NewBuffer(nil)
			}
			backoff = rxBackoffMin
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				c.l.Warn("console_gone", "error", err)
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			metrics.IncError(metrics.ErrConsoleRead)
			c.l.Warn("console_read_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}
}

func (c *console) submit(f j1850.Frame) {
	if err := c.send(f); err != nil {
		c.l.Debug("console_tx_rejected", "error", err, "frame", f.String())
	}
}

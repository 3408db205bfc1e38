package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/gateway"
	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/hub"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
)

// readBatch bounds how many lines are handled between deadline refreshes.
const readBatch = 16

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		dec := s.Codec.NewDecoder(conn)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			count, err := dec.DecodeN(readBatch, func(fr j1850.Frame) { s.submit(fr, logger) })
			if err != nil {
				switch {
				case hexline.Malformed(err):
					s.stats.malformed.Add(1)
					logger.Debug("malformed_line", "error", err)
					continue
				case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}

// submit hands one client frame to the bus worker.
func (s *Server) submit(fr j1850.Frame, logger *slog.Logger) {
	if s.frameFilter != nil && !s.frameFilter(&fr) {
		return
	}
	metrics.IncTCPRx()
	if s.Send == nil {
		return
	}
	if err := s.Send(fr); err != nil {
		if errors.Is(err, gateway.ErrTxOverflow) {
			s.stats.txOverflow.Add(1)
			logger.Debug("bus_tx_overflow_drop", "frame", fr.String())
			return
		}
		wrap := fmt.Errorf("%w: %v", ErrBusTx, err)
		s.setError(wrap)
		s.stats.txErrors.Add(1)
		logger.Error("bus_tx_error", "error", wrap, "frame", fr.String())
	}
}

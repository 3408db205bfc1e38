package server

import "sync/atomic"

// stats are per-server connection counters, logged once at shutdown.
type stats struct {
	accepted      atomic.Uint64
	handshakeFail atomic.Uint64
	connected     atomic.Uint64
	disconnected  atomic.Uint64
	malformed     atomic.Uint64
	txOverflow    atomic.Uint64
	txErrors      atomic.Uint64
}

func (s *stats) attrs() []any {
	return []any{
		"accepted", s.accepted.Load(),
		"handshake_fail", s.handshakeFail.Load(),
		"connected", s.connected.Load(),
		"disconnected", s.disconnected.Load(),
		"malformed", s.malformed.Load(),
		"tx_overflow", s.txOverflow.Load(),
		"tx_errors", s.txErrors.Load(),
	}
}

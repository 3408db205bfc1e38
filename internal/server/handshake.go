package server

import (
	"context"
	"net"

	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
)

// Handshake runs the hello exchange required before any frame.
func (s *Server) Handshake(ctx context.Context, c net.Conn) error {
	return hexline.Handshake(ctx, c, s.handshakeTimeout)
}

package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/hub"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

// mockSend is a no-op backend send function.
func mockSend(j1850.Frame) error { return nil }

// startInMemoryServer launches the server on :0 for benchmarks.
func startInMemoryServer(b *testing.B, h *hub.Hub) (*Server, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(WithHub(h), WithCodec(&hexline.Codec{}), WithSend(mockSend))
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		b.Fatalf("server not ready")
	}
	return srv, cancel
}

func BenchmarkServerBroadcast(b *testing.B) {
	h := hub.New()
	h.Buffer = 4096
	srv, cancel := startInMemoryServer(b, h)
	defer cancel()
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		b.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := io.WriteString(conn, hexline.Hello); err != nil {
		b.Fatalf("handshake write: %v", err)
	}
	if _, err := io.ReadFull(conn, make([]byte, len(hexline.Hello))); err != nil {
		b.Fatalf("handshake read: %v", err)
	}
	conn.SetDeadline(time.Time{})
	go func() { _, _ = io.Copy(io.Discard, conn) }()
	for h.Count() == 0 {
		time.Sleep(time.Millisecond)
	}
	fr := j1850.MustFrame(0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0, 0x68)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Broadcast(fr)
	}
}

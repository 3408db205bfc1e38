package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-vpw-gateway/internal/gateway"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// backend is a bus ready to be handed to the worker, plus whatever else
// has to run beside it.
type backend struct {
	bus gateway.Bus
	// opts are appended to the worker options chosen by main.
	opts []gateway.Option
	// runners are started in the main errgroup.
	runners []func(ctx context.Context) error
	cleanup func()
}

// transceiverOptions are shared by every backend. The worker resyncs after
// errors itself, so the transceiver skips its own idle sync.
func transceiverOptions(cfg *appConfig) []vpw.Option {
	return []vpw.Option{
		vpw.WithStrict(cfg.strict),
		vpw.WithSkipIdleSync(true),
		vpw.WithIdleTimeout(cfg.idleTimeout),
	}
}

// initBackend selects the bus backend. It returns an error instead of
// exiting the process to allow graceful handling by the caller.
func initBackend(cfg *appConfig, l *slog.Logger) (*backend, error) {
	switch cfg.backend {
	case "gpio":
		return initGPIOBackend(cfg, l)
	case "sim":
		return initSimBackend(cfg, l)
	default:
		return nil, fmt.Errorf("unknown backend %q (use gpio|sim)", cfg.backend)
	}
}

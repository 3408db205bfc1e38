package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw/simbus"
)

// simLine stands in for the GPIO line.
type simLine struct {
	*simbus.Bus
	closed bool
}

func (l *simLine) Close() error { l.closed = true; return nil }

func TestGPIOBackendUsesLine(t *testing.T) {
	line := &simLine{Bus: simbus.New()}
	var got gpio.LineConfig
	openBusLine = func(cfg gpio.LineConfig) (busLine, vpw.Timer) {
		got = cfg
		return line, line.NewTimer()
	}
	t.Cleanup(func() {
		openBusLine = func(cfg gpio.LineConfig) (busLine, vpw.Timer) { return gpio.NewLine(cfg), gpio.NewTimer() }
	})
	cfg := baseConfig()
	cfg.rxInvert = true
	be, err := initBackend(cfg, slog.Default())
	if err != nil {
		t.Fatalf("initBackend: %v", err)
	}
	want := gpio.LineConfig{Root: cfg.gpioRoot, RxPin: 17, TxPin: 27, RxInvert: true}
	if got != want {
		t.Fatalf("line config %+v want %+v", got, want)
	}
	if err := be.bus.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	f := j1850.MustFrame(0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0, 0x68)
	line.Schedule(400, vpw.DefaultTable.Encode(f.Bytes()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fr, err := be.bus.Receive(ctx, time.Millisecond)
	if err != nil || !fr.Equal(f) {
		t.Fatalf("Receive: %v %s", err, fr)
	}
	if _, err := be.bus.Receive(ctx, time.Millisecond); !errors.Is(err, vpw.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
	be.cleanup()
	if !line.closed {
		t.Fatal("line not closed")
	}
}

func TestSimBackendRunners(t *testing.T) {
	cfg := baseConfig()
	cfg.backend = "sim"
	be, err := initBackend(cfg, slog.Default())
	if err != nil {
		t.Fatalf("initBackend: %v", err)
	}
	if len(be.runners) != 1 || len(be.opts) != 1 {
		t.Fatalf("runners=%d opts=%d", len(be.runners), len(be.opts))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := be.runners[0](ctx); err != nil {
		t.Fatalf("emulator on cancelled ctx: %v", err)
	}
}

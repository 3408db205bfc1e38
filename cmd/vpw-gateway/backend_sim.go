package main

import (
	"context"
	"log/slog"

	"github.com/kstaniek/go-vpw-gateway/internal/gateway"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw/simbus"
)

func initSimBackend(cfg *appConfig, l *slog.Logger) (*backend, error) {
	b := simbus.New(simbus.WithRecord(false))
	x := vpw.New(b, b.NewTimer(), transceiverOptions(cfg)...)
	eng := simbus.NewEngine()
	emu := &simbus.Emulator{
		Bus:      b,
		Table:    x.Table(),
		Interval: cfg.simInterval,
		Next:     eng.Next,
		OnSkip:   func() { l.Debug("sim_frame_skipped") },
	}
	l.Info("sim_bus", "interval", cfg.simInterval)
	return &backend{
		bus:  x,
		opts: []gateway.Option{gateway.WithIdleSleep(simIdleSleep)},
		runners: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				if err := emu.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			},
		},
		cleanup: func() {},
	}, nil
}

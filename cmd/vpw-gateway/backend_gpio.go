package main

import (
	"log/slog"

	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// busLine is what the gpio backend needs from a line.
type busLine interface {
	vpw.BusLine
	Close() error
}

// openBusLine is a hook for tests.
var openBusLine = func(cfg gpio.LineConfig) (busLine, vpw.Timer) {
	return gpio.NewLine(cfg), gpio.NewTimer()
}

func initGPIOBackend(cfg *appConfig, l *slog.Logger) (*backend, error) {
	lc := gpio.LineConfig{
		Root:     cfg.gpioRoot,
		RxPin:    cfg.rxPin,
		TxPin:    cfg.txPin,
		RxInvert: cfg.rxInvert,
		TxInvert: cfg.txInvert,
	}
	line, timer := openBusLine(lc)
	table, err := vpw.NewTable(gpio.Resolution)
	if err != nil {
		return nil, err
	}
	opts := append(transceiverOptions(cfg), vpw.WithTable(table))
	x := vpw.New(line, timer, opts...)
	l.Info("gpio_bus", "root", lc.Root, "rx_pin", lc.RxPin, "tx_pin", lc.TxPin,
		"rx_invert", lc.RxInvert, "tx_invert", lc.TxInvert, "strict", cfg.strict)
	return &backend{
		bus: x,
		cleanup: func() {
			if err := line.Close(); err != nil {
				l.Warn("gpio_close_error", "error", err)
			}
		},
	}, nil
}

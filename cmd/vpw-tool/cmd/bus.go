package cmd

import (
	"fmt"

	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw/simbus"
)

// bus is an opened transceiver. sim is set on the simulated backend.
type bus struct {
	x     *vpw.Transceiver
	sim   *simbus.Bus
	close func() error
}

func openBus(record bool) (*bus, error) {
	opts := []vpw.Option{vpw.WithStrict(strict), vpw.WithSkipIdleSync(true)}
	switch backend {
	case "sim":
		b := simbus.New(simbus.WithRecord(record))
		return &bus{
			x:     vpw.New(b, b.NewTimer(), opts...),
			sim:   b,
			close: func() error { return nil },
		}, nil
	case "gpio":
		table, err := vpw.NewTable(gpio.Resolution)
		if err != nil {
			return nil, err
		}
		line := gpio.NewLine(gpio.LineConfig{
			Root:     gpioRoot,
			RxPin:    rxPin,
			TxPin:    txPin,
			RxInvert: rxInvert,
			TxInvert: txInvert,
		})
		return &bus{
			x:     vpw.New(line, gpio.NewTimer(), append(opts, vpw.WithTable(table))...),
			close: line.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use gpio|sim)", backend)
	}
}

var frames = hexline.Codec{}

// parseFrame reads a frame from one or more hex arguments, e.g.
// "68 6A F1 01 00", "686AF10100" or 68 6A F1 01 00.
func parseFrame(args []string) (j1850.Frame, error) {
	var line []byte
	for i, a := range args {
		if i > 0 {
			line = append(line, ' ')
		}
		line = append(line, a...)
	}
	return frames.ParseLine(line)
}

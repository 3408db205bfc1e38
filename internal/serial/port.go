package serial

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openPort is replaced in tests.
var openPort = func(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// Open opens the console device. USB adapters can show up a moment after
// boot, so a failed open is retried a few times before giving up.
func Open(ctx context.Context, name string, baud int, readTimeout time.Duration) (Port, error) {
	var p Port
	err := retry.Do(
		func() error {
			var err error
			p, err = openPort(name, baud, readTimeout)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.L().Debug("serial_open_retry", "device", name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// pin is one exported sysfs GPIO with its value file held open.
type pin struct {
	num    int
	fd     int
	invert bool
}

func pinDir(root string, n int) string { return filepath.Join(root, "gpio"+strconv.Itoa(n)) }

func writeFile(path, s string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	_, err = unix.Write(fd, []byte(s))
	if cerr := unix.Close(fd); err == nil {
		err = cerr
	}
	return err
}

// openPin exports n, sets its direction and opens its value file. Freshly
// exported pins can take a moment before udev fixes permissions, so the
// direction write is retried.
func openPin(ctx context.Context, root string, n int, out, invert bool) (*pin, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := writeFile(filepath.Join(root, "export"), strconv.Itoa(n)); err != nil && !errors.Is(err, unix.EBUSY) {
		return nil, fmt.Errorf("export gpio%d: %w", n, err)
	}
	dir := "in"
	flags := unix.O_RDONLY
	if out {
		dir = "low"
		if invert {
			dir = "high"
		}
		flags = unix.O_RDWR
	}
	err := retry.Do(func() error {
		return writeFile(filepath.Join(pinDir(root, n), "direction"), dir)
	},
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(k uint, err error) {
			logging.L().Debug("gpio_direction_retry", "pin", n, "attempt", k+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("direction gpio%d: %w", n, err)
	}
	fd, err := unix.Open(filepath.Join(pinDir(root, n), "value"), flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio%d value: %w", n, err)
	}
	return &pin{num: n, fd: fd, invert: invert}, nil
}

func (p *pin) read() (bool, error) {
	var b [1]byte
	if _, err := unix.Pread(p.fd, b[:], 0); err != nil {
		return false, err
	}
	return (b[0] == '1') != p.invert, nil
}

func (p *pin) write(high bool) error {
	v := []byte{'0'}
	if high != p.invert {
		v[0] = '1'
	}
	_, err := unix.Pwrite(p.fd, v, 0)
	return err
}

func (p *pin) close() error { return unix.Close(p.fd) }

// Line is a vpw.BusLine on two sysfs GPIO pins.
//
// ReadLevel and Drive cannot return errors; the first I/O failure is kept
// and reported by Err, and reads fail safe to Passive.
type Line struct {
	cfg LineConfig
	rx  *pin
	tx  *pin
	err atomic.Pointer[error]
}

// NewLine prepares a Line; pins are opened by Configure.
func NewLine(cfg LineConfig) *Line { return &Line{cfg: cfg} }

// Configure implements vpw.Configurer.
func (l *Line) Configure() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rx, err := openPin(ctx, l.cfg.Root, l.cfg.RxPin, false, l.cfg.RxInvert)
	if err != nil {
		return err
	}
	tx, err := openPin(ctx, l.cfg.Root, l.cfg.TxPin, true, l.cfg.TxInvert)
	if err != nil {
		_ = rx.close()
		return err
	}
	l.rx, l.tx = rx, tx
	logging.L().Info("gpio_line_ready", "rx", rx.num, "tx", tx.num)
	return nil
}

func (l *Line) fail(err error) {
	l.err.CompareAndSwap(nil, &err)
}

// Err returns the first I/O error seen by ReadLevel or Drive.
func (l *Line) Err() error {
	if p := l.err.Load(); p != nil {
		return *p
	}
	return nil
}

// ReadLevel implements vpw.BusLine.
func (l *Line) ReadLevel() vpw.Level {
	if l.rx == nil {
		return vpw.Passive
	}
	on, err := l.rx.read()
	if err != nil {
		l.fail(fmt.Errorf("read gpio%d: %w", l.rx.num, err))
		return vpw.Passive
	}
	if on {
		return vpw.Active
	}
	return vpw.Passive
}

// Drive implements vpw.BusLine.
func (l *Line) Drive(v vpw.Level) {
	if l.tx == nil {
		return
	}
	if err := l.tx.write(v == vpw.Active); err != nil {
		l.fail(fmt.Errorf("write gpio%d: %w", l.tx.num, err))
	}
}

// Close releases the bus and closes the value files.
func (l *Line) Close() error {
	var errs []error
	if l.tx != nil {
		_ = l.tx.write(false)
		errs = append(errs, l.tx.close())
	}
	if l.rx != nil {
		errs = append(errs, l.rx.close())
	}
	return errors.Join(errs...)
}

// Output is a single output pin; it satisfies mm5450.Pin.
type Output struct{ p *pin }

// OpenOutput exports n as an output, initially low.
func OpenOutput(root string, n int, invert bool) (*Output, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := openPin(ctx, root, n, true, invert)
	if err != nil {
		return nil, err
	}
	return &Output{p: p}, nil
}

func (o *Output) Set(high bool) error { return o.p.write(high) }
func (o *Output) Close() error        { return o.p.close() }

// Input is a single input pin.
type Input struct{ p *pin }

// OpenInput exports n as an input.
func OpenInput(root string, n int, invert bool) (*Input, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := openPin(ctx, root, n, false, invert)
	if err != nil {
		return nil, err
	}
	return &Input{p: p}, nil
}

func (i *Input) Read() (bool, error) { return i.p.read() }
func (i *Input) Close() error        { return i.p.close() }

// Timer is a vpw.Timer on CLOCK_MONOTONIC with microsecond ticks.
type Timer struct{ start int64 }

func monoNow() int64 {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts.Nano()
}

// NewTimer returns a started Timer.
func NewTimer() *Timer { return &Timer{start: monoNow()} }

// Restart implements vpw.Timer.
func (t *Timer) Restart() { t.start = monoNow() }

// Elapsed implements vpw.Timer.
func (t *Timer) Elapsed() vpw.Ticks {
	return vpw.Ticks((monoNow() - t.start) / int64(Resolution))
}

var (
	_ vpw.BusLine    = (*Line)(nil)
	_ vpw.Configurer = (*Line)(nil)
	_ vpw.Timer      = (*Timer)(nil)
)

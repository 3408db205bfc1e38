// Package gpio connects the VPW codec and the LED driver to Linux sysfs
// GPIO lines and the monotonic clock.
package gpio

import (
	"errors"
	"time"
)

// DefaultRoot is the sysfs GPIO class directory.
const DefaultRoot = "/sys/class/gpio"

var ErrUnsupported = errors.New("gpio: not supported on this platform")

// LineConfig describes the two pins of a VPW bus interface. The receive
// pin reads the bus through a comparator, the transmit pin switches the
// bus driver. Invert flags account for inverting transistor stages.
type LineConfig struct {
	Root     string
	RxPin    int
	TxPin    int
	RxInvert bool
	TxInvert bool
}

// Resolution of the monotonic Timer.
const Resolution = time.Microsecond

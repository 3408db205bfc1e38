package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/hub"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
)

type appConfig struct {
	backend     string
	gpioRoot    string
	rxPin       int
	txPin       int
	rxInvert    bool
	txInvert    bool
	rxWindow    time.Duration
	idleTimeout time.Duration
	strict      bool
	appendCRC   bool
	echoTx      bool
	simInterval time.Duration

	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string

	consoleDev    string
	consoleBaud   int
	consoleReadTO time.Duration

	display     bool
	ledClockPin int
	ledDataPin  int
	gearPins    string
	modePins    string
	dimPin      int
	buttonPin   int
	refresh     time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	fs := flag.CommandLine
	fs.StringVar(&cfg.backend, "backend", "gpio", "Bus backend: gpio|sim")
	fs.StringVar(&cfg.gpioRoot, "gpio-root", gpio.DefaultRoot, "sysfs GPIO directory")
	fs.IntVar(&cfg.rxPin, "rx-pin", 17, "GPIO number reading the bus")
	fs.IntVar(&cfg.txPin, "tx-pin", 27, "GPIO number driving the bus")
	fs.BoolVar(&cfg.rxInvert, "rx-invert", false, "Bus reads Active when the rx pin is low")
	fs.BoolVar(&cfg.txInvert, "tx-invert", false, "Drive the tx pin low to make the bus Active")
	fs.DurationVar(&cfg.rxWindow, "rx-window", 10*time.Millisecond, "Longest wait for a start of frame before serving the transmit queue")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 20*time.Millisecond, "Give up waiting for an idle bus after this long")
	fs.BoolVar(&cfg.strict, "strict", false, "Treat pulses that are neither short nor long as bus errors")
	fs.BoolVar(&cfg.appendCRC, "append-crc", false, "Append the CRC byte to frames submitted for transmission")
	fs.BoolVar(&cfg.echoTx, "echo-tx", true, "Broadcast transmitted frames to clients and the console")
	fs.DurationVar(&cfg.simInterval, "sim-interval", 25*time.Millisecond, "Frame interval of the simulated engine (--backend=sim)")
	fs.StringVar(&cfg.listenAddr, "listen", ":20100", "TCP listen address")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "Per-client hub buffer (frames)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", 3*time.Second, "Client handshake timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "Per-connection read deadline")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default vpw-gateway-<hostname>)")
	fs.StringVar(&cfg.consoleDev, "console", "", "Serial console device echoing bus frames; empty disables")
	fs.IntVar(&cfg.consoleBaud, "console-baud", 115200, "Serial console baud rate")
	fs.DurationVar(&cfg.consoleReadTO, "console-read-timeout", 50*time.Millisecond, "Serial console read timeout")
	fs.BoolVar(&cfg.display, "display", false, "Drive the LED dashboard")
	fs.IntVar(&cfg.ledClockPin, "led-clock-pin", 22, "GPIO number of the LED driver clock")
	fs.IntVar(&cfg.ledDataPin, "led-data-pin", 23, "GPIO number of the LED driver data input")
	fs.StringVar(&cfg.gearPins, "gear-pins", "", "Comma separated GPIO numbers of gear digit segments a..dp; empty disables")
	fs.StringVar(&cfg.modePins, "mode-pins", "", "Comma separated GPIO numbers of the rpm,speed,temp LEDs; empty disables")
	fs.IntVar(&cfg.dimPin, "dim-pin", -1, "GPIO number selecting low brightness (-1 disables)")
	fs.IntVar(&cfg.buttonPin, "button-pin", -1, "GPIO number of the mode button, active low (-1 disables)")
	fs.DurationVar(&cfg.refresh, "refresh", 50*time.Millisecond, "Display refresh and button sampling period")
	showVersion := fs.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, ok := logging.ParseLevel(c.logLevel); !ok {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "gpio":
		if c.rxPin < 0 || c.txPin < 0 {
			return fmt.Errorf("rx-pin and tx-pin must be >= 0")
		}
		if c.rxPin == c.txPin {
			return fmt.Errorf("rx-pin and tx-pin must differ (both %d)", c.rxPin)
		}
	case "sim":
		if c.simInterval <= 0 {
			return fmt.Errorf("sim-interval must be > 0")
		}
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if _, err := hub.ParsePolicy(c.hubPolicy); err != nil {
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.rxWindow <= 0 {
		return fmt.Errorf("rx-window must be > 0")
	}
	if c.idleTimeout < 300*time.Microsecond {
		return fmt.Errorf("idle-timeout must cover the 300µs inter-frame gap (got %v)", c.idleTimeout)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.consoleDev != "" {
		if c.consoleBaud <= 0 {
			return fmt.Errorf("console-baud must be > 0 (got %d)", c.consoleBaud)
		}
		if c.consoleReadTO <= 0 {
			return fmt.Errorf("console-read-timeout must be > 0")
		}
	}
	if c.display {
		if c.refresh <= 0 {
			return fmt.Errorf("refresh must be > 0")
		}
		if c.backend == "gpio" && (c.ledClockPin < 0 || c.ledDataPin < 0) {
			return fmt.Errorf("led-clock-pin and led-data-pin must be >= 0")
		}
		if pins, err := parsePins(c.gearPins); err != nil {
			return fmt.Errorf("gear-pins: %w", err)
		} else if len(pins) != 0 && len(pins) != 8 {
			return fmt.Errorf("gear-pins: need 8 pins, got %d", len(pins))
		}
		if pins, err := parsePins(c.modePins); err != nil {
			return fmt.Errorf("mode-pins: %w", err)
		} else if len(pins) != 0 && len(pins) != 3 {
			return fmt.Errorf("mode-pins: need 3 pins, got %d", len(pins))
		}
	}
	return nil
}

// parsePins parses "5,6,13" into GPIO numbers. Empty input yields nil.
func parsePins(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pins := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid pin %q", p)
		}
		pins = append(pins, n)
	}
	return pins, nil
}

// envPrefix namespaces the environment overrides.
const envPrefix = "VPW_GATEWAY_"

// applyEnvOverrides maps VPW_GATEWAY_* environment variables to config
// fields unless the corresponding flag was explicitly set. The variable
// name is the flag name upper-cased with dashes turned into underscores.
// Empty values are ignored; durations use time.ParseDuration.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	lookup := func(flagName string) (string, string, bool) {
		if _, ok := set[flagName]; ok {
			return "", "", false
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return key, v, ok && v != ""
	}
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	str := func(flagName string, dst *string) {
		if _, v, ok := lookup(flagName); ok {
			*dst = v
		}
	}
	num := func(flagName string, min int, dst *int) {
		key, v, ok := lookup(flagName)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			fail(key, err)
		case n < min:
			fail(key, fmt.Errorf("%d below %d", n, min))
		default:
			*dst = n
		}
	}
	dur := func(flagName string, dst *time.Duration) {
		key, v, ok := lookup(flagName)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			fail(key, err)
		case d < 0:
			fail(key, fmt.Errorf("negative duration %v", d))
		default:
			*dst = d
		}
	}
	boolean := func(flagName string, dst *bool) {
		key, v, ok := lookup(flagName)
		if !ok {
			return
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			fail(key, fmt.Errorf("not a boolean: %q", v))
		}
	}

	str("backend", &c.backend)
	str("gpio-root", &c.gpioRoot)
	num("rx-pin", 0, &c.rxPin)
	num("tx-pin", 0, &c.txPin)
	boolean("rx-invert", &c.rxInvert)
	boolean("tx-invert", &c.txInvert)
	dur("rx-window", &c.rxWindow)
	dur("idle-timeout", &c.idleTimeout)
	boolean("strict", &c.strict)
	boolean("append-crc", &c.appendCRC)
	boolean("echo-tx", &c.echoTx)
	dur("sim-interval", &c.simInterval)
	str("listen", &c.listenAddr)
	str("log-format", &c.logFormat)
	str("log-level", &c.logLevel)
	str("metrics-addr", &c.metricsAddr)
	num("hub-buffer", 1, &c.hubBuffer)
	str("hub-policy", &c.hubPolicy)
	dur("log-metrics-interval", &c.logMetricsEvery)
	num("max-clients", 0, &c.maxClients)
	dur("handshake-timeout", &c.handshakeTO)
	dur("client-read-timeout", &c.clientReadTO)
	boolean("mdns-enable", &c.mdnsEnable)
	str("mdns-name", &c.mdnsName)
	str("console", &c.consoleDev)
	num("console-baud", 1, &c.consoleBaud)
	dur("console-read-timeout", &c.consoleReadTO)
	boolean("display", &c.display)
	num("led-clock-pin", 0, &c.ledClockPin)
	num("led-data-pin", 0, &c.ledDataPin)
	str("gear-pins", &c.gearPins)
	str("mode-pins", &c.modePins)
	num("dim-pin", -1, &c.dimPin)
	num("button-pin", -1, &c.buttonPin)
	dur("refresh", &c.refresh)
	return firstErr
}

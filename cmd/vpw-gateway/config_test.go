package main

import (
	"reflect"
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		backend: "gpio", gpioRoot: "/sys/class/gpio", rxPin: 17, txPin: 27,
		rxWindow: 10 * time.Millisecond, idleTimeout: 20 * time.Millisecond, simInterval: 25 * time.Millisecond,
		listenAddr: ":20100", logFormat: "text", logLevel: "info", hubBuffer: 8, hubPolicy: "drop",
		maxClients: 0, handshakeTO: time.Second, clientReadTO: time.Second,
		consoleBaud: 115200, consoleReadTO: 50 * time.Millisecond,
		ledClockPin: 22, ledDataPin: 23, dimPin: -1, buttonPin: -1, refresh: 50 * time.Millisecond,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"gpio", func(*appConfig) {}},
		{"sim", func(c *appConfig) { c.backend = "sim"; c.rxPin, c.txPin = -1, -1 }},
		{"console", func(c *appConfig) { c.consoleDev = "/dev/ttyUSB0" }},
		{"display", func(c *appConfig) {
			c.display = true
			c.gearPins = "5,6,13,19,26,12,16,20"
			c.modePins = "21, 24, 25"
		}},
		{"kick", func(c *appConfig) { c.hubPolicy = "kick" }},
		{"json", func(c *appConfig) { c.logFormat = "json"; c.logLevel = "debug" }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err != nil {
			t.Fatalf("%s: expected ok got %v", tc.name, err)
		}
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"samePins", func(c *appConfig) { c.txPin = c.rxPin }},
		{"negativePin", func(c *appConfig) { c.rxPin = -1 }},
		{"badSimInterval", func(c *appConfig) { c.backend = "sim"; c.simInterval = 0 }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badRxWindow", func(c *appConfig) { c.rxWindow = 0 }},
		{"shortIdleTimeout", func(c *appConfig) { c.idleTimeout = 100 * time.Microsecond }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
		{"badConsoleBaud", func(c *appConfig) { c.consoleDev = "x"; c.consoleBaud = 0 }},
		{"badConsoleTO", func(c *appConfig) { c.consoleDev = "x"; c.consoleReadTO = 0 }},
		{"badRefresh", func(c *appConfig) { c.display = true; c.refresh = 0 }},
		{"badLedPin", func(c *appConfig) { c.display = true; c.ledClockPin = -1 }},
		{"gearPinCount", func(c *appConfig) { c.display = true; c.gearPins = "1,2,3" }},
		{"gearPinSyntax", func(c *appConfig) { c.display = true; c.gearPins = "1,x" }},
		{"modePinCount", func(c *appConfig) { c.display = true; c.modePins = "1,2" }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidate_Nil(t *testing.T) {
	var c *appConfig
	if err := c.validate(); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestParsePins(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"5", []int{5}, false},
		{"5, 6 ,13", []int{5, 6, 13}, false},
		{"5,,6", nil, true},
		{"-1", nil, true},
		{"a", nil, true},
	}
	for _, tc := range tests {
		got, err := parsePins(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
		if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestListenPort(t *testing.T) {
	tests := map[string]int{
		"127.0.0.1:20100": 20100,
		"[::]:9":          9,
		":0":              0,
		"nohost":          0,
	}
	for in, want := range tests {
		if got := listenPort(in); got != want {
			t.Fatalf("%q: got %d want %d", in, got, want)
		}
	}
}

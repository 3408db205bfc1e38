package vpw_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw/simbus"
)

// rxStart is where scheduled frames begin: after the receiver's idle sync
// (280 ticks) and well inside its no-data window.
const rxStart = 400

func newNode(t *testing.T, opts ...vpw.Option) (*simbus.Bus, *vpw.Transceiver) {
	t.Helper()
	b := simbus.New()
	x := vpw.New(b, b.NewTimer(), opts...)
	return b, x
}

// sendWaveform transmits payload on its own bus and returns what went on the wire.
func sendWaveform(t *testing.T, payload []byte) []vpw.Pulse {
	t.Helper()
	b, x := newNode(t)
	if err := x.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := x.Transmit(context.Background(), payload); err != nil {
		t.Fatalf("transmit % X: %v", payload, err)
	}
	return b.Waveform()
}

func receivePulses(t *testing.T, pulses []vpw.Pulse, opts ...vpw.Option) (j1850.Frame, error) {
	t.Helper()
	b, x := newNode(t, opts...)
	b.Schedule(rxStart, pulses)
	return x.Receive(context.Background(), 0)
}

func TestTransmitWaveformMatchesEncode(t *testing.T) {
	payload := []byte{0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0, 0x68}
	got := sendWaveform(t, payload)
	want := vpw.DefaultTable.Encode(payload)
	if len(got) != len(want) {
		t.Fatalf("pulses=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pulse %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestLoopbackScenario(t *testing.T) {
	in := j1850.MustFrame(0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0)
	withCRC, err := in.AppendCRC()
	if err != nil {
		t.Fatal(err)
	}
	fr, err := receivePulses(t, sendWaveform(t, withCRC.Bytes()))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !fr.Equal(withCRC) {
		t.Fatalf("got %v want %v", fr, withCRC)
	}
	if !fr.CheckCRC() {
		t.Fatalf("crc mismatch on %v", fr)
	}
	h, ok := fr.Header()
	if !ok || h.Priority != 1 || h.Target != 0x1B || h.Source != 0x10 {
		t.Fatalf("header=%+v ok=%v", h, ok)
	}
}

func TestLoopbackRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1850))
	for i := 0; i < 200; i++ {
		payload := make([]byte, 1+rng.Intn(j1850.MaxFrameLen))
		rng.Read(payload)
		fr, err := receivePulses(t, sendWaveform(t, payload))
		if err != nil {
			t.Fatalf("iter %d % X: %v", i, payload, err)
		}
		if int(fr.Len) != len(payload) || string(fr.Bytes()) != string(payload) {
			t.Fatalf("iter %d: got %v want % X", i, fr, payload)
		}
	}
}

func TestReceiveTwelveBytesStopsWithoutEOD(t *testing.T) {
	payload := make([]byte, j1850.MaxFrameLen)
	for i := range payload {
		payload[i] = byte(0x11 * i)
	}
	pulses := vpw.DefaultTable.Encode(payload)
	// Drop EOF: a receiver must not wait for it after the twelfth byte.
	pulses = pulses[:len(pulses)-1]
	b, x := newNode(t)
	end := b.Schedule(rxStart, pulses)
	fr, err := x.Receive(context.Background(), 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if fr.Len != j1850.MaxFrameLen {
		t.Fatalf("len=%d", fr.Len)
	}
	if now := b.Now(); now != end {
		t.Fatalf("receiver returned at %d, last edge at %d", now, end)
	}
}

func TestReceiveNoData(t *testing.T) {
	b, x := newNode(t)
	_, err := x.Receive(context.Background(), 0)
	if !errors.Is(err, vpw.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	idle := uint64(vpw.DefaultTable.IFS.Min)
	if waited := b.Now() - idle; waited != uint64(vpw.DefaultTable.Ticks(vpw.NoDataTimeout)) {
		t.Fatalf("waited %d ticks for data", waited)
	}

	b, x = newNode(t)
	_, err = x.Receive(context.Background(), time.Millisecond)
	if !errors.Is(err, vpw.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if waited := b.Now() - idle; waited != 1000 {
		t.Fatalf("waited %d ticks with 1ms timeout", waited)
	}
}

func TestReceiveSOFOutOfWindow(t *testing.T) {
	cases := []struct {
		name   string
		sof    vpw.Ticks
		reason vpw.Reason
	}{
		{"short", 100, vpw.ReasonSOFShort},
		{"long", 300, vpw.ReasonSOFLong},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := receivePulses(t, []vpw.Pulse{{Level: vpw.Active, Ticks: c.sof}, {Level: vpw.Passive, Ticks: 400}})
			if !errors.Is(err, vpw.ErrBus) {
				t.Fatalf("expected ErrBus, got %v", err)
			}
			var be *vpw.BusError
			if !errors.As(err, &be) || be.Reason != c.reason || be.Byte != -1 {
				t.Fatalf("got %#v", err)
			}
		})
	}
}

// withSOF encodes payload with the start of frame stretched to sof ticks.
func withSOF(payload []byte, sof vpw.Ticks) []vpw.Pulse {
	p := vpw.DefaultTable.Encode(payload)
	p[0].Ticks = sof
	return p
}

func TestReceiveSOFBoundaries(t *testing.T) {
	want := j1850.MustFrame(0x5A)
	cases := []struct {
		sof    vpw.Ticks
		reason vpw.Reason
		ok     bool
	}{
		{122, vpw.ReasonSOFShort, false},
		{123, 0, true},
		{278, 0, true},
		{279, vpw.ReasonSOFLong, false},
	}
	for _, c := range cases {
		fr, err := receivePulses(t, withSOF(want.Bytes(), c.sof))
		if c.ok {
			if err != nil || !fr.Equal(want) {
				t.Fatalf("sof=%d: fr=%v err=%v", c.sof, fr, err)
			}
			continue
		}
		if r, ok := vpw.ReasonOf(err); !ok || r != c.reason {
			t.Fatalf("sof=%d: want %v, got fr=%v err=%v", c.sof, c.reason, fr, err)
		}
	}
}

// Past the long bit window, Receive accepts exactly the Active widths that
// ClassifyPulse calls SOF.
func TestReceiveSOFMatchesClassifyPulse(t *testing.T) {
	tb := vpw.DefaultTable
	for d := tb.Long.Max; d < tb.IFS.Min+20; d++ {
		_, err := receivePulses(t, withSOF([]byte{0x5A}, d))
		isSOF := tb.ClassifyPulse(vpw.Active, d) == vpw.SOF
		if (err == nil) != isSOF {
			t.Fatalf("width %d: class %v, receive err %v", d, tb.ClassifyPulse(vpw.Active, d), err)
		}
	}
}

func TestReceiveLongTimeoutDoesNotWrap(t *testing.T) {
	// 2^32 µs + 300 µs would wrap to 300 ticks without saturation.
	huge := time.Duration(1<<32+300) * time.Microsecond
	want := j1850.MustFrame(0x5A)

	b, x := newNode(t)
	b.Schedule(2000, vpw.DefaultTable.Encode(want.Bytes()))
	fr, err := x.Receive(context.Background(), huge)
	if err != nil || !fr.Equal(want) {
		t.Fatalf("receive timeout: fr=%v err=%v", fr, err)
	}

	b, x = newNode(t, vpw.WithIdleTimeout(huge))
	b.Force(0, 5000)
	b.Schedule(6000, vpw.DefaultTable.Encode(want.Bytes()))
	fr, err = x.Receive(context.Background(), 10*time.Millisecond)
	if err != nil || !fr.Equal(want) {
		t.Fatalf("idle timeout: fr=%v err=%v", fr, err)
	}
}

func TestReceiveGlitch(t *testing.T) {
	_, err := receivePulses(t, []vpw.Pulse{
		{Level: vpw.Active, Ticks: 200},
		{Level: vpw.Passive, Ticks: 64},
		{Level: vpw.Active, Ticks: 20},
		{Level: vpw.Passive, Ticks: 400},
	})
	var be *vpw.BusError
	if !errors.As(err, &be) || be.Reason != vpw.ReasonGlitch {
		t.Fatalf("expected glitch, got %v", err)
	}
	if be.Byte != 0 || be.Bit != 1 || be.Ticks != 20 {
		t.Fatalf("location: %+v", be)
	}
}

func TestReceivePartialByteDropped(t *testing.T) {
	full := vpw.DefaultTable.Encode([]byte{0xA5, 0x3C})
	// SOF, first byte, three bits of the second byte, then silence.
	pulses := append([]vpw.Pulse(nil), full[:1+8+3]...)
	if pulses[len(pulses)-1].Level == vpw.Active {
		pulses = append(pulses, vpw.Pulse{Level: vpw.Passive, Ticks: 400})
	}
	fr, err := receivePulses(t, pulses)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if fr.Len != 1 || fr.Data[0] != 0xA5 {
		t.Fatalf("got %v", fr)
	}
}

func TestReceiveStrictRejectsGapPulse(t *testing.T) {
	tb := vpw.DefaultTable
	tb.Short.Max = 80
	if err := tb.Validate(); err != nil {
		t.Fatalf("table: %v", err)
	}
	// 0x00 with the first symbol stretched into the gap between short and long.
	pulses := tb.Encode([]byte{0x00})
	pulses[1].Ticks = 90

	fr, err := receivePulses(t, pulses, vpw.WithTable(tb))
	if err != nil || fr.Len != 1 || fr.Data[0] != 0x00 {
		t.Fatalf("lenient: fr=%v err=%v", fr, err)
	}
	_, err = receivePulses(t, pulses, vpw.WithTable(tb), vpw.WithStrict(true))
	var be *vpw.BusError
	if !errors.As(err, &be) || be.Reason != vpw.ReasonInvalidPulse || be.Ticks != 90 {
		t.Fatalf("strict: %v", err)
	}
}

func TestReceiveSkipIdleSync(t *testing.T) {
	b, x := newNode(t, vpw.WithSkipIdleSync(true))
	b.Schedule(10, vpw.DefaultTable.Encode([]byte{0x42}))
	fr, err := x.Receive(context.Background(), 0)
	if err != nil || fr.Len != 1 || fr.Data[0] != 0x42 {
		t.Fatalf("fr=%v err=%v", fr, err)
	}
}

func TestTransmitDataError(t *testing.T) {
	for _, n := range []int{0, 13} {
		b, x := newNode(t)
		err := x.Transmit(context.Background(), make([]byte, n))
		if !errors.Is(err, vpw.ErrData) {
			t.Fatalf("%d bytes: expected ErrData, got %v", n, err)
		}
		if b.Drives() != 0 || b.Now() != 0 {
			t.Fatalf("%d bytes: bus touched (drives=%d now=%d)", n, b.Drives(), b.Now())
		}
	}
}

func TestTransmitCollision(t *testing.T) {
	b, x := newNode(t)
	idle := uint64(vpw.DefaultTable.IFS.Min)
	sofEnd := idle + uint64(vpw.DefaultTable.TxSOF)
	b.Force(sofEnd+10, sofEnd+20)
	err := x.Transmit(context.Background(), []byte{0x28, 0x1B})
	var be *vpw.BusError
	if !errors.As(err, &be) || be.Reason != vpw.ReasonCollision {
		t.Fatalf("expected collision, got %v", err)
	}
	if be.Byte != 0 || be.Bit != 0 || be.Ticks != 10 {
		t.Fatalf("location: %+v", be)
	}
	// SOF and the first data symbol only.
	if b.Drives() != 2 {
		t.Fatalf("drives=%d after collision", b.Drives())
	}
	if b.Driven() != vpw.Passive {
		t.Fatalf("bus left %v", b.Driven())
	}
}

func TestTransmitActiveOverlapIsNotCollision(t *testing.T) {
	b, x := newNode(t)
	idle := uint64(vpw.DefaultTable.IFS.Min)
	b.Force(idle+20, idle+50) // inside our own SOF
	if err := x.Transmit(context.Background(), []byte{0x01}); err != nil {
		t.Fatalf("transmit: %v", err)
	}
}

func TestTransmitBusBusy(t *testing.T) {
	b, x := newNode(t, vpw.WithIdleTimeout(time.Millisecond))
	b.Force(0, 1<<40)
	err := x.Transmit(context.Background(), []byte{0x01})
	if r, ok := vpw.ReasonOf(err); !ok || r != vpw.ReasonBusBusy {
		t.Fatalf("expected bus busy, got %v", err)
	}
	if vpw.Kind(err) != vpw.KindBus {
		t.Fatalf("kind=%s", vpw.Kind(err))
	}
	if b.Drives() != 0 {
		t.Fatalf("drove a busy bus")
	}
}

func TestWaitIdleAfterActivity(t *testing.T) {
	b, x := newNode(t)
	b.Force(0, 1000)
	if err := x.WaitIdle(context.Background()); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
	if now := b.Now(); now < 1000+uint64(vpw.DefaultTable.IFS.Min)-1 {
		t.Fatalf("idle reported at %d", now)
	}
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, x := newNode(t)
	if _, err := x.Receive(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("receive: %v", err)
	}
	if vpw.Kind(context.Canceled) != vpw.KindCanceled {
		t.Fatalf("kind")
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	b, x := newNode(t)
	b.At(600, cancel)
	err := x.Transmit(ctx, []byte{0x00, 0x00})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("transmit: %v", err)
	}
	if b.Driven() != vpw.Passive {
		t.Fatalf("bus left %v after cancel", b.Driven())
	}
}

func FuzzReceive(f *testing.F) {
	f.Add([]byte{100, 32, 64, 32, 64, 32, 140})
	f.Add([]byte{10, 10, 10})
	f.Add([]byte{200})
	f.Fuzz(func(t *testing.T, widths []byte) {
		if len(widths) > 256 {
			widths = widths[:256]
		}
		pulses := make([]vpw.Pulse, 0, len(widths))
		lvl := vpw.Active
		for _, w := range widths {
			pulses = append(pulses, vpw.Pulse{Level: lvl, Ticks: vpw.Ticks(w) * 2})
			if lvl == vpw.Active {
				lvl = vpw.Passive
			} else {
				lvl = vpw.Active
			}
		}
		fr, err := receivePulses(t, pulses)
		if err != nil && !errors.Is(err, vpw.ErrBus) && !errors.Is(err, vpw.ErrNoData) {
			t.Fatalf("unexpected error %v", err)
		}
		if fr.Len > j1850.MaxFrameLen {
			t.Fatalf("len=%d", fr.Len)
		}
	})
}

func BenchmarkLoopback(b *testing.B) {
	payload := []byte{0x28, 0x1B, 0x10, 0x02, 0x0A, 0xF0, 0x68}
	pulses := vpw.DefaultTable.Encode(payload)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bus := simbus.New(simbus.WithRecord(false))
		x := vpw.New(bus, bus.NewTimer())
		bus.Schedule(rxStart, pulses)
		if _, err := x.Receive(context.Background(), 0); err != nil {
			b.Fatal(err)
		}
	}
}

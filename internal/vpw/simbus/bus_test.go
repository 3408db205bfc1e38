package simbus

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// levels samples the wire once per tick over [0, n).
func levels(b *Bus, n int) []vpw.Level {
	tm := b.NewTimer()
	out := make([]vpw.Level, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.ReadLevel())
		tm.Elapsed()
	}
	return out
}

func TestScheduleAndForce(t *testing.T) {
	b := New()
	end := b.Schedule(2, []vpw.Pulse{{Level: vpw.Active, Ticks: 2}, {Level: vpw.Passive, Ticks: 1}, {Level: vpw.Active, Ticks: 1}})
	if end != 6 {
		t.Fatalf("end=%d want 6", end)
	}
	b.Force(8, 9)
	A, P := vpw.Active, vpw.Passive
	want := []vpw.Level{P, P, A, A, P, A, P, P, A, P}
	if got := levels(b, 10); !reflect.DeepEqual(got, want) {
		t.Fatalf("levels %v want %v", got, want)
	}
	if b.Pending() {
		t.Fatal("nothing should be pending at the end")
	}
}

func TestDriveWinsAndRecords(t *testing.T) {
	b := New()
	tm := b.NewTimer()
	b.Drive(vpw.Passive) // no change, not recorded
	b.Drive(vpw.Active)
	for i := 0; i < 3; i++ {
		tm.Elapsed()
	}
	if b.ReadLevel() != vpw.Active {
		t.Fatal("local drive must win")
	}
	b.Drive(vpw.Passive)
	tm.Elapsed()
	tm.Elapsed()
	if b.Drives() != 3 {
		t.Fatalf("drives=%d want 3", b.Drives())
	}
	want := []vpw.Pulse{{Level: vpw.Active, Ticks: 3}, {Level: vpw.Passive, Ticks: 2}}
	if got := b.Waveform(); !reflect.DeepEqual(got, want) {
		t.Fatalf("waveform %v want %v", got, want)
	}
}

func TestWithoutRecord(t *testing.T) {
	b := New(WithRecord(false), WithStep(5))
	tm := b.NewTimer()
	b.Drive(vpw.Active)
	if got := tm.Elapsed(); got != 5 {
		t.Fatalf("step: elapsed %d want 5", got)
	}
	if len(b.Trace()) != 0 || len(b.Waveform()) != 0 {
		t.Fatal("trace recorded with recording off")
	}
}

func TestAppendKeepsGap(t *testing.T) {
	b := New()
	first := b.Append([]vpw.Pulse{{Level: vpw.Active, Ticks: 10}}, 5, 100)
	if first != 15 {
		t.Fatalf("first end=%d want 15", first)
	}
	second := b.Append([]vpw.Pulse{{Level: vpw.Active, Ticks: 10}}, 5, 100)
	if second != 125 {
		t.Fatalf("second end=%d want 125", second)
	}
	if !b.Pending() {
		t.Fatal("expected pending activity")
	}
}

func TestAtRunsOnce(t *testing.T) {
	b := New()
	n := 0
	b.At(3, func() { n++ })
	tm := b.NewTimer()
	for i := 0; i < 10; i++ {
		tm.Elapsed()
	}
	if n != 1 {
		t.Fatalf("callback ran %d times", n)
	}
}

func TestEmulatorFeedsReceiver(t *testing.T) {
	b := New(WithRecord(false))
	x := vpw.New(b, b.NewTimer(), vpw.WithSkipIdleSync(true))
	want := j1850.MustFrame(0x68, 0x6A, 0xF1, 0x01, 0x00, 0x17)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	emu := &Emulator{Bus: b, Table: vpw.DefaultTable, Interval: time.Millisecond, Next: func() j1850.Frame { return want }}
	go func() { _ = emu.Run(ctx) }()
	for ctx.Err() == nil {
		f, err := x.Receive(ctx, 10*time.Millisecond)
		if err != nil {
			continue
		}
		if !f.Equal(want) {
			t.Fatalf("got %s want %s", f, want)
		}
		return
	}
	t.Fatal("no frame received")
}

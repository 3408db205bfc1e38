// Package simbus is an in-memory VPW bus with a virtual clock, for tests
// and for running the gateway without hardware.
//
// Time only moves when a Timer is read: every Elapsed call advances the
// shared clock by one step. Polling loops therefore see a deterministic
// sequence of samples, one per tick.
package simbus

import (
	"sort"
	"sync"

	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// Edge is a recorded change of the level driven by the local node.
type Edge struct {
	At    uint64
	Level vpw.Level
}

type span struct{ from, to uint64 }

type callback struct {
	at uint64
	fn func()
}

// Bus is a single wire shared by the local node and scripted remote nodes.
// The wire is Active when anyone drives it Active.
type Bus struct {
	mu     sync.Mutex
	now    uint64
	step   uint64
	driven vpw.Level
	remote []span
	tail   uint64
	record bool
	trace  []Edge
	drives int
	due    []callback
}

// Option configures a Bus.
type Option func(*Bus)

// WithStep sets how many ticks one Elapsed call advances the clock.
func WithStep(n uint64) Option {
	return func(b *Bus) {
		if n > 0 {
			b.step = n
		}
	}
}

// WithRecord toggles recording of local Drive transitions. It is on by
// default; long-running simulations turn it off.
func WithRecord(on bool) Option { return func(b *Bus) { b.record = on } }

// New returns an idle bus at time zero.
func New(opts ...Option) *Bus {
	b := &Bus{step: 1, record: true}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Now returns the current virtual time.
func (b *Bus) Now() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// ReadLevel implements vpw.BusLine.
func (b *Bus) ReadLevel() vpw.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levelLocked()
}

func (b *Bus) levelLocked() vpw.Level {
	if b.driven == vpw.Active {
		return vpw.Active
	}
	active := false
	keep := b.remote[:0]
	for _, s := range b.remote {
		if s.to <= b.now {
			continue
		}
		keep = append(keep, s)
		if s.from <= b.now {
			active = true
		}
	}
	b.remote = keep
	if active {
		return vpw.Active
	}
	return vpw.Passive
}

// Drive implements vpw.BusLine.
func (b *Bus) Drive(l vpw.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drives++
	if l == b.driven {
		return
	}
	b.driven = l
	if b.record {
		b.trace = append(b.trace, Edge{At: b.now, Level: l})
	}
}

// Driven returns the level the local node currently drives.
func (b *Bus) Driven() vpw.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.driven
}

// Drives counts Drive calls, including ones that did not change the level.
func (b *Bus) Drives() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drives
}

// Trace returns a copy of the recorded transitions.
func (b *Bus) Trace() []Edge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Edge(nil), b.trace...)
}

// Waveform turns the recorded transitions into pulses. The last pulse
// lasts until the current time.
func (b *Bus) Waveform() []vpw.Pulse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]vpw.Pulse, 0, len(b.trace))
	for i, e := range b.trace {
		end := b.now
		if i+1 < len(b.trace) {
			end = b.trace[i+1].At
		}
		out = append(out, vpw.Pulse{Level: e.Level, Ticks: vpw.Ticks(end - e.At)})
	}
	return out
}

// Force makes a remote node hold the wire Active over [from, to).
func (b *Bus) Force(from, to uint64) {
	if to <= from {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(span{from, to})
}

// Schedule plays pulses as a remote transmitter starting at time at.
// Passive pulses only move the cursor. It returns the end time.
func (b *Bus) Schedule(at uint64, pulses []vpw.Pulse) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheduleLocked(at, pulses)
}

// Append schedules pulses after everything already scheduled, keeping at
// least gap ticks after the previous train and lead ticks after now.
func (b *Bus) Append(pulses []vpw.Pulse, lead, gap uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	at := b.now + lead
	if b.tail > 0 && b.tail+gap > at {
		at = b.tail + gap
	}
	return b.scheduleLocked(at, pulses)
}

// Pending reports whether scheduled remote activity has not finished yet.
func (b *Bus) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail > b.now
}

func (b *Bus) scheduleLocked(at uint64, pulses []vpw.Pulse) uint64 {
	t := at
	for _, p := range pulses {
		end := t + uint64(p.Ticks)
		if p.Level == vpw.Active {
			b.addLocked(span{t, end})
		}
		t = end
	}
	if t > b.tail {
		b.tail = t
	}
	return t
}

func (b *Bus) addLocked(s span) {
	i := sort.Search(len(b.remote), func(i int) bool { return b.remote[i].from > s.from })
	b.remote = append(b.remote, span{})
	copy(b.remote[i+1:], b.remote[i:])
	b.remote[i] = s
}

// At runs fn once the clock reaches t. fn runs on the goroutine that
// advanced the clock, without the bus lock held.
func (b *Bus) At(t uint64, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.due = append(b.due, callback{t, fn})
}

func (b *Bus) advance() uint64 {
	b.mu.Lock()
	b.now += b.step
	now := b.now
	var run []func()
	if len(b.due) > 0 {
		keep := b.due[:0]
		for _, c := range b.due {
			if c.at <= now {
				run = append(run, c.fn)
				continue
			}
			keep = append(keep, c)
		}
		b.due = keep
	}
	b.mu.Unlock()
	for _, fn := range run {
		fn()
	}
	return now
}

// NewTimer returns a Timer on the bus clock.
func (b *Bus) NewTimer() *Timer {
	return &Timer{bus: b, start: b.Now()}
}

// Timer implements vpw.Timer on the virtual clock.
type Timer struct {
	bus   *Bus
	start uint64
}

// Restart implements vpw.Timer.
func (t *Timer) Restart() { t.start = t.bus.Now() }

// Elapsed advances the clock by one step and returns the time since the
// last Restart.
func (t *Timer) Elapsed() vpw.Ticks {
	return vpw.Ticks(t.bus.advance() - t.start)
}

var (
	_ vpw.BusLine = (*Bus)(nil)
	_ vpw.Timer   = (*Timer)(nil)
)

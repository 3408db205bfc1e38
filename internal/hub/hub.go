// Package hub fans received bus frames out to TCP subscribers.
package hub

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
)

// DefaultBuffer is the queue length of a subscriber when Hub.Buffer is unset.
const DefaultBuffer = 512

// Policy decides what happens to a subscriber whose queue is full.
type Policy uint8

const (
	// PolicyDrop skips the frame for that subscriber only.
	PolicyDrop Policy = iota
	// PolicyKick closes the subscriber.
	PolicyKick
)

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyKick:
		return "kick"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy accepts "drop" or "kick".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "drop":
		return PolicyDrop, nil
	case "kick":
		return PolicyKick, nil
	}
	return PolicyDrop, fmt.Errorf("hub: unknown policy %q", s)
}

// Client is one subscriber. Frames arrive on Out until Done is closed.
type Client struct {
	Out     chan j1850.Frame
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewClient returns an unregistered subscriber with a queue of buf frames.
func NewClient(buf int) *Client {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	return &Client{Out: make(chan j1850.Frame, buf), done: make(chan struct{})}
}

// Done is closed once the client is closed or kicked.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() { c.once.Do(func() { close(c.done) }) }

// Dropped counts frames skipped because the queue was full.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

func (c *Client) offer(fr j1850.Frame) bool {
	select {
	case c.Out <- fr:
		return true
	default:
		return false
	}
}

// Hub holds the subscribers. Set Buffer and Policy before the first
// Subscribe.
type Hub struct {
	Buffer int
	Policy Policy

	mu   sync.RWMutex
	subs map[*Client]struct{}
}

func New() *Hub { return &Hub{subs: make(map[*Client]struct{})} }

// Subscribe registers a new client sized by Buffer.
func (h *Hub) Subscribe() *Client {
	c := NewClient(h.Buffer)
	h.mu.Lock()
	h.subs[c] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetHubClients(n)
	if n == 1 {
		logging.L().Info("clients_first_connected")
	}
	return c
}

// Unsubscribe removes and closes c. Calling it twice is harmless.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	_, ok := h.subs[c]
	delete(h.subs, c)
	n := len(h.subs)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(n)
	if ok && n == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.subs))
	for c := range h.subs {
		out = append(out, c)
	}
	return out
}

// Broadcast queues fr for every subscriber without blocking. It is the
// bus worker's sink.
func (h *Hub) Broadcast(fr j1850.Frame) {
	subs := h.snapshot()
	metrics.SetBroadcastFanout(len(subs))
	if len(subs) == 0 {
		return
	}
	deepest, total := 0, 0
	for _, c := range subs {
		d := len(c.Out)
		total += d
		if d > deepest {
			deepest = d
		}
	}
	metrics.SetQueueDepth(deepest, total/len(subs))
	for _, c := range subs {
		if c.offer(fr) {
			continue
		}
		if h.Policy == PolicyKick {
			metrics.IncHubKick()
			c.Close()
			continue
		}
		c.dropped.Add(1)
		metrics.IncHubDrop()
	}
}

package server

import (
	"sync"
	"sync/atomic"

	"github.com/loykin/vmpilot/internal/provision"
)

// Hub fans output lines out to event stream subscribers. A subscriber that
// falls behind loses lines rather than stalling the script readers.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan provision.OutputLine]struct{}
	buf     int
	dropped atomic.Uint64
}

func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 256
	}
	return &Hub{subs: make(map[chan provision.OutputLine]struct{}), buf: buf}
}

// OnLine implements provision.Observer.
func (h *Hub) OnLine(l provision.OutputLine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- l:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan provision.OutputLine, func()) {
	ch := make(chan provision.OutputLine, h.buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts lines not delivered to slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

package output

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// HeaderFeed fans frame headers out to subscribers. Slow subscribers miss
// headers rather than stall the stream.
type HeaderFeed struct {
	mu      sync.RWMutex
	running bool
	subs    map[chan protocol.FrameHeader]struct{}
}

// NewHeaderFeed creates an idle feed
func NewHeaderFeed() *HeaderFeed {
	return &HeaderFeed{
		subs: make(map[chan protocol.FrameHeader]struct{}),
	}
}

func (h *HeaderFeed) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("header feed already running")
	}
	h.running = true
	return nil
}

// Stop closes every subscription
func (h *HeaderFeed) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan protocol.FrameHeader]struct{})
	return nil
}

func (h *HeaderFeed) Name() string {
	return "Header feed"
}

func (h *HeaderFeed) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// WriteFrame publishes the frame header; the pixels are not read
func (h *HeaderFeed) WriteFrame(f stream.Frame) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return fmt.Errorf("header feed not running")
	}
	for ch := range h.subs {
		select {
		case ch <- f.Header:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving future headers. It is closed by
// Unsubscribe or Stop.
func (h *HeaderFeed) Subscribe() chan protocol.FrameHeader {
	ch := make(chan protocol.FrameHeader, 8)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *HeaderFeed) Unsubscribe(ch chan protocol.FrameHeader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of active subscriptions
func (h *HeaderFeed) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

package sink

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Hub fans records out to live subscribers such as websocket clients. A
// subscriber that falls behind loses records rather than stalling publish.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Record
	next    int
	last    *Record
	dropped int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Record)}
}

func (h *Hub) Name() string { return "hub" }

func (h *Hub) Publish(_ context.Context, r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &r
	for _, ch := range h.subs {
		select {
		case ch <- r:
		default:
			h.dropped++
		}
	}
	return nil
}

// Subscribe returns a channel of future records and a cancel func that
// closes it.
func (h *Hub) Subscribe() (<-chan Record, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Record, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Last returns the most recent record, if any.
func (h *Hub) Last() (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Record{}, false
	}
	return *h.last, true
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts records skipped for slow subscribers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

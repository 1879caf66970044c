// Package events fans ledger events out to live subscribers.
package events

import (
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/contract"
)

// Topic names the stream of one event kind on one ledger.
func Topic(ledger contract.Address, name string) string {
	return string(ledger) + "/" + name
}

// Hub delivers published events to every subscriber of their topic. A slow
// subscriber misses events instead of blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan contract.Event]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[chan contract.Event]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it must be called exactly once.
func (h *Hub) Subscribe(topic string) (<-chan contract.Event, func()) {
	ch := make(chan contract.Event, h.buffer)
	h.mu.Lock()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[chan contract.Event]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subscribers, ok := h.subs[topic]; ok {
			delete(subscribers, ch)
			if len(subscribers) == 0 {
				delete(h.subs, topic)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Publish sends e to the subscribers of Topic(ledger, e.Name).
func (h *Hub) Publish(ledger contract.Address, e contract.Event) {
	topic := Topic(ledger, e.Name)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

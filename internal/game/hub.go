// internal/game/hub.go
package game

import (
	"sync"

	"hipsterbar/internal/metrics"
)

const subscriberBuffer = 16

// Hub fans events out to the live subscribers of each bar.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Event]struct{}
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]map[chan Event]struct{}),
		metrics: m,
	}
}

// Subscribe registers a new client of the bar with the given code.
func (h *Hub) Subscribe(code string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.clients[code] == nil {
		h.clients[code] = make(map[chan Event]struct{})
	}
	h.clients[code][ch] = struct{}{}
	h.metrics.SubscriberAdded()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(code string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clients[code]
	if !ok {
		return
	}
	if _, exists := subs[ch]; !exists {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.clients, code)
	}
	h.metrics.SubscriberRemoved()
}

// Publish delivers ev to every subscriber of its bar. Slow clients miss
// events rather than blocking the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients[ev.BarCode] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of clients listening to a bar.
func (h *Hub) Subscribers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[code])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for code, subs := range h.clients {
		for ch := range subs {
			close(ch)
			h.metrics.SubscriberRemoved()
		}
		delete(h.clients, code)
	}
}

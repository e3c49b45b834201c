// Package watch fans out "something changed" signals per topic. Stores use it
// to wake message subscriptions; the signal carries no payload, so subscribers
// re-read the data they care about.
package watch

import (
	"context"
	"sync"
)

// Bus is a topic-keyed change signal.
type Bus interface {
	// Subscribe returns a channel that receives a value after every Publish on
	// topic. Signals coalesce: a slow reader sees at most one pending value.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error)
	Publish(ctx context.Context, topic string) error
	Close() error
}

// Hub is the in-process Bus.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan struct{}]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan struct{}]struct{})}
}

func (h *Hub) Subscribe(_ context.Context, topic string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.topics[topic]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.topics, topic)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

func (h *Hub) Publish(_ context.Context, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribers reports how many subscribers a topic has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for topic, subs := range h.topics {
		for ch := range subs {
			close(ch)
		}
		delete(h.topics, topic)
	}
	return nil
}

package events

import (
	"sync"
	"time"
)

// Event is what subscribers of a tenant's stream receive.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenantId"`
	TS       time.Time      `json:"ts"`
	Data     map[string]any `json:"data"`
}

// Broker fans events out to subscribers of a topic. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Memory is the in-process Broker.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

package marketdata

import (
	"sync"
)

const (
	EventQuotes    = "quotes"
	EventOrder     = "order"
	EventAccount   = "account"
	EventValuation = "valuation"
	EventMargin    = "margin_call"
)

type Event struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id,omitempty"`
	Data      any    `json:"data"`
}

// Bus fans events out to websocket clients. Slow subscribers drop events;
// anything that must not be lost goes through the Debouncer instead.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

package marketdata

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects changed symbols for a short window and then hands the
// whole set to every subscriber. Each subscriber keeps its own dirty set, so
// a slow consumer sees a coalesced batch instead of losing symbols.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	subs    []*Subscription
	closed  bool
}

type Subscription struct {
	mu     sync.Mutex
	dirty  map[string]struct{}
	signal chan struct{}
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, pending: map[string]struct{}{}}
}

func (d *Debouncer) Subscribe() *Subscription {
	s := &Subscription{dirty: map[string]struct{}{}, signal: make(chan struct{}, 1)}
	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
	return s
}

func (d *Debouncer) Mark(symbols ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, s := range symbols {
		d.pending[s] = struct{}{}
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = map[string]struct{}{}
	d.timer = nil
	subs := append([]*Subscription(nil), d.subs...)
	d.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	for _, s := range subs {
		s.add(batch)
	}
}

// Close stops the pending timer and drops unflushed symbols.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (s *Subscription) add(batch map[string]struct{}) {
	s.mu.Lock()
	for sym := range batch {
		s.dirty[sym] = struct{}{}
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// C fires when there are dirty symbols to Drain.
func (s *Subscription) C() <-chan struct{} {
	return s.signal
}

// Drain returns and clears the dirty symbols, sorted.
func (s *Subscription) Drain() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.dirty))
	for sym := range s.dirty {
		out = append(out, sym)
	}
	s.dirty = map[string]struct{}{}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

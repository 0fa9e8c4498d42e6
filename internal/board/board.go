// Package board keeps the presentation-side view: surfaced signals plus read-only copies of price and markets.
package board

import (
	"sync"

	"polybot-go/internal/market"
	"polybot-go/internal/signal"
)

// DefaultRecent is how many recent signals a view carries.
const DefaultRecent = 5

// Sink receives every surfaced signal in order.
type Sink interface {
	Publish(sig signal.Signal)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(signal.Signal)

func (f SinkFunc) Publish(sig signal.Signal) { f(sig) }

// View is a read-only copy of the board state.
type View struct {
	Price   signal.CanonicalPrice
	Sources map[string]bool
	Markets []market.Snapshot
	Signals []signal.Signal
	Paused  bool
}

// Board stores accepted non-neutral signals most-recent-last and fans them out to sinks.
type Board struct {
	mu      sync.Mutex
	signals []signal.Signal
	price   signal.CanonicalPrice
	sources map[string]bool
	markets []market.Snapshot
	paused  bool
	sinks   []Sink
}

// New creates an empty board optionally pre-sizing storage.
func New(capacity int, sinks ...Sink) *Board {
	if capacity < 0 {
		capacity = 0
	}
	return &Board{signals: make([]signal.Signal, 0, capacity), sinks: sinks}
}

// AddSink registers an additional sink.
func (b *Board) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Record appends sig and publishes it. Neutral signals are ignored.
func (b *Board) Record(sig signal.Signal) bool {
	if !sig.Actionable() {
		return false
	}
	sig.Reasoning = append([]string(nil), sig.Reasoning...)
	b.mu.Lock()
	b.signals = append(b.signals, sig)
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.Unlock()
	for _, s := range sinks {
		s.Publish(sig)
	}
	return true
}

// Snapshot returns a copy of every recorded signal.
func (b *Board) Snapshot() []signal.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]signal.Signal, len(b.signals))
	copy(out, b.signals)
	return out
}

// Recent returns at most the last n signals, oldest first.
func (b *Board) Recent(n int) []signal.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(b.signals) - n
	if start < 0 {
		start = 0
	}
	out := make([]signal.Signal, len(b.signals)-start)
	copy(out, b.signals[start:])
	return out
}

// Len reports the number of recorded signals.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}

// Update replaces the displayed state with copies of the inputs.
func (b *Board) Update(price signal.CanonicalPrice, sources map[string]bool, markets []*market.Snapshot, paused bool) {
	copies := make([]market.Snapshot, len(markets))
	for i, m := range markets {
		copies[i] = *m
	}
	flags := make(map[string]bool, len(sources))
	for k, v := range sources {
		flags[k] = v
	}
	b.mu.Lock()
	b.price = price
	b.sources = flags
	b.markets = copies
	b.paused = paused
	b.mu.Unlock()
}

// View returns a copy of the current display state with the most recent signals.
func (b *Board) View() View {
	recent := b.Recent(DefaultRecent)
	b.mu.Lock()
	defer b.mu.Unlock()
	sources := make(map[string]bool, len(b.sources))
	for k, v := range b.sources {
		sources[k] = v
	}
	markets := make([]market.Snapshot, len(b.markets))
	copy(markets, b.markets)
	return View{Price: b.price, Sources: sources, Markets: markets, Signals: recent, Paused: b.paused}
}

package exchange

import (
	"context"
	"time"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/signal"
)

// StubSource streams a slow deterministic walk around a base price.
type StubSource struct {
	base     float64
	step     float64
	interval time.Duration
}

var _ aggregator.StreamSource = (*StubSource)(nil)

// NewStub returns a stub stream starting at base and moving by step every interval.
func NewStub(base, step float64, interval time.Duration) *StubSource {
	if base <= 0 {
		base = 60000
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &StubSource{base: base, step: step, interval: interval}
}

func (s *StubSource) Name() string { return SourceStub }

func (s *StubSource) Connect(ctx context.Context) (aggregator.Stream, error) {
	return &stubStream{px: s.base, step: s.step, ticker: time.NewTicker(s.interval)}, nil
}

type stubStream struct {
	px     float64
	step   float64
	n      int
	ticker *time.Ticker
}

// Recv oscillates upward for ten ticks then back down so the price stays bounded.
func (s *stubStream) Recv(ctx context.Context) (signal.PriceUpdate, error) {
	select {
	case <-ctx.Done():
		return signal.PriceUpdate{}, ctx.Err()
	case <-s.ticker.C:
	}
	if (s.n/10)%2 == 0 {
		s.px += s.step
	} else {
		s.px -= s.step
	}
	s.n++
	return signal.PriceUpdate{Price: s.px, Source: SourceStub}, nil
}

func (s *stubStream) Close() error {
	s.ticker.Stop()
	return nil
}

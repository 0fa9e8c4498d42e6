// Package strategy scores market windows against the canonical spot price into trading signals.
package strategy

import (
	"time"

	"github.com/google/uuid"

	"polybot-go/internal/market"
	"polybot-go/internal/signal"
)

// MomentumSource yields percent momentum over a trailing window.
type MomentumSource interface {
	Momentum(window time.Duration) float64
}

// Params expresses tunable knobs of the engine.
type Params struct {
	ArbitrageThreshold float64
	MinConfidence      int
	MaxPositionSize    float64
	MomentumWindow     time.Duration
}

// DefaultParams mirrors the shipped configuration defaults.
func DefaultParams() Params {
	return Params{
		ArbitrageThreshold: 0.05,
		MinConfidence:      50,
		MaxPositionSize:    500,
		MomentumWindow:     time.Minute,
	}
}

// Engine is a pure scorer; it performs no I/O and keeps no state between calls.
type Engine struct {
	params Params
	now    func() time.Time
	newID  func() string
}

// Option configures Engine construction parameters.
type Option func(*Engine)

// WithClock injects the time source used for time-remaining reads and signal stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine; non-positive thresholds and sizes fall back to DefaultParams.
func NewEngine(p Params, opts ...Option) *Engine {
	def := DefaultParams()
	if p.ArbitrageThreshold <= 0 {
		p.ArbitrageThreshold = def.ArbitrageThreshold
	}
	if p.MaxPositionSize <= 0 {
		p.MaxPositionSize = def.MaxPositionSize
	}
	if p.MomentumWindow <= 0 {
		p.MomentumWindow = def.MomentumWindow
	}
	if p.MinConfidence < 0 {
		p.MinConfidence = def.MinConfidence
	}
	e := &Engine{params: p, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the identifier for logging.
func (e *Engine) Name() string { return "SpotPolyFusion" }

// Params returns the effective parameters.
func (e *Engine) Params() Params { return e.params }

// Evaluate scores one snapshot. Reasoning entries follow contribution order.
func (e *Engine) Evaluate(snap *market.Snapshot, price signal.CanonicalPrice, history MomentumSource) signal.Signal {
	now := e.now()
	momentum := history.Momentum(e.params.MomentumWindow)
	imbalance := snap.Imbalance()
	remaining := snap.TimeRemaining(now)
	fraction := snap.TimeFraction(now)

	var card scorecard
	card.momentum(momentum, e.params.MomentumWindow)
	card.orderBook(imbalance)
	card.arbitrage(momentum, snap.PriceYes, e.params.ArbitrageThreshold)
	card.timeDecay(fraction, remaining)

	confidence := card.confidence()
	direction, kind := signal.Neutral, signal.Hold
	if confidence >= e.params.MinConfidence {
		direction, kind = decide(momentum, imbalance, snap)
	}

	return signal.Signal{
		ID:           e.newID(),
		Market:       snap.Slug,
		Direction:    direction,
		Confidence:   confidence,
		Type:         kind,
		Reasoning:    card.reasons,
		PositionSize: positionSize(e.params.MaxPositionSize, confidence, fraction),
		CreatedAt:    now,
	}
}

// decide applies the directional rules in priority order; momentum pre-empts the order book.
func decide(momentum, imbalance float64, snap *market.Snapshot) (signal.Direction, signal.Type) {
	switch {
	case momentum > 0.05 && snap.PriceYes < 0.7:
		return signal.Up, signal.Momentum
	case momentum < -0.05 && snap.PriceNo < 0.7:
		return signal.Down, signal.Momentum
	case imbalance > 0.2:
		return signal.Up, signal.OrderBook
	case imbalance < -0.2:
		return signal.Down, signal.OrderBook
	default:
		return signal.Neutral, signal.Hold
	}
}

// positionSize shrinks toward resolution but never below half the confidence-scaled amount.
func positionSize(maxSize float64, confidence int, fraction float64) float64 {
	timeFactor := fraction
	if timeFactor < 0.5 {
		timeFactor = 0.5
	}
	return maxSize * float64(confidence) / 100 * timeFactor
}

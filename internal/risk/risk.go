// Package risk gates surfaced signals against exposure limits and suggests stop-loss levels.
package risk

import (
	"math"
	"sync"

	"polybot-go/internal/market"
	"polybot-go/internal/signal"
)

const (
	// MaxShareOfExposure caps a single position relative to max exposure.
	MaxShareOfExposure = 0.2
	// MinConfidence is the floor below which signals are rejected regardless of engine settings.
	MinConfidence = 50

	ReasonOK            = "OK"
	ReasonPositionSize  = "position size exceeds 20% of max exposure"
	ReasonLowConfidence = "confidence below minimum threshold"
)

// Limits encodes the configured guard rails.
type Limits struct {
	MaxExposure  float64
	RiskPerTrade float64
}

// Allow reports whether a notional fits within the per-position cap. The bound is inclusive.
func (l Limits) Allow(notional float64) bool {
	return notional <= l.MaxExposure*MaxShareOfExposure
}

// Manager applies Limits. It is stateless per call; the exposure accumulator is tracked but not consulted.
type Manager struct {
	limits Limits

	mu       sync.Mutex
	exposure float64
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// CheckLimits approves or rejects sig with a human readable reason.
func (m *Manager) CheckLimits(sig signal.Signal) (bool, string) {
	if !m.limits.Allow(sig.PositionSize) {
		return false, ReasonPositionSize
	}
	if sig.Confidence < MinConfidence {
		return false, ReasonLowConfidence
	}
	return true, ReasonOK
}

// StopLoss suggests an exit level 10% below the mid of the chosen outcome, floored at 0.01.
func (m *Manager) StopLoss(sig signal.Signal, snap *market.Snapshot) *float64 {
	var mid float64
	switch sig.Direction {
	case signal.Up:
		mid = snap.PriceYes
	case signal.Down:
		mid = snap.PriceNo
	default:
		return nil
	}
	level := math.Max(0.01, mid*0.9)
	return &level
}

// Annotate returns a copy of sig carrying the suggested stop loss.
func (m *Manager) Annotate(sig signal.Signal, snap *market.Snapshot) signal.Signal {
	sig.StopLoss = m.StopLoss(sig, snap)
	return sig
}

// AddExposure records notional against the running accumulator.
func (m *Manager) AddExposure(notional float64) {
	m.mu.Lock()
	m.exposure += notional
	m.mu.Unlock()
}

// Exposure reports the running accumulator.
func (m *Manager) Exposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposure
}

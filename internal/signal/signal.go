// Package signal standardizes payloads shared between price ingestion, strategy, risk and presentation layers.
package signal

import "time"

// PriceUpdate is a raw candidate price emitted by a feed source.
type PriceUpdate struct {
	Price        float64
	Change24h    float64
	ChangePct24h float64
	High24h      float64
	Low24h       float64
	Volume24h    float64
	Source       string
}

// CanonicalPrice is the aggregator's current belief about the spot price.
// A zero Price means no update has been accepted yet.
type CanonicalPrice struct {
	PriceUpdate
	LastUpdate time.Time
}

// Direction is the recommended side of a binary up/down market.
type Direction string

const (
	Up      Direction = "UP"
	Down    Direction = "DOWN"
	Neutral Direction = "NEUTRAL"
)

// Type names the rule that produced a directional call.
type Type string

const (
	Arbitrage Type = "ARBITRAGE"
	Momentum  Type = "MOMENTUM"
	OrderBook Type = "ORDERBOOK"
	Hold      Type = "HOLD"
)

// Signal expresses a scored trading recommendation for one market window.
type Signal struct {
	ID           string
	Market       string
	Direction    Direction
	Confidence   int // 0-100
	Type         Type
	Reasoning    []string // contribution order
	PositionSize float64  // currency units
	StopLoss     *float64
	TakeProfit   *float64
	CreatedAt    time.Time
}

// Actionable reports whether the signal recommends taking a side.
func (s Signal) Actionable() bool {
	return s.Direction == Up || s.Direction == Down
}

// Package market models the per-window state of a Polymarket BTC up/down market.
package market

import (
	"fmt"
	"time"
)

// Interval is a supported trading window granularity.
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
)

// ParseIntervals expands an interval selection ("5m", "15m" or "all").
func ParseIntervals(sel string) ([]Interval, error) {
	switch sel {
	case string(Interval5m):
		return []Interval{Interval5m}, nil
	case string(Interval15m):
		return []Interval{Interval15m}, nil
	case "all", "":
		return []Interval{Interval5m, Interval15m}, nil
	default:
		return nil, fmt.Errorf("unknown interval %q", sel)
	}
}

// Duration returns the window length; zero for unknown intervals.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	default:
		return 0
	}
}

// WindowStart aligns now down to the start of its window in unix seconds.
func (iv Interval) WindowStart(now time.Time) time.Time {
	length := int64(iv.Duration() / time.Second)
	if length == 0 {
		return now
	}
	sec := now.Unix()
	return time.Unix(sec-sec%length, 0).UTC()
}

// Slug is the Gamma market slug for the window starting at start.
func (iv Interval) Slug(start time.Time) string {
	return fmt.Sprintf("btc-updown-%s-%d", iv, start.Unix())
}

// BookTop is the best bid and ask for one outcome token. A missing level leaves the snapshot field unchanged.
type BookTop struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
}

// Snapshot is the latest known state of one trading window. It is owned by the bot loop.
type Snapshot struct {
	Slug        string
	Interval    Interval
	WindowStart time.Time
	WindowEnd   time.Time
	TokenYes    string
	TokenNo     string

	BidYes float64
	AskYes float64
	BidNo  float64
	AskNo  float64

	// PriceYes and PriceNo are mids, recomputed only when both sides are known and positive.
	PriceYes float64
	PriceNo  float64

	Volume     float64
	Liquidity  float64
	LastUpdate time.Time
}

// NewSnapshot builds an empty snapshot for the window of iv that contains now.
func NewSnapshot(iv Interval, now time.Time, tokenYes, tokenNo string) *Snapshot {
	start := iv.WindowStart(now)
	return &Snapshot{
		Slug:        iv.Slug(start),
		Interval:    iv,
		WindowStart: start,
		WindowEnd:   start.Add(iv.Duration()),
		TokenYes:    tokenYes,
		TokenNo:     tokenNo,
	}
}

// ApplyBook folds fresh top-of-book levels into the snapshot. Applying the same input twice is a no-op.
func (s *Snapshot) ApplyBook(yes, no BookTop, now time.Time) {
	if yes.HasBid {
		s.BidYes = yes.Bid
	}
	if yes.HasAsk {
		s.AskYes = yes.Ask
	}
	if s.BidYes > 0 && s.AskYes > 0 {
		s.PriceYes = (s.BidYes + s.AskYes) / 2
	}
	if no.HasBid {
		s.BidNo = no.Bid
	}
	if no.HasAsk {
		s.AskNo = no.Ask
	}
	if s.BidNo > 0 && s.AskNo > 0 {
		s.PriceNo = (s.BidNo + s.AskNo) / 2
	}
	s.LastUpdate = now
}

// Imbalance is the buying pressure on the yes outcome, bid_yes - (1 - ask_yes); 0 when either side is unknown.
func (s *Snapshot) Imbalance() float64 {
	if s.BidYes == 0 || s.AskYes == 0 {
		return 0
	}
	return s.BidYes - (1 - s.AskYes)
}

// TimeRemaining is negative once the window has ended.
func (s *Snapshot) TimeRemaining(now time.Time) time.Duration {
	return s.WindowEnd.Sub(now)
}

// TimeFraction is the remaining share of the nominal interval length.
func (s *Snapshot) TimeFraction(now time.Time) float64 {
	d := s.Interval.Duration()
	if d == 0 {
		return 0
	}
	return s.TimeRemaining(now).Seconds() / d.Seconds()
}

// Spread of the yes outcome; 0 when either side is unknown.
func (s *Snapshot) Spread() float64 {
	if s.BidYes == 0 || s.AskYes == 0 {
		return 0
	}
	return s.AskYes - s.BidYes
}

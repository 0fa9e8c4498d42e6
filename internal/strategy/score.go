package strategy

import (
	"fmt"
	"math"
	"time"
)

const (
	minMomentum     = 0.1
	minImbalance    = 0.1
	arbitrageScore  = 30
	timeDecayScore  = 10
	timeDecayCutoff = 0.1
)

type scorecard struct {
	scores  []float64
	reasons []string
}

func (c *scorecard) add(score float64, reason string) {
	c.scores = append(c.scores, score)
	c.reasons = append(c.reasons, reason)
}

func (c *scorecard) confidence() int {
	var sum float64
	for _, s := range c.scores {
		sum += s
	}
	return int(math.Min(sum, 100))
}

func momentumScore(m float64) float64 {
	return math.Min(math.Abs(m)*10, 40)
}

func imbalanceScore(i float64) float64 {
	return math.Min(math.Abs(i)*30, 25)
}

// fairYes maps spot momentum onto a rough yes-probability.
func fairYes(m float64) float64 {
	return clamp(0.5+m*5, 0.01, 0.99)
}

func (c *scorecard) momentum(m float64, window time.Duration) {
	if math.Abs(m) > minMomentum {
		c.add(momentumScore(m), fmt.Sprintf("Momentum: %+.3f%% (%s)", m, shortDuration(window)))
	}
}

func (c *scorecard) orderBook(i float64) {
	if math.Abs(i) <= minImbalance {
		return
	}
	bias := "bullish"
	if i < 0 {
		bias = "bearish"
	}
	c.add(imbalanceScore(i), fmt.Sprintf("OB Imbalance: %+.2f (%s)", i, bias))
}

func (c *scorecard) arbitrage(m, yes, threshold float64) {
	if math.Abs(m) <= minMomentum {
		return
	}
	expected := fairYes(m)
	if math.Abs(yes-expected) > threshold {
		c.add(arbitrageScore, fmt.Sprintf("Arb: Expected %.2f, Actual %.2f", expected, yes))
	}
}

func (c *scorecard) timeDecay(fraction float64, remaining time.Duration) {
	if fraction < timeDecayCutoff {
		c.add(timeDecayScore, fmt.Sprintf("Resolution imminent (%.0fs)", remaining.Seconds()))
	}
}

func shortDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d/time.Second))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package aggregator

import "time"

// DefaultHistorySize bounds the number of retained samples.
const DefaultHistorySize = 100

// PricePoint is one accepted spot price and the instant it was admitted.
type PricePoint struct {
	Ts    time.Time
	Price float64
}

// History is a capacity-bounded, time-ordered buffer of accepted prices.
// It is not safe for concurrent use; the Aggregator guards its own copy and hands out clones.
type History struct {
	capacity int
	points   []PricePoint
	now      func() time.Time
}

// NewHistory returns an empty history holding at most capacity samples.
func NewHistory(capacity int) *History {
	return newHistory(capacity, time.Now)
}

func newHistory(capacity int, now func() time.Time) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		capacity: capacity,
		points:   make([]PricePoint, 0, capacity),
		now:      now,
	}
}

// Append records price at the current instant, evicting the oldest samples beyond capacity.
func (h *History) Append(price float64) {
	h.points = append(h.points, PricePoint{Ts: h.now(), Price: price})
	if excess := len(h.points) - h.capacity; excess > 0 {
		h.points = append(h.points[:0], h.points[excess:]...)
	}
}

// Momentum returns the percent change between the earliest and latest samples inside the trailing window.
// Fewer than two samples, or a zero anchor, yield 0.
func (h *History) Momentum(window time.Duration) float64 {
	recent := h.window(window)
	if len(recent) < 2 {
		return 0
	}
	first, last := recent[0].Price, recent[len(recent)-1].Price
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

// Average returns the mean price inside the trailing window, 0 when empty.
func (h *History) Average(window time.Duration) float64 {
	recent := h.window(window)
	if len(recent) == 0 {
		return 0
	}
	var sum float64
	for _, p := range recent {
		sum += p.Price
	}
	return sum / float64(len(recent))
}

// Len reports the number of stored samples.
func (h *History) Len() int { return len(h.points) }

// Capacity reports the configured bound.
func (h *History) Capacity() int { return h.capacity }

// Clone returns an independent copy sharing the same clock.
func (h *History) Clone() *History {
	c := newHistory(h.capacity, h.now)
	c.points = append(c.points, h.points...)
	return c
}

func (h *History) window(window time.Duration) []PricePoint {
	cutoff := h.now().Add(-window)
	for i, p := range h.points {
		if !p.Ts.Before(cutoff) {
			return h.points[i:]
		}
	}
	return nil
}

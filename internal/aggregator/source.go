package aggregator

import (
	"context"
	"time"

	"polybot-go/internal/signal"
)

// Stream is one live connection to a streaming price source.
type Stream interface {
	// Recv blocks until the next candidate arrives or the connection fails.
	Recv(ctx context.Context) (signal.PriceUpdate, error)
	Close() error
}

// StreamSource dials persistent connections; each failure triggers exponential backoff.
type StreamSource interface {
	Name() string
	Connect(ctx context.Context) (Stream, error)
}

// PollSource performs one bounded request per call.
type PollSource interface {
	Name() string
	Poll(ctx context.Context) (signal.PriceUpdate, error)
}

// Backoff bounds the reconnect delay of a stream source.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoff starts at one second and doubles up to thirty.
var DefaultBackoff = Backoff{Min: time.Second, Max: 30 * time.Second}

func (b Backoff) next(d time.Duration) time.Duration {
	d *= 2
	if d > b.Max {
		return b.Max
	}
	return d
}

// PollPolicy controls the cadence of a poll source.
// A non-zero Quiet marks a fallback source: it stays idle while any source delivered within Quiet,
// re-checking every Recheck.
type PollPolicy struct {
	Interval time.Duration
	Quiet    time.Duration
	Recheck  time.Duration
}

const (
	defaultPollInterval = 5 * time.Second
	defaultRecheck      = 10 * time.Second
)

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = defaultPollInterval
	}
	if p.Quiet > 0 && p.Recheck <= 0 {
		p.Recheck = defaultRecheck
	}
	return p
}

type task func(ctx context.Context)

// sleep waits for d or cancellation, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

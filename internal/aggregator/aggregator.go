// Package aggregator reconciles independently supervised spot price sources into one canonical price.
package aggregator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"polybot-go/internal/metrics"
	"polybot-go/internal/signal"
)

// DefaultAnomalyBand is the largest fractional jump accepted between consecutive prices.
const DefaultAnomalyBand = 0.10

// ErrAlreadyRunning is returned by Start when the aggregator was started twice.
var ErrAlreadyRunning = errors.New("aggregator already running")

// Aggregator owns the canonical price and its history. Sources never touch that state directly:
// they publish candidates into a single admission channel drained sequentially.
type Aggregator struct {
	log  zerolog.Logger
	band float64
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) bool

	mu      sync.RWMutex
	price   signal.CanonicalPrice
	history *History
	active  map[string]bool

	subsMu sync.Mutex
	subs   []chan signal.CanonicalPrice

	updates chan signal.PriceUpdate
	tasks   []task

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures Aggregator construction parameters.
type Option func(*Aggregator)

// WithHistorySize overrides the history capacity.
func WithHistorySize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.history = newHistory(n, a.now)
		}
	}
}

// WithAnomalyBand overrides the 10% anomaly band.
func WithAnomalyBand(band float64) Option {
	return func(a *Aggregator) {
		if band > 0 {
			a.band = band
		}
	}
}

// WithClock injects the time source used for stamps, history and fallback gating.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
			a.history = newHistory(a.history.Capacity(), now)
		}
	}
}

// New constructs an aggregator with no sources registered.
func New(log zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		log:     log,
		band:    DefaultAnomalyBand,
		now:     time.Now,
		wait:    sleep,
		active:  make(map[string]bool),
		updates: make(chan signal.PriceUpdate, 64),
	}
	a.history = newHistory(DefaultHistorySize, a.now)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// UpdatePrice applies the admission rule and reports whether the candidate replaced the canonical price.
func (a *Aggregator) UpdatePrice(candidate signal.PriceUpdate) bool {
	if candidate.Price <= 0 {
		metrics.PriceUpdatesTotal.WithLabelValues(candidate.Source, "rejected_nonpositive").Inc()
		return false
	}

	a.mu.Lock()
	current := a.price.Price
	if current > 0 && math.Abs(candidate.Price-current)/current > a.band {
		a.mu.Unlock()
		metrics.PriceUpdatesTotal.WithLabelValues(candidate.Source, "rejected_anomaly").Inc()
		a.log.Debug().Str("source", candidate.Source).Float64("price", candidate.Price).Float64("current", current).Msg("anomalous price rejected")
		return false
	}
	a.price = signal.CanonicalPrice{PriceUpdate: candidate, LastUpdate: a.now()}
	a.history.Append(candidate.Price)
	accepted := a.price
	a.mu.Unlock()

	metrics.PriceUpdatesTotal.WithLabelValues(candidate.Source, "accepted").Inc()
	metrics.CanonicalPrice.Set(accepted.Price)
	a.notify(accepted)
	return true
}

// Price returns a copy of the canonical price.
func (a *Aggregator) Price() signal.CanonicalPrice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.price
}

// History returns a point-in-time copy of the price history.
func (a *Aggregator) History() *History {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Clone()
}

// Sources returns a copy of the per-source activity flags.
func (a *Aggregator) Sources() map[string]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]bool, len(a.active))
	for k, v := range a.active {
		out[k] = v
	}
	return out
}

// Subscribe returns a channel receiving every accepted canonical price.
// Delivery is non-blocking; a full channel misses updates.
func (a *Aggregator) Subscribe(buffer int) <-chan signal.CanonicalPrice {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan signal.CanonicalPrice, buffer)
	a.subsMu.Lock()
	a.subs = append(a.subs, ch)
	a.subsMu.Unlock()
	return ch
}

func (a *Aggregator) notify(p signal.CanonicalPrice) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (a *Aggregator) setActive(source string, active bool) {
	a.mu.Lock()
	prev, seen := a.active[source]
	a.active[source] = active
	a.mu.Unlock()
	metrics.SetSourceActive(source, active)
	if !seen || prev != active {
		a.log.Info().Str("source", source).Bool("active", active).Msg("source status changed")
	}
}

// updatedWithin reports whether any source delivered an accepted price within d.
func (a *Aggregator) updatedWithin(d time.Duration) bool {
	a.mu.RLock()
	last := a.price.LastUpdate
	a.mu.RUnlock()
	return !last.IsZero() && a.now().Sub(last) < d
}

func (a *Aggregator) publish(ctx context.Context, u signal.PriceUpdate) bool {
	select {
	case a.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// AddStream registers a streaming source supervised with exponential backoff.
func (a *Aggregator) AddStream(src StreamSource, backoff Backoff) {
	if backoff.Min <= 0 {
		backoff.Min = DefaultBackoff.Min
	}
	if backoff.Max < backoff.Min {
		backoff.Max = DefaultBackoff.Max
	}
	a.tasks = append(a.tasks, func(ctx context.Context) { a.runStream(ctx, src, backoff) })
}

// AddPoller registers a polling source retried on a fixed interval.
func (a *Aggregator) AddPoller(src PollSource, policy PollPolicy) {
	policy = policy.normalized()
	a.tasks = append(a.tasks, func(ctx context.Context) { a.runPoll(ctx, src, policy) })
}

// Run supervises every registered source until ctx is canceled, then waits for all of them to exit.
func (a *Aggregator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		a.admit(ctx)
		return nil
	})
	for _, t := range a.tasks {
		t := t
		g.Go(func() error {
			t(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Start launches Run in the background.
func (a *Aggregator) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.done != nil {
		return ErrAlreadyRunning
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = a.Run(ctx)
	}(a.done)
	return nil
}

// Stop cancels every source task and blocks until they have all returned.
func (a *Aggregator) Stop() {
	a.runMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *Aggregator) admit(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-a.updates:
			a.UpdatePrice(u)
		}
	}
}

func (a *Aggregator) runStream(ctx context.Context, src StreamSource, backoff Backoff) {
	name := src.Name()
	delay := backoff.Min
	for ctx.Err() == nil {
		stream, err := src.Connect(ctx)
		if err == nil {
			a.setActive(name, true)
			delay = backoff.Min
			err = a.consume(ctx, stream)
			_ = stream.Close()
		}
		if ctx.Err() != nil {
			return
		}
		a.setActive(name, false)
		a.log.Warn().Err(err).Str("source", name).Dur("retry_in", delay).Msg("stream source disconnected, retrying")
		if !a.wait(ctx, delay) {
			return
		}
		delay = backoff.next(delay)
	}
}

func (a *Aggregator) consume(ctx context.Context, stream Stream) error {
	for {
		u, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if !a.publish(ctx, u) {
			return ctx.Err()
		}
	}
}

func (a *Aggregator) runPoll(ctx context.Context, src PollSource, policy PollPolicy) {
	name := src.Name()
	for ctx.Err() == nil {
		if policy.Quiet > 0 && a.updatedWithin(policy.Quiet) {
			if !a.wait(ctx, policy.Recheck) {
				return
			}
			continue
		}
		u, err := src.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.setActive(name, false)
			a.log.Warn().Err(err).Str("source", name).Msg("poll source failed")
		} else if a.publish(ctx, u) {
			a.setActive(name, true)
		}
		if !a.wait(ctx, policy.Interval) {
			return
		}
	}
}

// Package bot drives market discovery and the periodic snapshot → signal → risk → board cycle.
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/board"
	"polybot-go/internal/market"
	"polybot-go/internal/metrics"
	"polybot-go/internal/polymarket"
	"polybot-go/internal/risk"
	"polybot-go/internal/signal"
	"polybot-go/internal/strategy"
)

// ErrNoMarkets is returned by Discover when no trading window could be found.
var ErrNoMarkets = errors.New("no markets found")

// DefaultTickInterval is the orchestration cadence.
const DefaultTickInterval = 2 * time.Second

// Discoverer resolves the outcome tokens of a trading window.
type Discoverer interface {
	FindMarket(ctx context.Context, iv market.Interval, start time.Time) (polymarket.Market, error)
}

// BookSource fetches the best levels of one outcome token.
type BookSource interface {
	BookTop(ctx context.Context, tokenID string) (market.BookTop, error)
}

// PriceSource exposes the aggregator's read-only views.
type PriceSource interface {
	Price() signal.CanonicalPrice
	History() *aggregator.History
	Sources() map[string]bool
}

// Deps groups the collaborators of a Bot.
type Deps struct {
	Discovery Discoverer
	Books     BookSource
	Prices    PriceSource
	Engine    *strategy.Engine
	Risk      *risk.Manager
	Board     *board.Board
}

// Bot owns the tracked snapshots; they are only mutated inside Tick.
type Bot struct {
	log       zerolog.Logger
	deps      Deps
	intervals []market.Interval
	every     time.Duration
	now       func() time.Time
	observer  func(board.View)

	paused  atomic.Bool
	markets []*market.Snapshot
}

// Option configures Bot construction parameters.
type Option func(*Bot)

// WithTickInterval overrides the orchestration cadence.
func WithTickInterval(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.every = d
		}
	}
}

// WithClock injects the time source used for windows and book stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

// WithObserver registers a callback receiving the board view after every tick.
func WithObserver(fn func(board.View)) Option {
	return func(b *Bot) { b.observer = fn }
}

// New builds a bot tracking intervals.
func New(log zerolog.Logger, deps Deps, intervals []market.Interval, opts ...Option) *Bot {
	b := &Bot{
		log:       log,
		deps:      deps,
		intervals: intervals,
		every:     DefaultTickInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Discover looks up the current window of every configured interval. Windows that cannot be
// resolved are logged and skipped; ErrNoMarkets is returned only when none were found.
func (b *Bot) Discover(ctx context.Context) error {
	now := b.now()
	b.markets = b.markets[:0]
	for _, iv := range b.intervals {
		snap, err := b.lookup(ctx, iv, now)
		if err != nil {
			continue
		}
		b.markets = append(b.markets, snap)
	}
	if len(b.markets) == 0 {
		return ErrNoMarkets
	}
	return nil
}

func (b *Bot) lookup(ctx context.Context, iv market.Interval, now time.Time) (*market.Snapshot, error) {
	start := iv.WindowStart(now)
	slug := iv.Slug(start)
	b.log.Info().Str("market", slug).Msg("fetching market")

	m, err := b.deps.Discovery.FindMarket(ctx, iv, start)
	if err != nil {
		switch {
		case errors.Is(err, polymarket.ErrMissingTokens):
			b.log.Warn().Str("market", slug).Msg("market missing token IDs")
		case errors.Is(err, polymarket.ErrMarketNotFound):
			b.log.Warn().Str("market", slug).Msg("market not found")
		default:
			b.log.Warn().Err(err).Str("market", slug).Msg("market discovery failed")
		}
		return nil, err
	}

	snap := market.NewSnapshot(iv, now, m.TokenYes, m.TokenNo)
	snap.Volume = m.Volume
	snap.Liquidity = m.Liquidity
	b.log.Info().Str("market", slug).Str("interval", string(iv)).Msg("found market")
	return snap, nil
}

// rollover replaces every expired snapshot with the window that is open now.
// A failed lookup keeps the expired snapshot and is retried on the next tick.
func (b *Bot) rollover(ctx context.Context) {
	now := b.now()
	for i, snap := range b.markets {
		if snap.TimeRemaining(now) > 0 {
			continue
		}
		next, err := b.lookup(ctx, snap.Interval, now)
		if err != nil {
			continue
		}
		b.log.Info().Str("expired", snap.Slug).Str("market", next.Slug).Msg("rolled over to next window")
		b.markets[i] = next
	}
}

// Markets returns copies of the tracked snapshots.
func (b *Bot) Markets() []market.Snapshot {
	out := make([]market.Snapshot, len(b.markets))
	for i, m := range b.markets {
		out[i] = *m
	}
	return out
}

// Pause makes subsequent ticks skip the update cycle.
func (b *Bot) Pause() { b.paused.Store(true) }

// Resume re-enables the update cycle.
func (b *Bot) Resume() { b.paused.Store(false) }

// Paused reports the pause flag.
func (b *Bot) Paused() bool { return b.paused.Load() }

// Run ticks until ctx is canceled. Ticks run inline so they never overlap; missed ticks are dropped.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.every)
	defer ticker.Stop()

	b.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("bot loop stopped")
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick refreshes every snapshot and surfaces accepted non-neutral signals.
func (b *Bot) Tick(ctx context.Context) {
	paused := b.Paused()
	if !paused {
		b.rollover(ctx)
		for _, snap := range b.markets {
			if ctx.Err() != nil {
				return
			}
			b.refresh(ctx, snap)
			b.evaluate(snap)
		}
	}
	b.deps.Board.Update(b.deps.Prices.Price(), b.deps.Prices.Sources(), b.markets, paused)
	if b.observer != nil {
		b.observer(b.deps.Board.View())
	}
}

func (b *Bot) refresh(ctx context.Context, snap *market.Snapshot) {
	yes := b.fetchBook(ctx, snap, snap.TokenYes)
	no := b.fetchBook(ctx, snap, snap.TokenNo)
	snap.ApplyBook(yes, no, b.now())
}

// fetchBook degrades a failed fetch to an empty top so the snapshot keeps its previous levels.
func (b *Bot) fetchBook(ctx context.Context, snap *market.Snapshot, token string) market.BookTop {
	top, err := b.deps.Books.BookTop(ctx, token)
	if err != nil {
		if ctx.Err() == nil {
			metrics.BookFetchErrorsTotal.Inc()
			b.log.Warn().Err(err).Str("market", snap.Slug).Msg("order book fetch failed")
		}
		return market.BookTop{}
	}
	return top
}

func (b *Bot) evaluate(snap *market.Snapshot) {
	price := b.deps.Prices.Price()
	if price.Price <= 0 {
		return
	}
	sig := b.deps.Engine.Evaluate(snap, price, b.deps.Prices.History())
	sig = b.deps.Risk.Annotate(sig, snap)

	ok, reason := b.deps.Risk.CheckLimits(sig)
	if !sig.Actionable() {
		return
	}
	if !ok {
		metrics.RiskRejectionsTotal.WithLabelValues(reason).Inc()
		b.log.Debug().Str("market", snap.Slug).Str("reason", reason).Int("confidence", sig.Confidence).Msg("signal rejected")
		return
	}
	if b.deps.Board.Record(sig) {
		metrics.SignalsTotal.WithLabelValues(string(snap.Interval), string(sig.Direction), string(sig.Type)).Inc()
	}
}

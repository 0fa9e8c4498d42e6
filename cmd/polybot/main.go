package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/board"
	"polybot-go/internal/bot"
	"polybot-go/internal/config"
	"polybot-go/internal/exchange"
	"polybot-go/internal/market"
	"polybot-go/internal/metrics"
	"polybot-go/internal/notify"
	"polybot-go/internal/polymarket"
	"polybot-go/internal/risk"
	"polybot-go/internal/signal"
	"polybot-go/internal/strategy"
	"polybot-go/internal/util"
)

var (
	configPath = flag.String("config", "internal/config/config.yaml", "Path to configuration file")
	interval   = flag.String("interval", "", "Market interval to track: 5m, 15m or all (overrides config)")
	stub       = flag.Bool("stub", false, "Use the synthetic price stream instead of live venues")
)

func main() {
	flag.Parse()

	boot := util.NewLogger("info")
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if *interval != "" {
		cfg.Bot.Interval = *interval
	}
	if *stub {
		cfg.Feeds.Stub = true
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}

	log := util.NewLoggerWith(util.LogOptions{Level: cfg.App.LogLevel, Format: cfg.App.LogFormat, File: cfg.App.LogFile}).
		With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, os.Stdin); err != nil {
		if errors.Is(err, bot.ErrNoMarkets) {
			log.Error().Msg("no markets found, exiting")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, controls io.Reader) error {
	intervals, err := market.ParseIntervals(cfg.Bot.Interval)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := buildAggregator(cfg, log)
	pm := polymarket.NewClient(cfg.Polymarket.GammaAPIURL, cfg.Polymarket.CLOBAPIURL, cfg.Polymarket.Timeout)

	console := board.NewLogSink(log.With().Str("component", "board").Logger())
	signals := board.New(64, console)

	var tg *notify.Telegram
	if cfg.Telegram.Enabled {
		tg, err = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log.With().Str("component", "telegram").Logger())
		if err != nil {
			return err
		}
		signals.AddSink(tg)
		log.Info().Msg("telegram notifications enabled")
	}

	engine := strategy.NewEngine(strategy.Params{
		ArbitrageThreshold: cfg.Signal.ArbitrageThreshold,
		MinConfidence:      cfg.Signal.MinConfidence,
		MaxPositionSize:    cfg.Signal.MaxPositionSize,
		MomentumWindow:     cfg.Signal.MomentumWindow,
	})
	limits := risk.NewManager(risk.Limits{MaxExposure: cfg.Risk.MaxExposure, RiskPerTrade: cfg.Risk.RiskPerTrade})
	params := engine.Params()
	log.Info().
		Str("strategy", engine.Name()).
		Float64("arbitrage_threshold", params.ArbitrageThreshold).
		Int("min_confidence", params.MinConfidence).
		Dur("momentum_window", params.MomentumWindow).
		Float64("max_exposure", limits.Limits().MaxExposure).
		Msg("strategy ready")

	b := bot.New(log.With().Str("component", "bot").Logger(), bot.Deps{
		Discovery: pm,
		Books:     pm,
		Prices:    agg,
		Engine:    engine,
		Risk:      limits,
		Board:     signals,
	}, intervals,
		bot.WithTickInterval(cfg.Bot.UpdateInterval),
		bot.WithObserver(func(v board.View) { console.Render(v, time.Now()) }),
	)

	if err := b.Discover(ctx); err != nil {
		return err
	}
	for _, m := range b.Markets() {
		log.Info().Str("market", m.Slug).Time("window_end", m.WindowEnd).Msg("tracking market")
	}

	prices := agg.Subscribe(16)
	if err := agg.Start(ctx); err != nil {
		return err
	}
	defer agg.Stop()
	defer logSummary(log, signals)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logPrices(gctx, log, prices)
		return nil
	})
	g.Go(func() error { return b.Run(gctx) })
	if tg != nil {
		g.Go(func() error { return tg.Run(gctx) })
	}
	if controls != nil {
		go readControls(gctx, controls, b, cancel, log)
	}

	log.Info().Str("interval", cfg.Bot.Interval).Dur("update_interval", cfg.Bot.UpdateInterval).Msg("bot started")
	return g.Wait()
}

func buildAggregator(cfg *config.Config, log zerolog.Logger) *aggregator.Aggregator {
	agg := aggregator.New(log.With().Str("component", "aggregator").Logger(),
		aggregator.WithHistorySize(cfg.Feeds.HistorySize),
		aggregator.WithAnomalyBand(cfg.Feeds.AnomalyBand),
	)
	if cfg.Feeds.Stub {
		agg.AddStream(exchange.NewStub(60000, 15, 500*time.Millisecond), aggregator.DefaultBackoff)
		return agg
	}
	agg.AddStream(exchange.NewBinance(cfg.Feeds.BinanceWSURL, log), aggregator.DefaultBackoff)
	agg.AddPoller(exchange.NewCoinbase(cfg.Feeds.CoinbaseURL, cfg.Feeds.CoinbaseStatsURL, log),
		aggregator.PollPolicy{Interval: cfg.Feeds.CoinbaseInterval})
	agg.AddPoller(exchange.NewCoinGecko(cfg.Feeds.CoinGeckoURL),
		aggregator.PollPolicy{Interval: cfg.Feeds.CoinGeckoInterval, Quiet: cfg.Feeds.FallbackQuiet})
	return agg
}

func logPrices(ctx context.Context, log zerolog.Logger, prices <-chan signal.CanonicalPrice) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-prices:
			log.Debug().Str("source", p.Source).Float64("price", p.Price).Float64("change_pct_24h", p.ChangePct24h).Msg("canonical price")
		}
	}
}

func logSummary(log zerolog.Logger, signals *board.Board) {
	counts := map[signal.Direction]int{}
	for _, sig := range signals.Snapshot() {
		counts[sig.Direction]++
	}
	log.Info().Int("signals", signals.Len()).Int("up", counts[signal.Up]).Int("down", counts[signal.Down]).Msg("session summary")
}

// readControls maps console input to bot controls: p toggles pause, q quits.
func readControls(ctx context.Context, r io.Reader, b *bot.Bot, quit context.CancelFunc, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "p":
			if b.Paused() {
				b.Resume()
				log.Info().Msg("resumed")
			} else {
				b.Pause()
				log.Info().Msg("paused")
			}
		case "q":
			log.Info().Msg("quit requested")
			quit()
			return
		}
	}
}

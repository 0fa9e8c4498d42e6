package exchange

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/signal"
)

const (
	DefaultCoinbaseRatesURL = "https://api.coinbase.com/v2/exchange-rates?currency=BTC"
	DefaultCoinbaseStatsURL = "https://api.exchange.coinbase.com/products/BTC-USD/stats"
)

type coinbaseRatesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

type coinbaseStats struct {
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Last   string `json:"last"`
	Volume string `json:"volume"`
}

// CoinbaseSource polls the public exchange-rates endpoint and enriches it with 24h stats.
type CoinbaseSource struct {
	ratesURL string
	statsURL string
	opts     httpOptions
	log      zerolog.Logger
}

var _ aggregator.PollSource = (*CoinbaseSource)(nil)

// NewCoinbase constructs the primary poll source. An empty statsURL disables enrichment.
func NewCoinbase(ratesURL, statsURL string, log zerolog.Logger, opts ...Option) *CoinbaseSource {
	if ratesURL == "" {
		ratesURL = DefaultCoinbaseRatesURL
	}
	return &CoinbaseSource{ratesURL: ratesURL, statsURL: statsURL, opts: buildOptions(opts), log: log}
}

func (c *CoinbaseSource) Name() string { return SourceCoinbase }

// Poll fetches the spot USD rate. A stats failure is tolerated and leaves the 24h fields at zero.
func (c *CoinbaseSource) Poll(ctx context.Context) (signal.PriceUpdate, error) {
	var rates coinbaseRatesResponse
	if err := getJSON(ctx, c.opts.client, c.ratesURL, &rates); err != nil {
		return signal.PriceUpdate{}, fmt.Errorf("coinbase rates: %w", err)
	}
	raw, ok := rates.Data.Rates["USD"]
	if !ok {
		return signal.PriceUpdate{}, fmt.Errorf("coinbase rates: USD rate missing")
	}
	price, err := parseAmount(raw)
	if err != nil {
		return signal.PriceUpdate{}, fmt.Errorf("coinbase rates: %w", err)
	}

	u := signal.PriceUpdate{Price: price, Source: SourceCoinbase}
	if c.statsURL == "" {
		return u, nil
	}
	var stats coinbaseStats
	if err := getJSON(ctx, c.opts.client, c.statsURL, &stats); err != nil {
		c.log.Debug().Err(err).Msg("coinbase stats unavailable")
		return u, nil
	}
	applyCoinbaseStats(&u, stats)
	return u, nil
}

// applyCoinbaseStats fills the 24h fields; change is derived from the 24h open.
func applyCoinbaseStats(u *signal.PriceUpdate, stats coinbaseStats) {
	high, errH := parseAmount(stats.High)
	low, errL := parseAmount(stats.Low)
	vol, errV := parseAmount(stats.Volume)
	open, errO := parseAmount(stats.Open)
	if errH == nil {
		u.High24h = high
	}
	if errL == nil {
		u.Low24h = low
	}
	if errV == nil {
		u.Volume24h = vol
	}
	if errO == nil && open > 0 {
		u.Change24h = u.Price - open
		u.ChangePct24h = u.Change24h / open * 100
	}
}

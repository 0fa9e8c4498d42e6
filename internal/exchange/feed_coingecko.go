package exchange

import (
	"context"
	"fmt"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/signal"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

const coinGeckoQuery = "?ids=bitcoin&vs_currencies=usd&include_24hr_change=true&include_24hr_vol=true&include_24hr_high=true&include_24hr_low=true"

type coinGeckoQuote struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
	Vol24h    float64 `json:"usd_24h_vol"`
	High24h   float64 `json:"usd_24h_high"`
	Low24h    float64 `json:"usd_24h_low"`
}

// CoinGeckoSource polls the simple price endpoint. It is rate limited and normally runs as a fallback.
type CoinGeckoSource struct {
	url  string
	opts httpOptions
}

var _ aggregator.PollSource = (*CoinGeckoSource)(nil)

func NewCoinGecko(baseURL string, opts ...Option) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGeckoSource{url: baseURL + coinGeckoQuery, opts: buildOptions(opts)}
}

func (c *CoinGeckoSource) Name() string { return SourceCoinGecko }

func (c *CoinGeckoSource) Poll(ctx context.Context) (signal.PriceUpdate, error) {
	var payload map[string]coinGeckoQuote
	if err := getJSON(ctx, c.opts.client, c.url, &payload); err != nil {
		return signal.PriceUpdate{}, fmt.Errorf("coingecko: %w", err)
	}
	btc, ok := payload["bitcoin"]
	if !ok {
		return signal.PriceUpdate{}, fmt.Errorf("coingecko: bitcoin quote missing")
	}
	return signal.PriceUpdate{
		Price:        btc.USD,
		ChangePct24h: btc.Change24h,
		High24h:      btc.High24h,
		Low24h:       btc.Low24h,
		Volume24h:    btc.Vol24h,
		Source:       SourceCoinGecko,
	}, nil
}

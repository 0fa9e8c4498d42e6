// Package exchange hosts the BTC spot price sources consumed by the aggregator.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SourceBinance streams the 24h ticker from Binance public websockets.
	SourceBinance = "binance_ws"
	// SourceCoinbase polls Coinbase exchange rates plus 24h product stats.
	SourceCoinbase = "coinbase"
	// SourceCoinGecko polls the CoinGecko simple price endpoint; rate limited, used as fallback.
	SourceCoinGecko = "coingecko"
	// SourceStub emits a deterministic synthetic walk (useful for tests/offline work).
	SourceStub = "stub"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	userAgent          = "polybot-go/1.0"
)

// Option configures HTTP-backed sources.
type Option func(*httpOptions)

type httpOptions struct {
	client *http.Client
}

// WithHTTPClient overrides the client used for REST polling.
func WithHTTPClient(c *http.Client) Option {
	return func(o *httpOptions) {
		if c != nil {
			o.client = c
		}
	}
}

func buildOptions(opts []Option) httpOptions {
	o := httpOptions{client: &http.Client{Timeout: defaultHTTPTimeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseAmount reads a venue decimal string; empty means zero.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

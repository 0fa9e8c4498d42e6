// Package polymarket talks to the Gamma discovery API and the CLOB order-book API.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"polybot-go/internal/market"
)

// ErrMarketNotFound is returned when Gamma has no market for the requested slug.
var ErrMarketNotFound = errors.New("market not found")

// ErrMissingTokens is returned when a market has fewer than two outcome tokens.
var ErrMissingTokens = errors.New("missing token IDs")

// Client provides access to Polymarket API
type Client struct {
	gammaAPIURL string
	clobAPIURL  string
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
}

// Market is the discovery result for one trading window.
type Market struct {
	Slug      string
	TokenYes  string
	TokenNo   string
	Volume    float64
	Liquidity float64
}

type gammaMarket struct {
	ID           string      `json:"id"`
	Slug         string      `json:"slug"`
	Question     string      `json:"question"`
	ClobTokenIds tokenList   `json:"clobTokenIds"`
	VolumeNum    json.Number `json:"volumeNum"`
	LiquidityNum json.Number `json:"liquidityNum"`
}

// tokenList decodes clobTokenIds, which Gamma serves either as an array or as a JSON-encoded string.
type tokenList []string

func (t *tokenList) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*t = ids
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("clobTokenIds: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		*t = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("clobTokenIds: %w", err)
	}
	*t = ids
	return nil
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	Market  string      `json:"market"`
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

// Option tweaks client behaviour.
type Option func(*Client)

// WithRetries sets how many times a 5xx or transport failure is retried.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates a new Polymarket client
func NewClient(gammaAPIURL, clobAPIURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		gammaAPIURL: strings.TrimSuffix(gammaAPIURL, "/"),
		clobAPIURL:  strings.TrimSuffix(clobAPIURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  2,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindMarket looks up the up/down market for the window of iv starting at start.
func (c *Client) FindMarket(ctx context.Context, iv market.Interval, start time.Time) (Market, error) {
	slug := iv.Slug(start)
	u, err := url.Parse(c.gammaAPIURL + "/markets")
	if err != nil {
		return Market{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("slug", slug)
	u.RawQuery = q.Encode()

	var markets []gammaMarket
	if err := c.getJSON(ctx, u.String(), &markets); err != nil {
		return Market{}, fmt.Errorf("fetch market %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return Market{}, fmt.Errorf("%s: %w", slug, ErrMarketNotFound)
	}
	m := markets[0]
	if len(m.ClobTokenIds) < 2 {
		return Market{}, fmt.Errorf("%s: %w", slug, ErrMissingTokens)
	}
	vol, _ := m.VolumeNum.Float64()
	liq, _ := m.LiquidityNum.Float64()
	return Market{
		Slug:      slug,
		TokenYes:  m.ClobTokenIds[0],
		TokenNo:   m.ClobTokenIds[1],
		Volume:    vol,
		Liquidity: liq,
	}, nil
}

// BookTop fetches the order book for tokenID and reduces it to the best bid and ask.
func (c *Client) BookTop(ctx context.Context, tokenID string) (market.BookTop, error) {
	u, err := url.Parse(c.clobAPIURL + "/book")
	if err != nil {
		return market.BookTop{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("token_id", tokenID)
	u.RawQuery = q.Encode()

	var book bookResponse
	if err := c.getJSON(ctx, u.String(), &book); err != nil {
		return market.BookTop{}, fmt.Errorf("fetch book %s: %w", tokenID, err)
	}
	return topOfBook(book)
}

// topOfBook picks the highest bid and lowest ask regardless of the order levels are served in.
func topOfBook(book bookResponse) (market.BookTop, error) {
	var top market.BookTop
	var bestBid, bestAsk decimal.Decimal
	for _, lvl := range book.Bids {
		px, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return market.BookTop{}, fmt.Errorf("bid price %q: %w", lvl.Price, err)
		}
		if !top.HasBid || px.GreaterThan(bestBid) {
			bestBid, top.HasBid = px, true
		}
	}
	for _, lvl := range book.Asks {
		px, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return market.BookTop{}, fmt.Errorf("ask price %q: %w", lvl.Price, err)
		}
		if !top.HasAsk || px.LessThan(bestAsk) {
			bestAsk, top.HasAsk = px, true
		}
	}
	top.Bid = bestBid.InexactFloat64()
	top.Ask = bestAsk.InexactFloat64()
	return top, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	resp, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"polybot-go/internal/market"
)

func TestFindMarketDecodesStringTokenIDs(t *testing.T) {
	var gotSlug string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotSlug = r.URL.Query().Get("slug")
		_, _ = w.Write([]byte(`[{"id":"1","slug":"btc-updown-5m-1717243200","clobTokenIds":"[\"111\", \"222\"]","volumeNum":1520.5,"liquidityNum":"830"}]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL, time.Second)
	m, err := c.FindMarket(context.Background(), market.Interval5m, time.Unix(1717243200, 0))
	if err != nil {
		t.Fatalf("find market: %v", err)
	}
	if gotSlug != "btc-updown-5m-1717243200" {
		t.Fatalf("unexpected slug queried %q", gotSlug)
	}
	if m.TokenYes != "111" || m.TokenNo != "222" {
		t.Fatalf("unexpected tokens %+v", m)
	}
	if m.Volume != 1520.5 || m.Liquidity != 830 {
		t.Fatalf("unexpected volume/liquidity %+v", m)
	}
}

func TestFindMarketDecodesArrayTokenIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"slug":"x","clobTokenIds":["a","b"]}]`))
	}))
	defer server.Close()

	m, err := NewClient(server.URL, server.URL, time.Second).FindMarket(context.Background(), market.Interval15m, time.Unix(1717243200, 0))
	if err != nil {
		t.Fatalf("find market: %v", err)
	}
	if m.TokenYes != "a" || m.TokenNo != "b" || m.Slug != "btc-updown-15m-1717243200" {
		t.Fatalf("unexpected market %+v", m)
	}
}

func TestFindMarketNotFoundAndMissingTokens(t *testing.T) {
	body := `[]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()
	c := NewClient(server.URL, server.URL, time.Second)

	_, err := c.FindMarket(context.Background(), market.Interval5m, time.Unix(0, 0))
	if !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}

	body = `[{"clobTokenIds":"[\"only\"]"}]`
	_, err = c.FindMarket(context.Background(), market.Interval5m, time.Unix(0, 0))
	if !errors.Is(err, ErrMissingTokens) {
		t.Fatalf("expected ErrMissingTokens, got %v", err)
	}
}

func TestBookTopPicksBestLevels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token_id") != "111" {
			t.Errorf("unexpected token %q", r.URL.Query().Get("token_id"))
		}
		_, _ = w.Write([]byte(`{"asset_id":"111","bids":[{"price":"0.01","size":"10"},{"price":"0.48","size":"5"}],"asks":[{"price":"0.99","size":"3"},{"price":"0.52","size":"7"}]}`))
	}))
	defer server.Close()

	top, err := NewClient(server.URL, server.URL, time.Second).BookTop(context.Background(), "111")
	if err != nil {
		t.Fatalf("book top: %v", err)
	}
	if !top.HasBid || !top.HasAsk || top.Bid != 0.48 || top.Ask != 0.52 {
		t.Fatalf("unexpected top %+v", top)
	}
}

func TestBookTopEmptySide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids":[{"price":"0.40","size":"1"}],"asks":[]}`))
	}))
	defer server.Close()

	top, err := NewClient(server.URL, server.URL, time.Second).BookTop(context.Background(), "t")
	if err != nil {
		t.Fatalf("book top: %v", err)
	}
	if !top.HasBid || top.HasAsk || top.Ask != 0 {
		t.Fatalf("unexpected top %+v", top)
	}
}

func TestBookTopRejectsBadPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids":[{"price":"abc"}]}`))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, server.URL, time.Second).BookTop(context.Background(), "t"); err == nil {
		t.Fatalf("expected error for malformed price")
	}
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"bids":[],"asks":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL, time.Second, WithRetries(2, time.Millisecond))
	if _, err := c.BookTop(context.Background(), "t"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}

	c = NewClient(server.URL, server.URL, time.Second, WithRetries(0, time.Millisecond))
	calls.Store(0)
	if _, err := c.BookTop(context.Background(), "t"); err == nil {
		t.Fatalf("expected failure without retries")
	}
}

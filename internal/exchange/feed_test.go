package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestStubStreamEmitsBoundedWalk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src := NewStub(100, 1, 5*time.Millisecond)
	stream, err := src.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	var last float64
	for i := 0; i < 20; i++ {
		u, err := stream.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if u.Source != SourceStub {
			t.Fatalf("unexpected source %s", u.Source)
		}
		last = u.Price
	}
	if last != 100 {
		t.Fatalf("expected walk to return to base after 20 ticks, got %v", last)
	}

	cancel()
	if _, err := stream.Recv(ctx); err == nil {
		t.Fatalf("expected error after cancel")
	}
}

func TestParseBinanceTicker(t *testing.T) {
	raw := `{"e":"24hrTicker","E":1717243200000,"s":"BTCUSDT","p":"-250.50","P":"-0.41","c":"60123.45","h":"61000.00","l":"59500.10","v":"18234.5"}`
	u, err := parseBinanceTicker([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Price != 60123.45 || u.Change24h != -250.5 || u.ChangePct24h != -0.41 {
		t.Fatalf("unexpected update %+v", u)
	}
	if u.High24h != 61000 || u.Low24h != 59500.1 || u.Volume24h != 18234.5 || u.Source != SourceBinance {
		t.Fatalf("unexpected 24h fields %+v", u)
	}

	combined := `{"stream":"btcusdt@ticker","data":{"c":"100.5"}}`
	u, err = parseBinanceTicker([]byte(combined))
	if err != nil || u.Price != 100.5 {
		t.Fatalf("combined envelope: %+v %v", u, err)
	}

	for _, bad := range []string{`not json`, `{"e":"24hrTicker"}`, `{"c":"abc"}`} {
		if _, err := parseBinanceTicker([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestParseBinanceFullTickerFrame(t *testing.T) {
	raw := `{"e":"24hrTicker","E":1717243200000,"s":"BTCUSDT","p":"-250.50","P":"-0.41","w":"60200.00",` +
		`"x":"60373.95","c":"60123.45","Q":"0.01","b":"60123.44","B":"1.2","a":"60123.46","A":"0.8",` +
		`"o":"60373.95","h":"61000.00","l":"59500.10","v":"18234.5","q":"1097000000.0",` +
		`"O":1717156800000,"C":1717243200000,"F":3000000000,"L":3001000000,"n":1000001}`
	u, err := parseBinanceTicker([]byte(raw))
	if err != nil {
		t.Fatalf("parse full frame: %v", err)
	}
	if u.Price != 60123.45 || u.Low24h != 59500.1 || u.High24h != 61000 || u.Volume24h != 18234.5 {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestBinanceStreamSkipsMalformedFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"24hrTicker","c":"60000.00","h":"61000","l":"59000","v":"10","p":"1","P":"0.1","C":1717243200000,"L":42}`))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewBinance("ws"+strings.TrimPrefix(server.URL, "http"), zerolog.Nop())
	stream, err := src.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	u, err := stream.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if u.Price != 60000 || u.High24h != 61000 {
		t.Fatalf("unexpected update %+v", u)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Recv(ctx)
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("recv did not unblock after cancel")
	}
}

func TestCoinbasePollWithStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"currency":"BTC","rates":{"USD":"60500.25","EUR":"56000"}}}`))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"open":"60000","high":"61000","low":"59000","last":"60500","volume":"1234.5"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewCoinbase(server.URL+"/rates", server.URL+"/stats", zerolog.Nop())
	u, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if u.Price != 60500.25 || u.Source != SourceCoinbase {
		t.Fatalf("unexpected update %+v", u)
	}
	if u.High24h != 61000 || u.Low24h != 59000 || u.Volume24h != 1234.5 {
		t.Fatalf("stats not applied %+v", u)
	}
	if u.Change24h != 500.25 {
		t.Fatalf("expected change derived from open, got %v", u.Change24h)
	}
}

func TestCoinbaseToleratesStatsFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"rates":{"USD":"60000"}}}`))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := NewCoinbase(server.URL+"/rates", server.URL+"/stats", zerolog.Nop())
	u, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if u.Price != 60000 || u.High24h != 0 || u.ChangePct24h != 0 {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestCoinbaseRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewCoinbase(server.URL, "", zerolog.Nop())
	if _, err := src.Poll(context.Background()); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestCoinGeckoPoll(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60100.5,"usd_24h_change":1.25,"usd_24h_vol":32000000000,"usd_24h_high":61000,"usd_24h_low":59000}}`))
	}))
	defer server.Close()

	src := NewCoinGecko(server.URL)
	u, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !strings.Contains(query, "ids=bitcoin") {
		t.Fatalf("unexpected query %q", query)
	}
	if u.Price != 60100.5 || u.ChangePct24h != 1.25 || u.Change24h != 0 || u.Source != SourceCoinGecko {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestCoinGeckoMissingQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := NewCoinGecko(server.URL).Poll(context.Background()); err == nil {
		t.Fatalf("expected error for missing quote")
	}
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"polybot-go/internal/aggregator"
	"polybot-go/internal/signal"
)

// DefaultBinanceURL is the single-stream 24h ticker for BTCUSDT.
const DefaultBinanceURL = "wss://stream.binance.com:9443/ws/btcusdt@ticker"

const (
	binanceReadTimeout  = 30 * time.Second
	binancePingInterval = 20 * time.Second
)

type binanceEnvelope struct {
	Stream string         `json:"stream"`
	Data   *binanceTicker `json:"data"`
}

// binanceTicker declares both spellings of every key pair differing only in case;
// encoding/json otherwise folds the integer C, L and O onto the string c, l and o.
type binanceTicker struct {
	Event       string `json:"e"`
	Last        string `json:"c"`
	Change      string `json:"p"`
	ChangePct   string `json:"P"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Open        string `json:"o"`
	BaseVolume  string `json:"v"`
	EventTimeMs int64  `json:"E"`
	OpenTime    int64  `json:"O"`
	CloseTime   int64  `json:"C"`
	FirstID     int64  `json:"F"`
	LastID      int64  `json:"L"`
	Count       int64  `json:"n"`
}

// BinanceSource dials the Binance ticker websocket.
type BinanceSource struct {
	url    string
	log    zerolog.Logger
	dialer websocket.Dialer
}

var _ aggregator.StreamSource = (*BinanceSource)(nil)

// NewBinance constructs a stream source for url, falling back to DefaultBinanceURL.
func NewBinance(url string, log zerolog.Logger) *BinanceSource {
	if url == "" {
		url = DefaultBinanceURL
	}
	return &BinanceSource{
		url:    url,
		log:    log,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (b *BinanceSource) Name() string { return SourceBinance }

// Connect dials the websocket and starts the keepalive pinger. The connection is
// closed when ctx ends so a blocked Recv returns promptly.
func (b *BinanceSource) Connect(ctx context.Context) (aggregator.Stream, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial binance: %w", err)
	}
	b.log.Info().Str("source", SourceBinance).Str("url", b.url).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
	})

	s := &binanceStream{conn: conn, log: b.log, stop: make(chan struct{})}
	go s.keepalive(ctx)
	return s, nil
}

type binanceStream struct {
	conn *websocket.Conn
	log  zerolog.Logger
	stop chan struct{}
}

func (s *binanceStream) keepalive(ctx context.Context) {
	ticker := time.NewTicker(binancePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Warn().Err(err).Msg("binance ping failed")
				_ = s.conn.Close()
				return
			}
		case <-ctx.Done():
			_ = s.conn.Close()
			return
		case <-s.stop:
			return
		}
	}
}

// Recv returns the next well-formed ticker; malformed frames are logged and skipped.
func (s *binanceStream) Recv(ctx context.Context) (signal.PriceUpdate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return signal.PriceUpdate{}, err
		}
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return signal.PriceUpdate{}, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))

		update, err := parseBinanceTicker(message)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		return update, nil
	}
}

func (s *binanceStream) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	return s.conn.Close()
}

// parseBinanceTicker accepts both the raw /ws payload and the combined /stream envelope.
func parseBinanceTicker(message []byte) (signal.PriceUpdate, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return signal.PriceUpdate{}, err
	}
	ticker := env.Data
	if ticker == nil {
		ticker = &binanceTicker{}
		if err := json.Unmarshal(message, ticker); err != nil {
			return signal.PriceUpdate{}, err
		}
	}
	if ticker.Last == "" {
		return signal.PriceUpdate{}, fmt.Errorf("ticker without last price")
	}

	var u signal.PriceUpdate
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{ticker.Last, &u.Price},
		{ticker.Change, &u.Change24h},
		{ticker.ChangePct, &u.ChangePct24h},
		{ticker.High, &u.High24h},
		{ticker.Low, &u.Low24h},
		{ticker.BaseVolume, &u.Volume24h},
	} {
		v, err := parseAmount(f.raw)
		if err != nil {
			return signal.PriceUpdate{}, err
		}
		*f.dst = v
	}
	u.Source = SourceBinance
	return u, nil
}

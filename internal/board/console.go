package board

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polybot-go/internal/signal"
)

// ReasonsShown is how many reasoning entries a rendered signal carries.
const ReasonsShown = 2

// LogSink renders signals and board views as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(sig signal.Signal) {
	ev := s.log.Info().
		Str("at", sig.CreatedAt.Format("15:04:05")).
		Str("market", ShortMarket(sig.Market)).
		Str("direction", string(sig.Direction)).
		Str("type", string(sig.Type)).
		Int("confidence", sig.Confidence).
		Float64("size", sig.PositionSize).
		Str("reasoning", Reasons(sig.Reasoning, ReasonsShown))
	if sig.StopLoss != nil {
		ev = ev.Float64("stop_loss", *sig.StopLoss)
	}
	ev.Msg("signal")
}

// Render logs one status line for the price and one per market.
func (s *LogSink) Render(v View, now time.Time) {
	status := "RUNNING"
	if v.Paused {
		status = "PAUSED"
	}
	s.log.Info().
		Str("source", v.Price.Source).
		Float64("price", v.Price.Price).
		Float64("change_pct", v.Price.ChangePct24h).
		Float64("high", v.Price.High24h).
		Float64("low", v.Price.Low24h).
		Str("sources", FormatSources(v.Sources)).
		Str("status", status).
		Msg("btc spot")
	for _, m := range v.Markets {
		s.log.Info().
			Str("market", m.Slug).
			Str("interval", string(m.Interval)).
			Float64("yes", m.PriceYes).
			Float64("no", m.PriceNo).
			Float64("spread", m.Spread()).
			Float64("imbalance", m.Imbalance()).
			Str("time_left", FormatTimeLeft(m.TimeRemaining(now))).
			Msg("market")
	}
}

// ShortMarket keeps the trailing window timestamp of a slug, at most ten characters.
func ShortMarket(slug string) string {
	part := slug
	if i := strings.LastIndex(slug, "-"); i >= 0 {
		part = slug[i+1:]
	}
	if len(part) > 10 {
		part = part[:10]
	}
	return part
}

// Reasons joins the first n entries; "-" when empty.
func Reasons(reasons []string, n int) string {
	if len(reasons) == 0 {
		return "-"
	}
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	return strings.Join(reasons, ", ")
}

// FormatTimeLeft renders m:ss, clamping expired windows to 0:00.
func FormatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

// FormatSources lists sources alphabetically with an up/down marker.
func FormatSources(sources map[string]bool) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		mark := "down"
		if sources[name] {
			mark = "up"
		}
		parts[i] = name + ":" + mark
	}
	return strings.Join(parts, " ")
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_updates_total", Help: "Candidate spot prices by source and admission result"},
		[]string{"source", "result"},
	)
	SourceActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "source_active", Help: "1 when the price source is currently delivering"},
		[]string{"source"},
	)
	CanonicalPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "canonical_price", Help: "Last accepted canonical spot price"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals surfaced to presentation"},
		[]string{"interval", "direction", "type"},
	)
	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_rejections_total", Help: "Signals rejected by risk limits"},
		[]string{"reason"},
	)
	BookFetchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "book_fetch_errors_total", Help: "Failed order book fetches"},
	)
)

func init() {
	prometheus.MustRegister(PriceUpdatesTotal, SourceActive, CanonicalPrice, SignalsTotal, RiskRejectionsTotal, BookFetchErrorsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// SetSourceActive mirrors a source activity flag into the gauge.
func SetSourceActive(source string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	SourceActive.WithLabelValues(source).Set(v)
}

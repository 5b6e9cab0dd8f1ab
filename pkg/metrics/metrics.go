// Package metrics provides Prometheus metrics for the oracle engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceRequestsTotal is a counter of price requests served by the aggregator.
	PriceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_price_requests_total",
			Help: "Total number of aggregator price requests",
		},
		[]string{"asset", "status"},
	)

	// PriceRequestDuration is a histogram of aggregator price request duration.
	PriceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_price_request_duration_seconds",
			Help:    "Duration of aggregator price requests including chained lookups",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"asset"},
	)

	// AdapterErrorsTotal is a counter of adapter read failures by error kind.
	AdapterErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_adapter_errors_total",
			Help: "Total number of adapter read failures",
		},
		[]string{"adapter", "kind"},
	)

	// FeedStalenessSeconds is a gauge of the age of the last feed observation.
	FeedStalenessSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_feed_staleness_seconds",
			Help: "Age of the most recent observation from a feed",
		},
		[]string{"adapter", "asset"},
	)

	// ReportsPostedTotal is a counter of accepted pull reports.
	ReportsPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_reports_posted_total",
			Help: "Total number of pull reports accepted",
		},
		[]string{"feed_id"},
	)

	// CapClampsTotal is a counter of capped exchange-rate clamps.
	CapClampsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_cap_clamps_total",
			Help: "Times a live exchange rate exceeded its growth cap and was clamped",
		},
		[]string{"asset"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// WebSocketClients is a gauge of connected streaming clients.
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	prometheus.MustRegister(
		PriceRequestsTotal,
		PriceRequestDuration,
		AdapterErrorsTotal,
		FeedStalenessSeconds,
		ReportsPostedTotal,
		CapClampsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WebSocketClients,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordPriceRequest records an aggregator price request.
func RecordPriceRequest(asset, status string, duration time.Duration) {
	PriceRequestsTotal.WithLabelValues(asset, status).Inc()
	PriceRequestDuration.WithLabelValues(asset).Observe(duration.Seconds())
}

// RecordAdapterError records an adapter read failure.
func RecordAdapterError(adapter, kind string) {
	AdapterErrorsTotal.WithLabelValues(adapter, kind).Inc()
}

// RecordFeedStaleness records the age of a feed observation.
func RecordFeedStaleness(adapter, asset string, age time.Duration) {
	FeedStalenessSeconds.WithLabelValues(adapter, asset).Set(age.Seconds())
}

// RecordReportPosted records an accepted pull report.
func RecordReportPosted(feedID string) {
	ReportsPostedTotal.WithLabelValues(feedID).Inc()
}

// RecordCapClamp records a capped exchange-rate clamp.
func RecordCapClamp(asset string) {
	CapClampsTotal.WithLabelValues(asset).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

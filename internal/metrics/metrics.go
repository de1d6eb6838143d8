// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildops_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildops_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"method", "route"})

	DealSheetsCalculated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildops_dealsheets_calculated_total",
		Help: "Deal sheets calculated by verdict",
	}, []string{"verdict"})

	JournalEntriesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildops_journal_entries_posted_total",
		Help: "Journal entries posted by source",
	}, []string{"source"})

	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildops_change_events_total",
		Help: "Change events by outcome (published, dropped)",
	}, []string{"outcome"})

	WebsocketSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "buildops_websocket_subscribers",
		Help: "Connected change feed subscribers",
	})

	DocumentBytesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildops_document_bytes_uploaded_total",
		Help: "Bytes written to the document store",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

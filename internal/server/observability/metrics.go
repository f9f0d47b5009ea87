// Package observability holds the Prometheus metrics and gin middleware of
// the scan server.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscan",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Uploaded pages by pipeline outcome.",
		},
		[]string{"outcome"},
	)
	templateLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscan",
			Subsystem: "templates",
			Name:      "lookups_total",
			Help:      "Template cache lookups by result.",
		},
		[]string{"result"},
	)
	templatePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscan",
			Subsystem: "templates",
			Name:      "authority_polls_total",
			Help:      "Requests to the template authority by whether content came back.",
		},
		[]string{"ready"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, uploads, templateLookups, templatePolls)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordUpload counts one ingested page. outcome is "merged", "deferred",
// "no_template" or "error".
func RecordUpload(outcome string) {
	RegisterMetrics()
	uploads.WithLabelValues(outcome).Inc()
}

// TemplateMetrics feeds template cache events into Prometheus.
type TemplateMetrics struct{}

func (TemplateMetrics) CacheHit() {
	RegisterMetrics()
	templateLookups.WithLabelValues("hit").Inc()
}

func (TemplateMetrics) CacheMiss() {
	RegisterMetrics()
	templateLookups.WithLabelValues("miss").Inc()
}

func (TemplateMetrics) Poll(ok bool) {
	RegisterMetrics()
	templatePolls.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

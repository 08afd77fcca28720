package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gagglehome/gagglehome/pkg/assets"
)

// Metrics holds the prometheus instruments for the site server. It also
// implements assets.Recorder so the asset handler can report how each
// request was answered.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	assetOutcomes   *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec
}

// NewMetrics registers the instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gagglehome",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gagglehome",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		assetOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gagglehome",
			Name:      "asset_requests_total",
			Help:      "Asset requests by outcome (memory, disk, not_modified, shell).",
		}, []string{"outcome"}),
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gagglehome",
			Name:      "image_uploads_total",
			Help:      "Image uploads by kind (generic, blog).",
		}, []string{"kind"}),
	}
}

// Record implements assets.Recorder.
func (m *Metrics) Record(outcome assets.Outcome) {
	m.assetOutcomes.WithLabelValues(string(outcome)).Inc()
}

// RecordUpload counts one accepted image upload.
func (m *Metrics) RecordUpload(kind string) {
	m.uploadsTotal.WithLabelValues(kind).Inc()
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request counting and latency observation.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Package metrics provides Prometheus metrics for the recognition pipeline
// and the HTTP layer.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecognitionsTotal counts finished requests by outcome category.
	RecognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songrec_recognitions_total",
		Help: "Total number of recognition requests, by reference kind and outcome.",
	}, []string{"kind", "outcome"})

	// ClipsTotal counts recognized clips by result.
	ClipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songrec_clips_total",
		Help: "Total number of clips sent for recognition, by result (matched, empty, failed).",
	}, []string{"result"})

	// StageDuration observes the time spent per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "songrec_stage_duration_seconds",
		Help:    "Pipeline stage latencies in seconds, by stage.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	// DownloadsInFlight tracks direct downloads holding the download gate.
	DownloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "songrec_downloads_in_flight",
		Help: "Current number of direct downloads and upload saves in progress.",
	})

	// RetriesTotal counts retried attempts of external calls, by operation.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songrec_retries_total",
		Help: "Total number of retried external call attempts, by operation.",
	}, []string{"operation"})

	// LookupCacheTotal counts track cache lookups by result (hit, miss, error).
	LookupCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songrec_lookup_cache_total",
		Help: "Total number of track cache lookups, by result.",
	}, []string{"result"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "songrec_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "songrec_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})
)

// ObserveStage records the time since start for a pipeline stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Middleware records request duration and in-flight requests. The path label
// is the chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		mw := &metricsWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(mw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := strconv.Itoa(mw.statusCode)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type metricsWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (mw *metricsWriter) WriteHeader(statusCode int) {
	if !mw.written {
		mw.statusCode = statusCode
		mw.written = true
	}
	mw.ResponseWriter.WriteHeader(statusCode)
}

func (mw *metricsWriter) Write(b []byte) (int, error) {
	if !mw.written {
		mw.WriteHeader(http.StatusOK)
	}
	return mw.ResponseWriter.Write(b)
}

func (mw *metricsWriter) Unwrap() http.ResponseWriter {
	return mw.ResponseWriter
}

// Hijack is needed by the websocket upgrade.
func (mw *metricsWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := mw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

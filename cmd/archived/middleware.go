package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// statusRecorder captures the status code a handler wrote so the metrics
// middleware can label http_requests_total with it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withMetrics wraps next with the §9 "metrics" layer of the
// metrics -> read-only -> handler chain: every request increments
// http_requests_total and records its latency, regardless of outcome.
func withMetrics(m *httpMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := attribute.NewSet(
			attribute.String("route", r.URL.Path),
			attribute.String("method", r.Method),
			attribute.Int("status", rec.status),
		)
		m.requests.Add(r.Context(), 1, metric.WithAttributeSet(attrs))
		m.latency.Record(r.Context(), time.Since(start).Seconds(), metric.WithAttributeSet(attrs))
	})
}

// withReadOnly is the §9 "read-only" layer: in read-only mode, any
// state-changing request is rejected with 503 before it reaches a handler.
// GET/HEAD/OPTIONS and health checks always pass through.
func withReadOnly(readOnly bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if readOnly && isMutating(r) {
			writeError(w, http.StatusServiceUnavailable, "service is in read-only mode")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

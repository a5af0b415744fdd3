package main

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// httpMetrics holds the observability instruments for the HTTP front:
// request count and latency. Ingest backlog, oldest-pending-job age, and
// success ratio are separate gauges owned by ingestd, which holds the
// state machine those numbers describe.
type httpMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func newHTTPMetrics() (*httpMetrics, error) {
	meter := otel.Meter("docarchive/archived")

	requests, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests handled by the archive front, by route and status"))
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	latency, err := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration_seconds histogram: %w", err)
	}

	return &httpMetrics{requests: requests, latency: latency}, nil
}

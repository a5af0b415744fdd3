package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"docarchive/internal/catalog"
)

// registerBacklogGauges wires the §6 ingest backlog, oldest-pending-job, and
// rolling success ratio gauges. They're observable (pull-based) rather than
// set directly: the OTel SDK invokes the callback on each collection, which
// re-queries catalog.IngestJobRepo.Backlog so the value is always current
// without a separate polling goroutine to keep in sync.
func registerBacklogGauges(jobs *catalog.IngestJobRepo) error {
	meter := otel.Meter("docarchive/ingestd")

	backlogGauge, err := meter.Int64ObservableGauge("ingest_backlog_jobs",
		metric.WithDescription("Non-terminal ingest jobs, by state"))
	if err != nil {
		return fmt.Errorf("create ingest_backlog_jobs gauge: %w", err)
	}

	oldestGauge, err := meter.Float64ObservableGauge("ingest_oldest_pending_seconds",
		metric.WithDescription("Age in seconds of the oldest non-terminal ingest job"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("create ingest_oldest_pending_seconds gauge: %w", err)
	}

	successGauge, err := meter.Float64ObservableGauge("ingest_success_ratio",
		metric.WithDescription("Share of jobs finishing PUBLISHED rather than FAILED over the last hour"))
	if err != nil {
		return fmt.Errorf("create ingest_success_ratio gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		backlog, err := jobs.Backlog(ctx)
		if err != nil {
			return err
		}
		for state, count := range backlog.CountsByState {
			o.ObserveInt64(backlogGauge, int64(count), metric.WithAttributes(attribute.String("state", string(state))))
		}
		o.ObserveFloat64(oldestGauge, backlog.OldestPendingS)
		o.ObserveFloat64(successGauge, backlog.SuccessRatio)
		return nil
	}, backlogGauge, oldestGauge, successGauge)
	if err != nil {
		return fmt.Errorf("register backlog callback: %w", err)
	}
	return nil
}

package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	pipelineMeterName = "alprd.pipeline"
)

// PipelineMetrics exports the pipeline's monotonic counters through
// OpenTelemetry. All recording methods are nil-receiver safe so the pipeline
// can run without a metrics backend.
type PipelineMetrics struct {
	detectionsObserved metric.Int64Counter
	writesCompleted    metric.Int64Counter
	writesDropped      metric.Int64Counter
	writeRetries       metric.Int64Counter
	storeReconnects    metric.Int64Counter
}

func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(pipelineMeterName)

	detectionsObserved, err := meter.Int64Counter(
		"alpr_detections_observed_total",
		metric.WithDescription("Total detections delivered to the pipeline, by outcome"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, err
	}

	writesCompleted, err := meter.Int64Counter(
		"alpr_writes_completed_total",
		metric.WithDescription("Detections durably written (image file plus database row)"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, err
	}

	writesDropped, err := meter.Int64Counter(
		"alpr_writes_dropped_total",
		metric.WithDescription("Admitted detections lost before reaching storage, by reason"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, err
	}

	writeRetries, err := meter.Int64Counter(
		"alpr_write_retries_total",
		metric.WithDescription("Storage write attempts retried after a transient failure"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	storeReconnects, err := meter.Int64Counter(
		"alpr_store_reconnects_total",
		metric.WithDescription("Attempts to reopen the detection store after a connection fault"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		detectionsObserved: detectionsObserved,
		writesCompleted:    writesCompleted,
		writesDropped:      writesDropped,
		writeRetries:       writeRetries,
		storeReconnects:    storeReconnects,
	}, nil
}

// RecordObserved records one Observe call with its outcome
// (accepted, suppressed, below_confidence, queue_full).
func (m *PipelineMetrics) RecordObserved(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.detectionsObserved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordWriteCompleted records one fully persisted detection.
func (m *PipelineMetrics) RecordWriteCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.writesCompleted.Add(ctx, 1)
}

// RecordWriteDropped records an admitted detection that was lost
// (reason: image_write, insert, degraded, evicted, shutdown).
func (m *PipelineMetrics) RecordWriteDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.writesDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordWriteRetry records a retried storage attempt.
func (m *PipelineMetrics) RecordWriteRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.writeRetries.Add(ctx, 1)
}

// RecordStoreReconnect records one reconnect attempt.
func (m *PipelineMetrics) RecordStoreReconnect(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.storeReconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

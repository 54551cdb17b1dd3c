package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's OpenTelemetry instruments.
type Metrics struct {
	chunksProcessed    metric.Int64Counter
	regionsDetected    metric.Int64Counter
	segmentsEmitted    metric.Int64Counter
	segmentsSuppressed metric.Int64Counter
	transcribeLatency  metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	chunks, err := meter.Int64Counter("pipeline.chunks.processed",
		metric.WithDescription("Audio chunks read from the decoder"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.chunks.processed: %w", err)
	}
	regions, err := meter.Int64Counter("pipeline.regions.detected",
		metric.WithDescription("Speech regions found per detector"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.regions.detected: %w", err)
	}
	emitted, err := meter.Int64Counter("pipeline.segments.emitted",
		metric.WithDescription("Subtitle segments kept after filtering"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.segments.emitted: %w", err)
	}
	suppressed, err := meter.Int64Counter("pipeline.segments.suppressed",
		metric.WithDescription("Segments dropped by dedup or plausibility checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.segments.suppressed: %w", err)
	}
	latency, err := meter.Float64Histogram("pipeline.transcribe.duration",
		metric.WithDescription("Latency of transcription backend calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.transcribe.duration: %w", err)
	}

	return &Metrics{
		chunksProcessed:    chunks,
		regionsDetected:    regions,
		segmentsEmitted:    emitted,
		segmentsSuppressed: suppressed,
		transcribeLatency:  latency,
	}, nil
}

func (m *Metrics) recordChunk(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunksProcessed.Add(ctx, 1)
}

func (m *Metrics) recordRegions(ctx context.Context, detector string, n int) {
	if m == nil {
		return
	}
	m.regionsDetected.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("detector", detector),
	))
}

func (m *Metrics) recordSegment(ctx context.Context, kept bool, reason string) {
	if m == nil {
		return
	}
	if kept {
		m.segmentsEmitted.Add(ctx, 1)
		return
	}
	m.segmentsSuppressed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *Metrics) recordTranscribe(ctx context.Context, backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.transcribeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("backend", backend),
	))
}

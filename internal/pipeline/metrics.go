package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's instruments. All recordings happen on the
// coordinator goroutine, so no synchronization is needed here.
type Metrics struct {
	framesProcessed    metric.Int64Counter
	recognitionLatency metric.Float64Histogram
	correctionLatency  metric.Float64Histogram
	cacheHits          metric.Int64Counter
	throttledCycles    metric.Int64Counter
	breakerOpens       metric.Int64Counter
}

func NewMetrics() *Metrics {
	meter := otel.Meter("github.com/loupelabs/loupe/pipeline")
	m := &Metrics{}
	m.framesProcessed, _ = meter.Int64Counter("loupe.pipeline.frames_processed",
		metric.WithDescription("Frames taken for recognition"))
	m.recognitionLatency, _ = meter.Float64Histogram("loupe.pipeline.recognition_ms",
		metric.WithDescription("Recognition call latency in milliseconds"))
	m.correctionLatency, _ = meter.Float64Histogram("loupe.pipeline.correction_ms",
		metric.WithDescription("Correction call latency in milliseconds"))
	m.cacheHits, _ = meter.Int64Counter("loupe.pipeline.cache_hits",
		metric.WithDescription("Correction cache hits"))
	m.throttledCycles, _ = meter.Int64Counter("loupe.pipeline.throttled_cycles",
		metric.WithDescription("Cycles where the correction call was throttled"))
	m.breakerOpens, _ = meter.Int64Counter("loupe.pipeline.breaker_opens",
		metric.WithDescription("Transitions of the correction breaker to open"))
	return m
}

func (m *Metrics) recordFrame(ctx context.Context) {
	if m == nil || m.framesProcessed == nil {
		return
	}
	m.framesProcessed.Add(ctx, 1)
}

func (m *Metrics) recordRecognition(ctx context.Context, latency time.Duration) {
	if m == nil || m.recognitionLatency == nil {
		return
	}
	m.recognitionLatency.Record(ctx, float64(latency.Milliseconds()))
}

func (m *Metrics) recordCorrection(ctx context.Context, latency time.Duration) {
	if m == nil || m.correctionLatency == nil {
		return
	}
	m.correctionLatency.Record(ctx, float64(latency.Milliseconds()))
}

func (m *Metrics) recordCacheHit(ctx context.Context) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

func (m *Metrics) recordThrottled(ctx context.Context) {
	if m == nil || m.throttledCycles == nil {
		return
	}
	m.throttledCycles.Add(ctx, 1)
}

func (m *Metrics) recordBreakerOpen(ctx context.Context) {
	if m == nil || m.breakerOpens == nil {
		return
	}
	m.breakerOpens.Add(ctx, 1)
}

// Package observe provides observability primitives for mouthpiece:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware for the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped from /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mouthpiece metrics.
const meterName = "github.com/MrWong99/mouthpiece"

// Pipeline stage names used with [Metrics.RecordStage].
const (
	StageResample = "resample"
	StageAnalyze  = "analyze"
	StageSegment  = "segment"
	StageClassify = "classify"
	StagePredict  = "predict"
	StageAlign    = "align"
	StageBuild    = "build"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks the latency of one detection stage. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// DetectDuration tracks end-to-end detection latency.
	DetectDuration metric.Float64Histogram

	// Segments counts detected audio segments.
	Segments metric.Int64Counter

	// MouthEvents counts events in produced mouth tracks. Use with
	// attribute.String("shape", ...).
	MouthEvents metric.Int64Counter

	// AlignmentOverrides counts mismatched matches resolved in favour of the
	// audio. Use with attribute.String("winner", "audio"|"text").
	AlignmentOverrides metric.Int64Counter

	// FeatureErrors counts segments whose spectral features could not be
	// extracted.
	FeatureErrors metric.Int64Counter

	// Frames counts rendered animation frames.
	Frames metric.Int64Counter

	// Jobs counts batch jobs. Use with attribute.String("status", ...).
	Jobs metric.Int64Counter

	// ActiveJobs tracks the number of batch jobs currently running.
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// offline analysis of utterances from a few hundred milliseconds to a
// minute.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("mouthpiece.stage.duration",
		metric.WithDescription("Latency of a single detection stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectDuration, err = m.Float64Histogram("mouthpiece.detect.duration",
		metric.WithDescription("End-to-end mouth track detection latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("mouthpiece.segments",
		metric.WithDescription("Total detected audio segments."),
	); err != nil {
		return nil, err
	}
	if met.MouthEvents, err = m.Int64Counter("mouthpiece.mouth_events",
		metric.WithDescription("Total mouth track events by shape."),
	); err != nil {
		return nil, err
	}
	if met.AlignmentOverrides, err = m.Int64Counter("mouthpiece.alignment.overrides",
		metric.WithDescription("Total text/audio disagreements by the side that won."),
	); err != nil {
		return nil, err
	}
	if met.FeatureErrors, err = m.Int64Counter("mouthpiece.feature.errors",
		metric.WithDescription("Total segments that fell back to defaults after feature extraction failed."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("mouthpiece.frames",
		metric.WithDescription("Total rendered animation frames."),
	); err != nil {
		return nil, err
	}
	if met.Jobs, err = m.Int64Counter("mouthpiece.jobs",
		metric.WithDescription("Total batch jobs by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("mouthpiece.active_jobs",
		metric.WithDescription("Number of batch jobs currently running."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mouthpiece.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records the latency of one detection stage in seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordMouthEvent increments the mouth event counter for shape.
func (m *Metrics) RecordMouthEvent(ctx context.Context, shape string) {
	m.MouthEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("shape", shape)),
	)
}

// RecordOverrides records alignment disagreements won by the audio and by
// the text. Zero counts are skipped.
func (m *Metrics) RecordOverrides(ctx context.Context, audioWins, textWins int) {
	if audioWins > 0 {
		m.AlignmentOverrides.Add(ctx, int64(audioWins),
			metric.WithAttributes(attribute.String("winner", "audio")))
	}
	if textWins > 0 {
		m.AlignmentOverrides.Add(ctx, int64(textWins),
			metric.WithAttributes(attribute.String("winner", "text")))
	}
}

// RecordJob records the completion of a batch job with status "ok",
// "failed" or "cancelled".
func (m *Metrics) RecordJob(ctx context.Context, status string) {
	m.Jobs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

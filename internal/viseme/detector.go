// Package viseme detects a mouth track for recorded speech.
//
// A [Detector] runs the full analysis for one utterance:
//
//  1. The audio is resampled to the analysis rate.
//  2. Per-frame spectral features are extracted ([spectral]).
//  3. Voiced audio is cut into syllable-like segments ([segment]).
//  4. Each segment gets a shape and a confidence from its features.
//  5. The transcript is turned into the expected shape sequence ([phoneme]).
//  6. Expected and detected shapes are reconciled ([align]) and the result
//     is built into a [track.MouthTrack].
//
// Each stage runs in its own OpenTelemetry span and its latency is recorded
// in [observe.Metrics].
package viseme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mouthpiece/internal/observe"
	"github.com/MrWong99/mouthpiece/internal/viseme/align"
	"github.com/MrWong99/mouthpiece/internal/viseme/phoneme"
	"github.com/MrWong99/mouthpiece/internal/viseme/segment"
	"github.com/MrWong99/mouthpiece/internal/viseme/spectral"
	"github.com/MrWong99/mouthpiece/pkg/audio"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

// Config collects the tuning of every stage.
type Config struct {
	// SampleRate is the analysis rate audio is resampled to. Zero analyses
	// audio at its native rate. Default: 16000.
	SampleRate int

	// Resample selects the resampling method. Default: soxr.
	Resample audio.ResampleMethod

	Segmenter  segment.Config
	Classifier spectral.Config
	Costs      align.Costs
	Track      align.TrackConfig
}

// DefaultConfig returns the calibrated defaults of all stages.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Resample:   audio.MethodSoxr,
		Segmenter:  segment.DefaultConfig(),
		Classifier: spectral.DefaultConfig(),
		Costs:      align.DefaultCosts(),
		Track:      align.DefaultTrackConfig(),
	}
}

// Validate reports every invalid setting across all stages.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("viseme: sample_rate must not be negative, got %d", c.SampleRate))
	}
	if !c.Resample.IsValid() {
		errs = append(errs, fmt.Errorf("viseme: unknown resample method %q", c.Resample))
	}
	errs = append(errs,
		c.Segmenter.Validate(),
		c.Classifier.Validate(),
		c.Costs.Validate(),
		c.Track.Validate(),
	)
	return errors.Join(errs...)
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithMetrics records stage metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// Result is the outcome of a detection.
type Result struct {
	// Track is the mouth track, ready to be added to a sequence.
	Track *track.MouthTrack

	// Events are the aligned events the track was built from, one per
	// audio segment.
	Events []track.MouthEvent

	// Detected are the audio-only events before alignment.
	Detected []track.MouthEvent

	// Segments are the audio segments in analysis time.
	Segments []segment.Segment

	// Expected is the shape sequence predicted from the text.
	Expected []track.MouthShape

	// Alignment holds the alignment path and its counters.
	Alignment align.Result

	// FeatureFallbacks counts segments that used default features.
	FeatureFallbacks int

	// Duration is the length of the analysed audio in seconds.
	Duration float64
}

// Detector turns speech audio and its transcript into a mouth track. It is
// read-only after construction and safe for concurrent use.
type Detector struct {
	cfg        Config
	segmenter  *segment.Segmenter
	classifier *spectral.Classifier
	predictor  *phoneme.Predictor
	aligner    *align.Aligner
	resampler  *audio.Resampler
	metrics    *observe.Metrics
}

// New validates cfg and returns a Detector using predictor for transcripts.
func New(cfg Config, predictor *phoneme.Predictor, opts ...Option) (*Detector, error) {
	if predictor == nil {
		return nil, errors.New("viseme: predictor must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:        cfg,
		segmenter:  segment.New(cfg.Segmenter),
		classifier: spectral.New(cfg.Classifier),
		predictor:  predictor,
		aligner:    align.New(cfg.Costs),
		resampler:  audio.NewResampler(cfg.Resample),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// stage runs fn inside a child span and records its latency.
func (d *Detector) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := observe.StartSpan(ctx, "viseme."+name)
	start := time.Now()
	err := fn()
	d.metrics.RecordStage(ctx, name, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	return err
}

// Detect analyses buf and aligns it with text. Silent or empty audio yields
// an empty track, and empty text leaves the audio shapes unchanged. Errors
// are returned for malformed input and cancellation only.
func (d *Detector) Detect(ctx context.Context, buf audio.Buffer, text string) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "viseme.Detect", trace.WithAttributes(
		attribute.Int("audio.sample_rate", buf.SampleRate),
		attribute.Int("audio.samples", len(buf.Samples)),
		attribute.Int("text.length", len(text)),
	))
	defer func() { observe.EndSpan(span, err) }()
	start := time.Now()

	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("viseme: %w", err)
	}

	res = &Result{}
	if err := d.stage(ctx, observe.StageResample, func() error {
		if d.cfg.SampleRate > 0 && len(buf.Samples) > 0 && buf.SampleRate != d.cfg.SampleRate {
			buf = d.resampler.Resample(buf, d.cfg.SampleRate)
		}
		res.Duration = buf.Duration()
		return nil
	}); err != nil {
		return nil, err
	}

	if err := d.stage(ctx, observe.StagePredict, func() error {
		var err error
		res.Expected, err = d.predictor.Predict(text)
		return err
	}); err != nil {
		return nil, fmt.Errorf("viseme: %w", err)
	}

	var analysis *spectral.Analysis
	if err := d.stage(ctx, observe.StageAnalyze, func() error {
		var err error
		analysis, err = d.classifier.Analyze(buf, d.segmenter.Framing(buf.SampleRate))
		return err
	}); err != nil {
		return nil, fmt.Errorf("viseme: %w", err)
	}

	var segmented segment.Result
	if err := d.stage(ctx, observe.StageSegment, func() error {
		segmented = d.segmenter.Segment(buf, analysis)
		res.Segments = segmented.Segments
		return nil
	}); err != nil {
		return nil, err
	}

	if err := d.stage(ctx, observe.StageClassify, func() error {
		res.Detected, res.FeatureFallbacks = analysis.Score(segmented)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := d.finish(ctx, res, res.Expected, res.Detected); err != nil {
		return nil, err
	}

	d.metrics.Segments.Add(ctx, int64(len(res.Segments)))
	if res.FeatureFallbacks > 0 {
		d.metrics.FeatureErrors.Add(ctx, int64(res.FeatureFallbacks))
	}
	d.metrics.DetectDuration.Record(ctx, time.Since(start).Seconds())

	observe.Logger(ctx).Debug("viseme: detected mouth track",
		"duration", res.Duration,
		"segments", len(res.Segments),
		"expected", len(res.Expected),
		"events", res.Track.Len(),
		"overrides", res.Alignment.Overrides,
		"corrections", res.Alignment.Corrections,
		"noise", res.Alignment.Noise,
		"feature_fallbacks", res.FeatureFallbacks,
	)
	return res, nil
}

// DetectText builds a mouth track from text alone, spreading the predicted
// shapes evenly over [0, duration). A non-positive duration yields an empty
// track.
func (d *Detector) DetectText(ctx context.Context, text string, duration float64) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "viseme.DetectText", trace.WithAttributes(
		attribute.Float64("duration", duration),
		attribute.Int("text.length", len(text)),
	))
	defer func() { observe.EndSpan(span, err) }()

	res = &Result{Duration: max(duration, 0)}
	if err := d.stage(ctx, observe.StagePredict, func() error {
		var err error
		res.Expected, err = d.predictor.Predict(text)
		return err
	}); err != nil {
		return nil, fmt.Errorf("viseme: %w", err)
	}
	if err := d.finish(ctx, res, nil, align.FromText(res.Expected, 0, duration)); err != nil {
		return nil, err
	}
	return res, nil
}

// finish aligns detected with expected, builds the track and stores both in
// res.
func (d *Detector) finish(ctx context.Context, res *Result, expected []track.MouthShape, detected []track.MouthEvent) error {
	if err := d.stage(ctx, observe.StageAlign, func() error {
		res.Alignment = d.aligner.Align(expected, detected)
		res.Events = res.Alignment.Events
		return nil
	}); err != nil {
		return err
	}
	d.metrics.RecordOverrides(ctx, res.Alignment.Overrides, res.Alignment.Corrections)

	if err := d.stage(ctx, observe.StageBuild, func() error {
		var err error
		res.Track, err = align.BuildTrack(res.Events, d.cfg.Track)
		return err
	}); err != nil {
		return fmt.Errorf("viseme: %w", err)
	}
	for _, ev := range res.Track.Events() {
		d.metrics.RecordMouthEvent(ctx, ev.Value.String())
	}
	return nil
}

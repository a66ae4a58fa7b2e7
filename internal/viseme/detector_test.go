package viseme_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/mouthpiece/internal/observe"
	"github.com/MrWong99/mouthpiece/internal/viseme"
	"github.com/MrWong99/mouthpiece/internal/viseme/phoneme"
	"github.com/MrWong99/mouthpiece/pkg/audio"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

type partial struct {
	freq, amp float64
}

// utterance renders silence-separated vowels. Each entry of parts is one
// vowel of 300 ms; 200 ms of silence surrounds every vowel.
func utterance(rate int, parts ...[]partial) audio.Buffer {
	vowel := int(0.3 * float64(rate))
	gap := int(0.2 * float64(rate))
	out := make([]float64, gap)
	for _, ps := range parts {
		for i := range vowel {
			var v float64
			for _, p := range ps {
				v += p.amp * math.Sin(2*math.Pi*p.freq*float64(i)/float64(rate))
			}
			out = append(out, 0.4*v)
		}
		out = append(out, make([]float64, gap)...)
	}
	return audio.Buffer{Samples: out, SampleRate: rate}
}

var (
	openParts    = []partial{{800, 1}, {1400, 1}}
	roundedParts = []partial{{250, 1}, {750, 0.3}}
)

func newDetector(t *testing.T, cfg viseme.Config, opts ...viseme.Option) *viseme.Detector {
	t.Helper()
	p, err := phoneme.NewDefaultPredictor()
	if err != nil {
		t.Fatalf("NewDefaultPredictor: %v", err)
	}
	if opts == nil {
		opts = []viseme.Option{viseme.WithMetrics(testMetrics(t, nil))}
	}
	d, err := viseme.New(cfg, p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func testMetrics(t *testing.T, reader *sdkmetric.ManualReader) *observe.Metrics {
	t.Helper()
	if reader == nil {
		reader = sdkmetric.NewManualReader()
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// shapeAt returns the shape of mt at time tm.
func shapeAt(mt *track.MouthTrack, tm float64) track.MouthShape {
	for _, ev := range mt.Events() {
		if ev.Contains(tm) {
			return ev.Value
		}
	}
	return mt.Default()
}

func TestDetect_AudioOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func() viseme.Config
		rate int
	}{
		{"analysis rate", viseme.DefaultConfig, 16000},
		{"resampled linear", func() viseme.Config {
			cfg := viseme.DefaultConfig()
			cfg.Resample = audio.MethodLinear
			return cfg
		}, 48000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newDetector(t, tt.cfg())
			buf := utterance(tt.rate, openParts, roundedParts)

			res, err := d.Detect(context.Background(), buf, "")
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if math.Abs(res.Duration-1.2) > 0.01 {
				t.Errorf("Duration = %g, want 1.2", res.Duration)
			}
			if len(res.Segments) < 2 {
				t.Fatalf("segments = %d, want at least one per vowel", len(res.Segments))
			}
			if !slices.Equal(res.Events, res.Detected) {
				t.Error("without text the aligned events should equal the detected ones")
			}
			if err := res.Track.Validate(); err != nil {
				t.Fatalf("track invalid: %v", err)
			}

			checks := []struct {
				at   float64
				want track.MouthShape
			}{
				{0.05, track.MouthClosed},
				{0.35, track.MouthOpen},
				{0.85, track.MouthRounded},
				{1.15, track.MouthClosed},
			}
			for _, c := range checks {
				if got := shapeAt(res.Track, c.at); got != c.want {
					t.Errorf("shape at %gs = %v, want %v", c.at, got, c.want)
				}
			}
		})
	}
}

func TestDetect_WithText(t *testing.T) {
	t.Parallel()

	d := newDetector(t, viseme.DefaultConfig())
	res, err := d.Detect(context.Background(), utterance(16000, openParts, roundedParts), "hello")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if want := []track.MouthShape{track.MouthOpen, track.MouthRounded}; !slices.Equal(res.Expected, want) {
		t.Errorf("Expected = %v, want %v", res.Expected, want)
	}
	if len(res.Events) != len(res.Segments) {
		t.Errorf("events = %d, segments = %d; want one event per segment", len(res.Events), len(res.Segments))
	}
	for i, ev := range res.Events {
		seg := res.Segments[i]
		if ev.Start != seg.Start || ev.End != seg.End {
			t.Errorf("event %d timing %g-%g, want segment timing %g-%g", i, ev.Start, ev.End, seg.Start, seg.End)
		}
	}
	if got := shapeAt(res.Track, 0.05); got != track.MouthClosed {
		t.Errorf("shape before speech = %v, want closed", got)
	}
}

func TestDetect_ConcurrentUse(t *testing.T) {
	t.Parallel()

	d := newDetector(t, viseme.DefaultConfig())
	buf := utterance(16000, openParts, roundedParts, openParts)
	ref, err := d.Detect(context.Background(), buf, "how are you")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	const callers = 8
	results := make([][]track.TimedEvent[track.MouthShape], callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			res, err := d.Detect(context.Background(), buf, "how are you")
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = res.Track.Events()
		})
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !slices.Equal(results[i], ref.Track.Events()) {
			t.Errorf("caller %d track = %v, want %v", i, results[i], ref.Track.Events())
		}
	}
}

func TestDetect_DegenerateInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  audio.Buffer
		text string
	}{
		{"empty buffer", audio.Buffer{SampleRate: 16000}, "hello"},
		{"no samples no rate", audio.Buffer{}, ""},
		{"all zero", audio.Buffer{Samples: make([]float64, 16000), SampleRate: 16000}, "hello world"},
		{"shorter than a frame", audio.Buffer{Samples: make([]float64, 10), SampleRate: 16000}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := newDetector(t, viseme.DefaultConfig()).Detect(context.Background(), tt.buf, tt.text)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(res.Segments) != 0 || len(res.Events) != 0 || res.Track.Len() != 0 {
				t.Errorf("segments %d events %d track %d, want all empty",
					len(res.Segments), len(res.Events), res.Track.Len())
			}
			if res.Track.Attribute() != "mouth" {
				t.Errorf("attribute = %q, want mouth", res.Track.Attribute())
			}
		})
	}
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	d := newDetector(t, viseme.DefaultConfig())

	if _, err := d.Detect(context.Background(), audio.Buffer{Samples: []float64{0.1}}, ""); err == nil {
		t.Error("expected error for a buffer without sample rate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Detect(ctx, utterance(16000, openParts), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDetectText(t *testing.T) {
	t.Parallel()

	d := newDetector(t, viseme.DefaultConfig())
	res, err := d.DetectText(context.Background(), "hello", 1)
	if err != nil {
		t.Fatalf("DetectText: %v", err)
	}
	want := []track.TimedEvent[track.MouthShape]{
		{Start: 0, End: 0.5, Value: track.MouthOpen},
		{Start: 0.5, End: 1, Value: track.MouthRounded},
	}
	if got := res.Track.Events(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	res, err = d.DetectText(context.Background(), "hello", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Track.Len() != 0 {
		t.Errorf("zero duration should give an empty track, got %d events", res.Track.Len())
	}
}

func TestDetect_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	d := newDetector(t, viseme.DefaultConfig(), viseme.WithMetrics(testMetrics(t, reader)))
	if _, err := d.Detect(context.Background(), utterance(16000, openParts, roundedParts), "hello"); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "mouthpiece.stage.duration" {
				hist := m.Data.(metricdata.Histogram[float64])
				if len(hist.DataPoints) != 7 {
					t.Errorf("stage series = %d, want 7", len(hist.DataPoints))
				}
			}
			if m.Name == "mouthpiece.segments" {
				sum := m.Data.(metricdata.Sum[int64])
				if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value < 2 {
					t.Errorf("segments = %+v, want at least 2", sum.DataPoints)
				}
			}
		}
	}
	for _, name := range []string{"mouthpiece.stage.duration", "mouthpiece.detect.duration", "mouthpiece.segments", "mouthpiece.mouth_events"} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := viseme.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := viseme.DefaultConfig()
	cfg.SampleRate = -1
	cfg.Resample = "cubic"
	cfg.Costs.SkipText = -1
	cfg.Track.Attribute = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"sample_rate", "cubic", "skip_text", "attribute"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}

	p, _ := phoneme.NewDefaultPredictor()
	if _, err := viseme.New(cfg, p); err == nil {
		t.Error("New should reject an invalid config")
	}
	if _, err := viseme.New(viseme.DefaultConfig(), nil); err == nil {
		t.Error("New should reject a nil predictor")
	}
}

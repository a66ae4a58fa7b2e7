// Package spectral classifies voiced audio into coarse mouth shapes from
// formant-like spectral features.
//
// Each analysis frame yields a height feature (low-band centroid, tracking
// the first formant), a backness feature (mid-band centroid, tracking the
// second formant), energy and pitch. A frame is open when height reaches the
// open threshold, rounded when it does not and backness is at or below the
// rounding threshold, and open otherwise. The open threshold scales with the
// square root of the median pitch so that higher voices, whose features sit
// higher, are judged on the same footing.
//
// A segment's shape is decided from the mean features of its frames.
package spectral

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/mouthpiece/internal/viseme/segment"
	"github.com/MrWong99/mouthpiece/pkg/audio"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

// Classifier is stateless and safe for concurrent use; each call to
// [Classifier.Analyze] allocates its own FFT plan.
type Classifier struct {
	cfg Config
}

// New returns a Classifier using cfg.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() Config { return c.cfg }

// Analysis holds the per-frame features of one buffer. It implements
// [segment.FrameShaper].
type Analysis struct {
	cfg      Config
	framing  audio.Framing
	features []Features
	errs     []error
}

// Analyze extracts features for every frame of buf using framing. Frames
// that fail extraction are recorded and skipped later; they never fail the
// whole analysis.
func (c *Classifier) Analyze(buf audio.Buffer, framing audio.Framing) (*Analysis, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("spectral: %w", err)
	}
	n := framing.Count(len(buf.Samples))
	a := &Analysis{
		cfg:      c.cfg,
		framing:  framing,
		features: make([]Features, n),
		errs:     make([]error, n),
	}
	if n == 0 {
		return a, nil
	}

	x := newExtractor(c.cfg, framing)
	failed := 0
	for i := range n {
		a.features[i], a.errs[i] = x.extract(framing.Frame(buf.Samples, i))
		if a.errs[i] != nil {
			failed++
		}
	}
	if failed > 0 {
		slog.Warn("spectral: feature extraction failed for some frames", "failed", failed, "frames", n)
	}
	return a, nil
}

// Len returns the number of analysed frames.
func (a *Analysis) Len() int { return len(a.features) }

// Frame returns the features of frame i and the extraction error, if any.
func (a *Analysis) Frame(i int) (Features, error) { return a.features[i], a.errs[i] }

// OpenThreshold returns the pitch-adapted open threshold for the given voiced
// mask: OpenThreshold * min(sqrt(median pitch / ReferencePitch), MaxPitchScale).
// With no pitched voiced frame the base threshold is returned.
func (a *Analysis) OpenThreshold(voiced []bool) float64 {
	var pitches []float64
	for i, v := range voiced {
		if i >= len(a.features) {
			break
		}
		if v && a.errs[i] == nil && a.features[i].Pitch > 0 {
			pitches = append(pitches, a.features[i].Pitch)
		}
	}
	if len(pitches) == 0 {
		return a.cfg.OpenThreshold
	}
	slices.Sort(pitches)
	median := stat.Quantile(0.5, stat.Empirical, pitches, nil)
	return a.cfg.OpenThreshold * min(math.Sqrt(median/a.cfg.ReferencePitch), a.cfg.MaxPitchScale)
}

// FrameShapes classifies every frame. Unvoiced frames and frames without
// features are closed.
func (a *Analysis) FrameShapes(voiced []bool) []track.MouthShape {
	thr := a.OpenThreshold(voiced)
	out := make([]track.MouthShape, len(voiced))
	for i, v := range voiced {
		if !v || i >= len(a.features) || a.errs[i] != nil {
			continue
		}
		out[i], _ = Decide(a.features[i], thr, a.cfg.RoundingThreshold)
	}
	return out
}

// Decide applies the decision rule to one feature set and returns the shape
// with its relative distance from the threshold that decided it.
func Decide(f Features, openThreshold, roundingThreshold float64) (track.MouthShape, float64) {
	switch {
	case f.Height >= openThreshold:
		return track.MouthOpen, (f.Height - openThreshold) / openThreshold
	case f.Backness <= roundingThreshold:
		return track.MouthRounded, min(
			(openThreshold-f.Height)/openThreshold,
			(roundingThreshold-f.Backness)/roundingThreshold,
		)
	default:
		return track.MouthOpen, (f.Backness - roundingThreshold) / roundingThreshold
	}
}

// Score assigns a shape and confidence to every segment of res. Segments
// whose frames all lack features fall back to open with zero confidence and
// no spectral statistics; their count is returned as fallbacks.
func (a *Analysis) Score(res segment.Result) (events []track.MouthEvent, fallbacks int) {
	if len(res.Segments) == 0 {
		return nil, 0
	}
	thr := a.OpenThreshold(res.Voiced)
	events = make([]track.MouthEvent, 0, len(res.Segments))
	for _, seg := range res.Segments {
		mean, ok := a.mean(seg.StartFrame, seg.EndFrame)
		if !ok {
			fallbacks++
			slog.Warn("spectral: no usable features for segment, falling back to open",
				"start", seg.Start, "end", seg.End)
			events = append(events, track.MouthEvent{
				Start: seg.Start,
				End:   seg.End,
				Shape: track.MouthOpen,
			})
			continue
		}

		shape, dist := Decide(mean, thr, a.cfg.RoundingThreshold)
		centroid := float32(mean.Centroid)
		energy := float32(mean.Energy)
		events = append(events, track.MouthEvent{
			Start:                seg.Start,
			End:                  seg.End,
			Shape:                shape,
			Confidence:           a.confidence(dist, mean.Energy, res.Peak, seg.Duration()),
			MeanSpectralCentroid: &centroid,
			MeanEnergy:           &energy,
		})
	}
	return events, fallbacks
}

// mean averages the features of the usable frames in [from, to).
func (a *Analysis) mean(from, to int) (Features, bool) {
	var sum Features
	n := 0
	for i := max(0, from); i < min(to, len(a.features)); i++ {
		if a.errs[i] != nil {
			continue
		}
		f := a.features[i]
		sum.Height += f.Height
		sum.Backness += f.Backness
		sum.Centroid += f.Centroid
		sum.Energy += f.Energy
		sum.Pitch += f.Pitch
		n++
	}
	if n == 0 {
		return Features{}, false
	}
	k := float64(n)
	return Features{
		Height:   sum.Height / k,
		Backness: sum.Backness / k,
		Centroid: sum.Centroid / k,
		Energy:   sum.Energy / k,
		Pitch:    sum.Pitch / k,
	}, true
}

// confidence is the weighted sum of the distance, energy and duration
// scores, each capped at 1, clamped to [0, 1].
func (a *Analysis) confidence(distance, energy, peak, duration float64) float32 {
	score := func(v, ref float64) float64 {
		if !(v > 0) || ref <= 0 {
			return 0
		}
		return min(1, v/ref)
	}
	var energyRatio float64
	if peak > 0 {
		energyRatio = energy / peak
	}
	c := a.cfg.DistanceWeight*score(distance, a.cfg.DistanceReference) +
		a.cfg.EnergyWeight*score(energyRatio, a.cfg.EnergyReference) +
		a.cfg.DurationWeight*score(duration, a.cfg.DurationReference.Seconds())
	return float32(max(0, min(1, c)))
}

// Package align reconciles the mouth shapes predicted from text with the
// shapes detected in audio.
//
// The text sequence carries no timing and the audio sequence carries no
// linguistic knowledge. [Aligner.Align] finds the cheapest edit path between
// them with dynamic programming: every audio segment is either matched to a
// text shape or discarded as noise, and trailing text may be dropped. The
// timing of the output always comes from the audio. [BuildTrack] turns the
// result into a valid mouth track.
package align

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

// Costs are the transition costs of the alignment. Each cost is scaled by
// the acoustic confidence of the audio segment involved where noted.
type Costs struct {
	// Mismatch is the cost of matching a text shape to a different audio
	// shape, multiplied by the audio confidence. Agreement is free.
	Mismatch float64 `yaml:"mismatch"`

	// SkipText is the fixed cost of dropping a text shape that has no audio
	// segment.
	SkipText float64 `yaml:"skip_text"`

	// SkipAudio and SkipAudioConfidence price treating an audio segment as
	// noise: SkipAudio + SkipAudioConfidence*confidence.
	SkipAudio           float64 `yaml:"skip_audio"`
	SkipAudioConfidence float64 `yaml:"skip_audio_confidence"`

	// OverrideConfidence is the audio confidence at or above which a
	// mismatched match keeps the audio shape instead of the text shape.
	OverrideConfidence float64 `yaml:"override_confidence"`
}

// DefaultCosts returns the calibrated costs.
func DefaultCosts() Costs {
	return Costs{
		Mismatch:            1.0,
		SkipText:            0.8,
		SkipAudio:           0.6,
		SkipAudioConfidence: 0.5,
		OverrideConfidence:  0.5,
	}
}

// Validate reports every invalid cost.
func (c Costs) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("align: %s must be a non-negative number, got %g", name, v))
		}
	}
	check("mismatch", c.Mismatch)
	check("skip_text", c.SkipText)
	check("skip_audio", c.SkipAudio)
	check("skip_audio_confidence", c.SkipAudioConfidence)
	if c.OverrideConfidence < 0 || c.OverrideConfidence > 1 || math.IsNaN(c.OverrideConfidence) {
		errs = append(errs, fmt.Errorf("align: override_confidence must be in [0, 1], got %g", c.OverrideConfidence))
	}
	return errors.Join(errs...)
}

// Op is one step of an alignment path.
type Op int

const (
	// OpMatch pairs a text shape with an audio segment.
	OpMatch Op = iota + 1
	// OpSkipAudio treats an audio segment as noise and keeps its own shape.
	OpSkipAudio
	// OpSkipText drops a text shape.
	OpSkipText
)

// String returns the name used in logs.
func (o Op) String() string {
	switch o {
	case OpMatch:
		return "match"
	case OpSkipAudio:
		return "skip_audio"
	case OpSkipText:
		return "skip_text"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Step is one decision on the best path. Text or Audio is -1 when the step
// does not consume that side.
type Step struct {
	Op    Op
	Text  int
	Audio int
}

// Result is the outcome of an alignment.
type Result struct {
	// Events has one entry per audio segment, in order, with the audio
	// timing, confidence and spectral stats and the resolved shape.
	Events []track.MouthEvent

	// Path lists the decisions from start to end, including text shapes
	// skipped before the last audio segment. Trailing dropped text is not
	// listed.
	Path []Step

	// Cost is the total path cost.
	Cost float64

	// Overrides counts mismatched matches where the audio shape was kept.
	Overrides int

	// Corrections counts mismatched matches where the text shape replaced
	// the audio shape.
	Corrections int

	// Noise counts audio segments skipped as noise.
	Noise int

	// DroppedText counts text shapes that were not matched to any segment.
	DroppedText int
}

// Aligner runs the alignment with a fixed set of costs. It holds no mutable
// state and is safe for concurrent use.
type Aligner struct {
	costs Costs
}

// New returns an Aligner using costs.
func New(costs Costs) *Aligner {
	return &Aligner{costs: costs}
}

// Costs returns the aligner's costs.
func (al *Aligner) Costs() Costs { return al.costs }

// Align reconciles text with audio.
//
// With no audio segments the result is empty. With no text shapes the audio
// segments are returned unchanged.
func (al *Aligner) Align(text []track.MouthShape, audio []track.MouthEvent) Result {
	nText, nAudio := len(text), len(audio)
	if nAudio == 0 {
		return Result{DroppedText: nText}
	}
	if nText == 0 {
		path := make([]Step, nAudio)
		for a := range audio {
			path[a] = Step{Op: OpSkipAudio, Text: -1, Audio: a}
		}
		return Result{Events: slices.Clone(audio), Path: path}
	}

	// cost[t][a] is the cheapest way to consume t text shapes and a audio
	// segments. op[t][a] is the last transition on that path.
	cost := make([][]float64, nText+1)
	op := make([][]Op, nText+1)
	for t := range cost {
		cost[t] = make([]float64, nAudio+1)
		op[t] = make([]Op, nAudio+1)
		for a := range cost[t] {
			cost[t][a] = math.Inf(1)
		}
	}
	cost[0][0] = 0

	for t := 0; t <= nText; t++ {
		for a := 0; a <= nAudio; a++ {
			if t == 0 && a == 0 {
				continue
			}
			best, bestOp := math.Inf(1), Op(0)
			// Candidates in preference order; a later one must be strictly
			// cheaper to win.
			if t > 0 && a > 0 {
				if c := cost[t-1][a-1] + al.matchCost(text[t-1], audio[a-1]); c < best {
					best, bestOp = c, OpMatch
				}
			}
			if a > 0 {
				if c := cost[t][a-1] + al.skipAudioCost(audio[a-1]); c < best {
					best, bestOp = c, OpSkipAudio
				}
			}
			if t > 0 {
				if c := cost[t-1][a] + al.costs.SkipText; c < best {
					best, bestOp = c, OpSkipText
				}
			}
			if bestOp == 0 {
				// Every candidate is NaN; only possible with unvalidated
				// costs. Keep the path walkable.
				bestOp = OpSkipText
				if a > 0 {
					bestOp = OpSkipAudio
				}
			}
			cost[t][a], op[t][a] = best, bestOp
		}
	}

	// Any amount of trailing text may be left over. Prefer consuming more
	// text on ties.
	endT := nText
	for t := nText - 1; t >= 0; t-- {
		if cost[t][nAudio] < cost[endT][nAudio] {
			endT = t
		}
	}

	res := Result{
		Events:      make([]track.MouthEvent, nAudio),
		Cost:        cost[endT][nAudio],
		DroppedText: nText - endT,
	}
	for t, a := endT, nAudio; t > 0 || a > 0; {
		switch op[t][a] {
		case OpMatch:
			t--
			a--
			res.Path = append(res.Path, Step{Op: OpMatch, Text: t, Audio: a})
			res.Events[a] = al.resolve(text[t], audio[a], &res)
		case OpSkipAudio:
			a--
			res.Path = append(res.Path, Step{Op: OpSkipAudio, Text: -1, Audio: a})
			res.Events[a] = audio[a]
			res.Events[a].Confidence = float32(confidence(audio[a]))
			res.Noise++
		case OpSkipText:
			t--
			res.Path = append(res.Path, Step{Op: OpSkipText, Text: t, Audio: -1})
			res.DroppedText++
		default:
			panic(fmt.Sprintf("align: no transition recorded at (%d, %d)", t, a))
		}
	}
	slices.Reverse(res.Path)
	return res
}

func (al *Aligner) matchCost(want track.MouthShape, got track.MouthEvent) float64 {
	if want == got.Shape {
		return 0
	}
	return al.costs.Mismatch * confidence(got)
}

func (al *Aligner) skipAudioCost(ev track.MouthEvent) float64 {
	return al.costs.SkipAudio + al.costs.SkipAudioConfidence*confidence(ev)
}

// confidence returns ev's confidence clamped to [0, 1]; NaN counts as 0.
func confidence(ev track.MouthEvent) float64 {
	c := float64(ev.Confidence)
	switch {
	case !(c > 0):
		return 0
	case c > 1:
		return 1
	}
	return c
}

func (al *Aligner) resolve(want track.MouthShape, got track.MouthEvent, res *Result) track.MouthEvent {
	got.Confidence = float32(confidence(got))
	if want == got.Shape {
		return got
	}
	if float64(got.Confidence) >= al.costs.OverrideConfidence {
		res.Overrides++
		return got
	}
	res.Corrections++
	got.Shape = want
	return got
}

// FromText spreads shapes evenly over [start, end) with confidence 1. It is
// used when the duration of an utterance is known but no audio is.
func FromText(shapes []track.MouthShape, start, end float64) []track.MouthEvent {
	if len(shapes) == 0 || !(end > start) {
		return nil
	}
	step := (end - start) / float64(len(shapes))
	out := make([]track.MouthEvent, len(shapes))
	for i, s := range shapes {
		out[i] = track.MouthEvent{
			Start:      start + float64(i)*step,
			End:        start + float64(i+1)*step,
			Shape:      s,
			Confidence: 1,
		}
	}
	out[len(out)-1].End = end
	return out
}

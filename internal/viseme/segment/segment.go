// Package segment splits a mono speech signal into syllable-sized voiced
// segments.
//
// Frames are gated by RMS energy against max(P20, 1% of peak). Each
// contiguous voiced run is then cut at boundary candidates from three
// sources: the run start, energy onsets and spectral shape transitions
// reported by a [FrameShaper]. Long stretches without any candidate get
// rhythmic boundaries snapped to nearby energy dips. Candidates closer than
// the merge window collapse into the earlier one.
package segment

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/mouthpiece/pkg/audio"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

// FrameShaper reports a mouth shape per analysis frame. Frames not marked
// voiced are expected to be [track.MouthClosed]. The spectral classifier
// implements it.
type FrameShaper interface {
	FrameShapes(voiced []bool) []track.MouthShape
}

// Run is a contiguous span of voiced frames, [StartFrame, EndFrame).
type Run struct {
	StartFrame int
	EndFrame   int
}

// Len returns the number of frames in the run.
func (r Run) Len() int { return r.EndFrame - r.StartFrame }

// Segment is one syllable-sized span. Start and End are in seconds and
// include pre-roll and minimum-length stretching. StartFrame and EndFrame
// delimit the frames whose features describe the segment.
type Segment struct {
	Start      float64
	End        float64
	StartFrame int
	EndFrame   int

	// Run is the index of the voiced run the segment was cut from.
	Run int
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Result is the full segmentation of one buffer. The intermediate frame data
// is kept for scoring and diagnostics.
type Result struct {
	Framing   audio.Framing
	Energies  []float64
	Voiced    []bool
	Threshold float64
	Peak      float64
	Runs      []Run
	Segments  []Segment
}

// Segmenter is stateless and safe for concurrent use.
type Segmenter struct {
	cfg Config
}

// New returns a Segmenter using cfg. The config is assumed valid; see
// [Config.Validate].
func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Config returns the segmenter's configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Framing returns the frame geometry at sampleRate.
func (s *Segmenter) Framing(sampleRate int) audio.Framing {
	return audio.NewFraming(sampleRate, s.cfg.FrameLength, s.cfg.HopLength)
}

// Segment finds the voiced segments of buf. shaper may be nil, in which case
// no spectral transitions are used. Empty, sub-frame and silent buffers yield
// a Result without segments.
func (s *Segmenter) Segment(buf audio.Buffer, shaper FrameShaper) Result {
	framing := s.Framing(buf.SampleRate)
	res := Result{Framing: framing}
	if buf.SampleRate <= 0 || framing.Count(len(buf.Samples)) == 0 {
		return res
	}

	res.Energies = framing.FrameEnergies(buf.Samples)
	res.Peak = floats.Max(res.Energies)
	if !(res.Peak > s.cfg.SilenceFloor) {
		slog.Debug("segmenter: buffer is silent", "peak", res.Peak, "frames", len(res.Energies))
		return res
	}

	res.Threshold = s.threshold(res.Energies, res.Peak)
	res.Voiced = make([]bool, len(res.Energies))
	for i, e := range res.Energies {
		res.Voiced[i] = e >= res.Threshold
	}
	res.Runs = voicedRuns(res.Voiced)

	var shapes []track.MouthShape
	if shaper != nil {
		shapes = shaper.FrameShapes(res.Voiced)
		if len(shapes) != len(res.Voiced) {
			shapes = nil
		}
	}

	duration := buf.Duration()
	for ri, run := range res.Runs {
		bounds := s.boundaries(res, run, shapes)
		res.Segments = append(res.Segments, s.layout(framing, run, ri, bounds, duration)...)
	}

	slog.Debug("segmenter: segmented buffer",
		"duration", duration,
		"frames", len(res.Energies),
		"threshold", res.Threshold,
		"runs", len(res.Runs),
		"segments", len(res.Segments),
	)
	return res
}

// threshold is max(P(energy), ratio*peak).
func (s *Segmenter) threshold(energies []float64, peak float64) float64 {
	sorted := slices.Clone(energies)
	slices.Sort(sorted)
	p := stat.Quantile(s.cfg.EnergyPercentile/100, stat.Empirical, sorted, nil)
	return max(p, s.cfg.PeakFloorRatio*peak)
}

func voicedRuns(voiced []bool) []Run {
	var runs []Run
	start := -1
	for i, v := range voiced {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			runs = append(runs, Run{StartFrame: start, EndFrame: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Run{StartFrame: start, EndFrame: len(voiced)})
	}
	return runs
}

// boundaries returns the merged candidate times for one run, starting with
// the run start.
func (s *Segmenter) boundaries(res Result, run Run, shapes []track.MouthShape) []float64 {
	f := res.Framing
	cands := []float64{f.Start(run.StartFrame)}
	for _, i := range onsets(res.Energies, run, s.cfg.OnsetRatio*res.Peak) {
		cands = append(cands, f.Start(i))
	}
	for _, i := range transitions(shapes, run, s.cfg.TransitionMinFrames) {
		cands = append(cands, f.Start(i))
	}
	slices.Sort(cands)
	cands = slices.Compact(cands)

	cands = append(cands, s.rhythmicMarks(res, run, cands)...)
	slices.Sort(cands)
	return mergeClose(cands, s.cfg.MergeWindow.Seconds())
}

// onsets returns the frames inside run where the energy rise peaks above
// minRise.
func onsets(energies []float64, run Run, minRise float64) []int {
	rise := func(i int) float64 {
		if i <= run.StartFrame {
			return 0
		}
		return energies[i] - energies[i-1]
	}
	var out []int
	for i := run.StartFrame + 1; i < run.EndFrame; i++ {
		d := rise(i)
		if d < minRise {
			continue
		}
		if d > rise(i-1) && (i+1 >= run.EndFrame || d >= rise(i+1)) {
			out = append(out, i)
		}
	}
	return out
}

// transitions returns the frames inside run where the shape switches between
// open and rounded and then holds for at least minFrames frames.
func transitions(shapes []track.MouthShape, run Run, minFrames int) []int {
	if len(shapes) == 0 {
		return nil
	}
	var out []int
	cur := track.MouthClosed
	for i := run.StartFrame; i < run.EndFrame; i++ {
		sh := shapes[i]
		if sh == cur || sh == track.MouthClosed {
			continue
		}
		if !holds(shapes, i, min(run.EndFrame, i+minFrames), sh) {
			continue
		}
		if cur != track.MouthClosed {
			out = append(out, i)
		}
		cur = sh
	}
	return out
}

func holds(shapes []track.MouthShape, from, to int, sh track.MouthShape) bool {
	if to-from <= 0 {
		return false
	}
	for i := from; i < to; i++ {
		if shapes[i] != sh {
			return false
		}
	}
	return true
}

// rhythmicMarks subdivides candidate-free stretches of the run longer than
// 1.5 rhythm intervals. Each mark moves to the quietest point within the
// search radius when that point is clearly quieter than the mark itself.
func (s *Segmenter) rhythmicMarks(res Result, run Run, cands []float64) []float64 {
	f := res.Framing
	interval := s.cfg.RhythmInterval.Seconds()
	search := s.cfg.RhythmSearch.Seconds()
	runEnd := f.Start(run.EndFrame)

	edges := append(slices.Clone(cands), runEnd)
	var marks []float64
	for k := 0; k+1 < len(edges); k++ {
		from, to := edges[k], edges[k+1]
		if to-from <= 1.5*interval {
			continue
		}
		for m := from + interval; m < to-interval/2; m += interval {
			marks = append(marks, s.snap(res, run, m, search))
		}
	}
	return marks
}

// dipRatio is how much quieter a nearby dip must be than the rhythmic mark
// for the mark to move there.
const dipRatio = 0.8

func (s *Segmenter) snap(res Result, run Run, mark, search float64) float64 {
	if search <= 0 {
		return mark
	}
	f := res.Framing
	i := min(max(f.Index(mark), run.StartFrame), run.EndFrame-1)
	at := res.Energies[i]
	t, e, ok := bestSplit(res.Energies, f, mark-search, mark+search)
	if !ok || e >= dipRatio*at {
		return mark
	}
	return t
}

// mergeClose keeps a sorted candidate only if it is at least window after the
// previously kept one.
func mergeClose(cands []float64, window float64) []float64 {
	if len(cands) == 0 {
		return nil
	}
	out := []float64{cands[0]}
	for _, c := range cands[1:] {
		if c-out[len(out)-1] >= window {
			out = append(out, c)
		}
	}
	return out
}

// layout turns the boundaries of one run into segments.
func (s *Segmenter) layout(f audio.Framing, run Run, ri int, bounds []float64, duration float64) []Segment {
	runEnd := f.Start(run.EndFrame)
	maxLen := s.cfg.MaxSyllable.Seconds()
	preRoll := s.cfg.PreRoll.Seconds()
	minLen := s.cfg.MinSegment.Seconds()

	segs := make([]Segment, 0, len(bounds))
	for j, b := range bounds {
		end := runEnd
		if j+1 < len(bounds) {
			end = bounds[j+1]
		}
		end = min(end, b+maxLen)
		if end <= b {
			continue
		}

		startFrame := max(run.StartFrame, f.Index(b))
		endFrame := min(run.EndFrame, max(startFrame+1, int(math.Ceil(end/f.Hop()-1e-9))))

		start := max(0, b-preRoll)
		if end-start < minLen {
			end = start + minLen
			if duration > 0 && end > duration {
				end = duration
				start = max(0, end-minLen)
			}
		}
		segs = append(segs, Segment{
			Start:      start,
			End:        end,
			StartFrame: startFrame,
			EndFrame:   endFrame,
			Run:        ri,
		})
	}
	return segs
}

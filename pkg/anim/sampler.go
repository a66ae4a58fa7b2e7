// Package anim evaluates a [track.Sequence] at arbitrary points in time.
//
// A [Sampler] is a pure function of its sequence: it never mutates the
// tracks, never fails on a read and may be shared between goroutines. Frame
// generation through [Sampler.Frames] is the only operation with a side
// effect, and that effect is limited to the [Character] passed in by the
// caller.
package anim

import (
	"slices"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

// stepEpsilon is the shortest transform event that is still interpolated.
// Shorter events jump straight to their target.
const stepEpsilon = 1e-6

// Sampler answers point-in-time queries against a validated sequence.
type Sampler struct {
	seq *track.Sequence
}

// New returns a Sampler over seq. The sequence is assumed valid, which
// [track.NewSequence] guarantees.
func New(seq *track.Sequence) *Sampler {
	return &Sampler{seq: seq}
}

// Sequence returns the sampled sequence.
func (s *Sampler) Sequence() *track.Sequence { return s.seq }

// Duration returns the latest event end over all tracks, or 0 when no track
// holds any event.
func (s *Sampler) Duration() float64 {
	return s.seq.Duration()
}

// SamplePose evaluates every bool, mouth and transform track at t. Times
// before the first event, including negative times, yield the track
// defaults. Sound tracks are not part of the pose; see
// [Sampler.SoundEventsBetween].
func (s *Sampler) SamplePose(t float64) track.PoseState {
	pose := track.NewPoseState()
	for _, tr := range s.seq.Tracks() {
		switch tt := tr.(type) {
		case *track.BoolTrack:
			pose.Bools[tt.Attribute()] = sampleStep(tt, tt.Default(), t)
		case *track.MouthTrack:
			pose.Mouths[tt.Attribute()] = sampleStep(tt, tt.Default(), t)
		case *track.TransformTrack:
			pose.Transforms[tt.Attribute()] = sampleTransform(tt, t)
		}
	}
	return pose
}

// eventList is the read view shared by the generic track kinds.
type eventList[V any] interface {
	Len() int
	Event(i int) track.TimedEvent[V]
}

// sampleStep returns the value of the last event starting at or before t if
// t lies inside it, and def otherwise.
func sampleStep[V any](evs eventList[V], def V, t float64) V {
	last := -1
	for i := range evs.Len() {
		if evs.Event(i).Start > t {
			break
		}
		last = i
	}
	if last < 0 {
		return def
	}
	if e := evs.Event(last); t < e.End {
		return e.Value
	}
	return def
}

// sampleTransform ramps from the previous target (or the default) to the
// target of the event containing t, and holds the last reached target in
// gaps and after the final event.
func sampleTransform(tt *track.TransformTrack, t float64) track.Transform {
	prev := tt.Default()
	for i := range tt.Len() {
		e := tt.Event(i)
		if t < e.Start {
			return prev
		}
		if t < e.End {
			d := e.End - e.Start
			if d <= stepEpsilon {
				return e.Value
			}
			return prev.Lerp(e.Value, clamp((t-e.Start)/d, 0, 1))
		}
		prev = e.Value
	}
	return prev
}

// SoundEventsBetween returns the sound events, over all sound tracks, whose
// start time lies in the window from t0 to t1. includeStart and includeEnd
// close the window at either end; the usual query is [t0, t1) with
// includeStart true and includeEnd false.
//
// Only start times are tested. A cue that began before t0 and is still
// playing is not returned: a caller walking successive windows sees every
// cue exactly once.
func (s *Sampler) SoundEventsBetween(t0, t1 float64, includeStart, includeEnd bool) []track.TimedEvent[track.SoundCue] {
	var out []track.TimedEvent[track.SoundCue]
	tracks := 0
	for _, tr := range s.seq.Tracks() {
		st, ok := tr.(*track.SoundTrack)
		if !ok {
			continue
		}
		tracks++
		for i := range st.Len() {
			e := st.Event(i)
			if e.Start > t1 || (!includeEnd && e.Start == t1) {
				break
			}
			if e.Start < t0 || (!includeStart && e.Start == t0) {
				continue
			}
			out = append(out, e)
		}
	}
	if tracks > 1 {
		slices.SortStableFunc(out, func(a, b track.TimedEvent[track.SoundCue]) int {
			switch {
			case a.Start < b.Start:
				return -1
			case a.Start > b.Start:
				return 1
			}
			return 0
		})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

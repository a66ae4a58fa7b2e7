// Package track defines the pose-track data model shared by the lip-sync
// detector and the animation sampler.
//
// A [Sequence] owns a set of attribute tracks. Every track is one of four
// kinds, each holding an ordered list of [TimedEvent] values:
//
//   - [BoolTrack]: on/off attributes such as "eyes_open".
//   - [MouthTrack]: the categorical mouth shape (closed, open, rounded).
//   - [TransformTrack]: 2D transform targets for the head and hands.
//   - [SoundTrack]: audio cues, the only kind whose events may overlap.
//
// The set of kinds is closed: [Track] has an unexported method so no other
// package can add one, and consumers dispatch with a type switch.
//
// Tracks and sequences are immutable after construction and are safe for
// concurrent use. Validation runs once, in [NewSequence]; readers can assume
// every event is well formed.
package track

import (
	"fmt"
	"math"
)

// TimedEvent is a value held over the half-open interval [Start, End),
// expressed in seconds from the start of the sequence.
type TimedEvent[V any] struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Value V       `yaml:"value"`
}

// Duration returns End - Start.
func (e TimedEvent[V]) Duration() float64 {
	return e.End - e.Start
}

// Contains reports whether t lies in [Start, End).
func (e TimedEvent[V]) Contains(t float64) bool {
	return t >= e.Start && t < e.End
}

// Kind identifies one of the four track kinds.
type Kind string

const (
	KindBool      Kind = "bool"
	KindMouth     Kind = "mouth"
	KindTransform Kind = "transform"
	KindSound     Kind = "sound"
)

// IsValid reports whether k is a recognised track kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindBool, KindMouth, KindTransform, KindSound:
		return true
	}
	return false
}

// MouthShape is the coarse viseme shown by the character's mouth. The zero
// value is [MouthClosed].
type MouthShape int

const (
	MouthClosed MouthShape = iota
	MouthOpen
	MouthRounded
)

// String returns the lower-case name used in YAML files and logs.
func (m MouthShape) String() string {
	switch m {
	case MouthClosed:
		return "closed"
	case MouthOpen:
		return "open"
	case MouthRounded:
		return "rounded"
	}
	return fmt.Sprintf("MouthShape(%d)", int(m))
}

// IsValid reports whether m is one of the three defined shapes.
func (m MouthShape) IsValid() bool {
	return m >= MouthClosed && m <= MouthRounded
}

// ParseMouthShape parses the name produced by [MouthShape.String].
func ParseMouthShape(s string) (MouthShape, error) {
	switch s {
	case "closed", "CLOSED":
		return MouthClosed, nil
	case "open", "OPEN":
		return MouthOpen, nil
	case "rounded", "ROUNDED":
		return MouthRounded, nil
	}
	return MouthClosed, fmt.Errorf("track: unknown mouth shape %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (m MouthShape) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("track: invalid mouth shape %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *MouthShape) UnmarshalText(text []byte) error {
	v, err := ParseMouthShape(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Transform is a 2D translate/scale target.
type Transform struct {
	TranslateX float64 `yaml:"translate_x"`
	TranslateY float64 `yaml:"translate_y"`
	ScaleX     float64 `yaml:"scale_x"`
	ScaleY     float64 `yaml:"scale_y"`
}

// IdentityTransform is the default transform: no translation, unit scale.
var IdentityTransform = Transform{ScaleX: 1, ScaleY: 1}

// Lerp interpolates each field independently: a + (b-a)*p.
func (a Transform) Lerp(b Transform, p float64) Transform {
	return Transform{
		TranslateX: lerp(a.TranslateX, b.TranslateX, p),
		TranslateY: lerp(a.TranslateY, b.TranslateY, p),
		ScaleX:     lerp(a.ScaleX, b.ScaleX, p),
		ScaleY:     lerp(a.ScaleY, b.ScaleY, p),
	}
}

func (a Transform) isFinite() bool {
	return finite(a.TranslateX) && finite(a.TranslateY) && finite(a.ScaleX) && finite(a.ScaleY)
}

func lerp(a, b, p float64) float64 {
	return a + (b-a)*p
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SoundCue references an external audio clip to play.
type SoundCue struct {
	SourceID string  `yaml:"source_id"`
	Volume   float32 `yaml:"volume"`
}

// MouthEvent is one timed mouth-shape judgement produced by the detector.
// It is converted into a [MouthTrack] and not stored on its own.
type MouthEvent struct {
	Start float64
	End   float64
	Shape MouthShape

	// Confidence is the acoustic certainty in [0, 1]. Events derived from
	// text alone carry 1.0.
	Confidence float32

	// MeanSpectralCentroid is the segment's mean spectral centroid in Hz, or
	// nil when no spectral features were available.
	MeanSpectralCentroid *float32

	// MeanEnergy is the segment's mean frame RMS, or nil when unavailable.
	MeanEnergy *float32
}

// Duration returns End - Start.
func (e MouthEvent) Duration() float64 {
	return e.End - e.Start
}

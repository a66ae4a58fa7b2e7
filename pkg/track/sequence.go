package track

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Sequence is a named, validated set of attribute tracks. It can only be
// obtained through [NewSequence] or [Sequence.WithTrack], so every Sequence
// value satisfies the track invariants.
type Sequence struct {
	name   string
	tracks []Track
	byAttr map[string]Track
}

// NewSequence validates tracks and returns a new [Sequence]. All failures
// are reported together in a joined error.
func NewSequence(name string, tracks ...Track) (*Sequence, error) {
	var errs []error
	byAttr := make(map[string]Track, len(tracks))
	for i, t := range tracks {
		if t == nil {
			errs = append(errs, fmt.Errorf("tracks[%d] is nil", i))
			continue
		}
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := byAttr[t.Attribute()]; dup {
			errs = append(errs, fmt.Errorf("tracks[%d] %q: %w", i, t.Attribute(), ErrDuplicateAttribute))
			continue
		}
		byAttr[t.Attribute()] = t
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("track: sequence %q: %w", name, errors.Join(errs...))
	}
	return &Sequence{name: name, tracks: slices.Clone(tracks), byAttr: byAttr}, nil
}

// Name returns the sequence name.
func (s *Sequence) Name() string { return s.name }

// Tracks returns the tracks in declaration order.
func (s *Sequence) Tracks() []Track { return slices.Clone(s.tracks) }

// Track looks up a track by attribute name.
func (s *Sequence) Track(attribute string) (Track, bool) {
	t, ok := s.byAttr[attribute]
	return t, ok
}

// Attributes returns all attribute names in declaration order.
func (s *Sequence) Attributes() []string {
	out := make([]string, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.Attribute())
	}
	return out
}

// Duration returns the latest event end over all tracks, or 0 when the
// sequence has no events.
func (s *Sequence) Duration() float64 {
	var d float64
	for _, t := range s.tracks {
		d = max(d, t.End())
	}
	return d
}

// WithTrack returns a new sequence in which t replaces the track with the
// same attribute, or is appended when no such track exists. The receiver is
// not modified.
func (s *Sequence) WithTrack(t Track) (*Sequence, error) {
	tracks := slices.Clone(s.tracks)
	idx := slices.IndexFunc(tracks, func(o Track) bool { return o.Attribute() == t.Attribute() })
	if idx >= 0 {
		tracks[idx] = t
	} else {
		tracks = append(tracks, t)
	}
	return NewSequence(s.name, tracks...)
}

// PoseState is the value of every attribute at one instant. It is always
// derived by sampling a [Sequence], never stored.
type PoseState struct {
	Bools      map[string]bool
	Mouths     map[string]MouthShape
	Transforms map[string]Transform
}

// NewPoseState returns a PoseState with empty, non-nil maps.
func NewPoseState() PoseState {
	return PoseState{
		Bools:      make(map[string]bool),
		Mouths:     make(map[string]MouthShape),
		Transforms: make(map[string]Transform),
	}
}

// Equal reports whether p and o hold identical values.
func (p PoseState) Equal(o PoseState) bool {
	return maps.Equal(p.Bools, o.Bools) &&
		maps.Equal(p.Mouths, o.Mouths) &&
		maps.Equal(p.Transforms, o.Transforms)
}

package track

import (
	"errors"
	"fmt"
	"slices"
)

// Validation errors. Returned wrapped; test with [errors.Is].
var (
	ErrInvalidSpan        = errors.New("event start must be before end")
	ErrUnsorted           = errors.New("events are not sorted by start time")
	ErrOverlap            = errors.New("events overlap")
	ErrInvalidValue       = errors.New("event value is invalid")
	ErrEmptyAttribute     = errors.New("attribute name must not be empty")
	ErrDuplicateAttribute = errors.New("duplicate attribute")
)

// Track is implemented by exactly four types: [*BoolTrack], [*MouthTrack],
// [*TransformTrack] and [*SoundTrack].
type Track interface {
	// Attribute is the character attribute the track drives, e.g. "mouth".
	Attribute() string

	// Kind reports which of the four track kinds this is.
	Kind() Kind

	// Len returns the number of events.
	Len() int

	// End returns the latest event end time, or 0 for an empty track.
	End() float64

	// Validate checks ordering, overlap and value invariants.
	Validate() error

	sealed()
}

// events is the ordered event list shared by all track kinds.
type events[V any] struct {
	attribute string
	list      []TimedEvent[V]
}

// Attribute returns the attribute name.
func (e *events[V]) Attribute() string { return e.attribute }

// Len returns the number of events.
func (e *events[V]) Len() int { return len(e.list) }

// Event returns the i-th event in start-time order.
func (e *events[V]) Event(i int) TimedEvent[V] { return e.list[i] }

// Events returns a copy of all events.
func (e *events[V]) Events() []TimedEvent[V] { return slices.Clone(e.list) }

// End returns the maximum End over all events. Sound events may overlap, so
// the last event is not necessarily the one that ends last.
func (e *events[V]) End() float64 {
	var end float64
	for _, ev := range e.list {
		if ev.End > end {
			end = ev.End
		}
	}
	return end
}

func (*events[V]) sealed() {}

// validate checks the shared invariants. With allowOverlap only start-time
// ordering is enforced.
func (e *events[V]) validate(allowOverlap bool, checkValue func(V) error) error {
	var errs []error
	if e.attribute == "" {
		errs = append(errs, ErrEmptyAttribute)
	}
	for i, ev := range e.list {
		if !finite(ev.Start) || !finite(ev.End) || ev.Start >= ev.End {
			errs = append(errs, fmt.Errorf("events[%d] [%g, %g): %w", i, ev.Start, ev.End, ErrInvalidSpan))
		}
		if checkValue != nil {
			if err := checkValue(ev.Value); err != nil {
				errs = append(errs, fmt.Errorf("events[%d]: %w", i, err))
			}
		}
		if i == 0 {
			continue
		}
		prev := e.list[i-1]
		if ev.Start < prev.Start {
			errs = append(errs, fmt.Errorf("events[%d] starts at %g before events[%d] at %g: %w", i, ev.Start, i-1, prev.Start, ErrUnsorted))
			continue
		}
		if !allowOverlap && ev.Start < prev.End {
			errs = append(errs, fmt.Errorf("events[%d] starts at %g before events[%d] ends at %g: %w", i, ev.Start, i-1, prev.End, ErrOverlap))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("track %q: %w", e.attribute, errors.Join(errs...))
}

// BoolTrack holds on/off values. Outside any event the track reports its
// default.
type BoolTrack struct {
	events[bool]
	def bool
}

// NewBoolTrack copies evs into a new track. Call [BoolTrack.Validate] or add
// the track to a [Sequence] to check it.
func NewBoolTrack(attribute string, def bool, evs ...TimedEvent[bool]) *BoolTrack {
	return &BoolTrack{events: events[bool]{attribute: attribute, list: slices.Clone(evs)}, def: def}
}

// Kind returns [KindBool].
func (*BoolTrack) Kind() Kind { return KindBool }

// Default returns the value reported outside any event.
func (t *BoolTrack) Default() bool { return t.def }

// Validate checks that events are well formed, sorted and non-overlapping.
func (t *BoolTrack) Validate() error { return t.validate(false, nil) }

// MouthTrack holds mouth shapes. Outside any event the track reports its
// default, normally [MouthClosed].
type MouthTrack struct {
	events[MouthShape]
	def MouthShape
}

// NewMouthTrack copies evs into a new track.
func NewMouthTrack(attribute string, def MouthShape, evs ...TimedEvent[MouthShape]) *MouthTrack {
	return &MouthTrack{events: events[MouthShape]{attribute: attribute, list: slices.Clone(evs)}, def: def}
}

// Kind returns [KindMouth].
func (*MouthTrack) Kind() Kind { return KindMouth }

// Default returns the shape reported outside any event.
func (t *MouthTrack) Default() MouthShape { return t.def }

// Validate checks that events are well formed, sorted and non-overlapping and
// that every shape is defined.
func (t *MouthTrack) Validate() error {
	if !t.def.IsValid() {
		return fmt.Errorf("track %q: default %d: %w", t.attribute, int(t.def), ErrInvalidValue)
	}
	return t.validate(false, func(m MouthShape) error {
		if !m.IsValid() {
			return fmt.Errorf("mouth shape %d: %w", int(m), ErrInvalidValue)
		}
		return nil
	})
}

// TransformTrack holds transform targets. Each event's value is the state
// reached at its End; the ramp starts from the previous event's target, or
// from the track's default before the first event.
type TransformTrack struct {
	events[Transform]
	def Transform
}

// NewTransformTrack copies evs into a new track with [IdentityTransform] as
// its default.
func NewTransformTrack(attribute string, evs ...TimedEvent[Transform]) *TransformTrack {
	return NewTransformTrackWithDefault(attribute, IdentityTransform, evs...)
}

// NewTransformTrackWithDefault is like [NewTransformTrack] with def as the
// state before the first event.
func NewTransformTrackWithDefault(attribute string, def Transform, evs ...TimedEvent[Transform]) *TransformTrack {
	return &TransformTrack{events: events[Transform]{attribute: attribute, list: slices.Clone(evs)}, def: def}
}

// Kind returns [KindTransform].
func (*TransformTrack) Kind() Kind { return KindTransform }

// Default returns the state before the first event.
func (t *TransformTrack) Default() Transform { return t.def }

// Validate checks that events are well formed, sorted and non-overlapping and
// that every target is finite.
func (t *TransformTrack) Validate() error {
	if !t.def.isFinite() {
		return fmt.Errorf("track %q: default transform is not finite: %w", t.attribute, ErrInvalidValue)
	}
	return t.validate(false, func(v Transform) error {
		if !v.isFinite() {
			return fmt.Errorf("transform is not finite: %w", ErrInvalidValue)
		}
		return nil
	})
}

// SoundTrack holds audio cues sorted by start time. Cues may overlap but must
// have a positive duration.
type SoundTrack struct {
	events[SoundCue]
}

// NewSoundTrack copies evs into a new track.
func NewSoundTrack(attribute string, evs ...TimedEvent[SoundCue]) *SoundTrack {
	return &SoundTrack{events: events[SoundCue]{attribute: attribute, list: slices.Clone(evs)}}
}

// Kind returns [KindSound].
func (*SoundTrack) Kind() Kind { return KindSound }

// Validate checks that cues are sorted, have positive duration, a source and
// a non-negative volume.
func (t *SoundTrack) Validate() error {
	return t.validate(true, func(c SoundCue) error {
		if c.SourceID == "" {
			return fmt.Errorf("sound cue has no source_id: %w", ErrInvalidValue)
		}
		if c.Volume < 0 || !finite(float64(c.Volume)) {
			return fmt.Errorf("sound cue volume %g: %w", c.Volume, ErrInvalidValue)
		}
		return nil
	})
}

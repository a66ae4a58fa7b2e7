package align

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

// TrackConfig controls how aligned events become a mouth track.
type TrackConfig struct {
	// Attribute is the attribute name of the produced track.
	Attribute string `yaml:"attribute"`

	// AbsorbGap is the longest gap between two events that is closed by
	// extending the earlier event. Longer gaps are filled with a closed mouth.
	AbsorbGap time.Duration `yaml:"absorb_gap"`
}

// DefaultTrackConfig returns the defaults: attribute "mouth", 30 ms gaps
// absorbed.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{
		Attribute: "mouth",
		AbsorbGap: 30 * time.Millisecond,
	}
}

// Validate reports every invalid field.
func (c TrackConfig) Validate() error {
	var errs []error
	if c.Attribute == "" {
		errs = append(errs, errors.New("align: track attribute must not be empty"))
	}
	if c.AbsorbGap < 0 {
		errs = append(errs, fmt.Errorf("align: absorb_gap must not be negative, got %s", c.AbsorbGap))
	}
	return errors.Join(errs...)
}

// BuildTrack turns aligned events into a mouth track.
//
// Events are sorted by start. Where pre-roll makes an event begin before
// its predecessor ends, the predecessor is cut short. Gaps shorter than
// AbsorbGap are absorbed into the preceding event and longer gaps are filled
// with [track.MouthClosed]. Adjacent events of the same shape are merged.
// Empty input yields an empty track.
func BuildTrack(events []track.MouthEvent, cfg TrackConfig) (*track.MouthTrack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b track.MouthEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})

	absorb := cfg.AbsorbGap.Seconds()
	var out []track.TimedEvent[track.MouthShape]
	push := func(ev track.TimedEvent[track.MouthShape]) {
		if n := len(out); n > 0 && out[n-1].Value == ev.Value && out[n-1].End == ev.Start {
			out[n-1].End = ev.End
			return
		}
		out = append(out, ev)
	}

	for _, ev := range sorted {
		if !(ev.End > ev.Start) {
			continue
		}
		cur := track.TimedEvent[track.MouthShape]{Start: ev.Start, End: ev.End, Value: ev.Shape}
		if !trimOverlap(&out, cur) {
			continue
		}
		if n := len(out); n > 0 {
			prev := &out[n-1]
			switch gap := cur.Start - prev.End; {
			case gap > 0 && gap < absorb:
				prev.End = cur.Start
			case gap > 0:
				push(track.TimedEvent[track.MouthShape]{Start: prev.End, End: cur.Start, Value: track.MouthClosed})
			}
		}
		push(cur)
	}

	t := track.NewMouthTrack(cfg.Attribute, track.MouthClosed, out...)
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("align: build track: %w", err)
	}
	return t, nil
}

// trimOverlap cuts the tail of out back to cur.Start, dropping events that
// become empty. It reports false when cur lies entirely inside the last
// event and should be discarded.
func trimOverlap(out *[]track.TimedEvent[track.MouthShape], cur track.TimedEvent[track.MouthShape]) bool {
	for n := len(*out); n > 0; n = len(*out) {
		prev := &(*out)[n-1]
		if cur.Start >= prev.End {
			return true
		}
		if cur.End <= prev.End && cur.Start >= prev.Start {
			return false
		}
		prev.End = cur.Start
		if prev.End > prev.Start {
			return true
		}
		*out = (*out)[:n-1]
	}
	return true
}

package segment

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the segmenter's tuning constants. Use [DefaultConfig] and
// override individual fields.
type Config struct {
	// FrameLength and HopLength define the analysis frames.
	FrameLength time.Duration
	HopLength   time.Duration

	// EnergyPercentile is the frame-energy percentile (0-100) used as the
	// voiced threshold.
	EnergyPercentile float64

	// PeakFloorRatio floors the threshold at this fraction of peak energy.
	PeakFloorRatio float64

	// OnsetRatio is the minimum frame-to-frame energy rise, as a fraction of
	// peak energy, that counts as a syllable onset.
	OnsetRatio float64

	// RhythmInterval is the spacing of fallback boundaries inside long
	// stretches with no other candidate.
	RhythmInterval time.Duration

	// RhythmSearch is the radius around each rhythmic mark searched for an
	// energy dip to snap to.
	RhythmSearch time.Duration

	// MergeWindow collapses candidates closer than this, keeping the earlier.
	MergeWindow time.Duration

	MaxSyllable time.Duration
	PreRoll     time.Duration
	MinSegment  time.Duration

	// TransitionMinFrames is how many consecutive frames a new spectral shape
	// must hold before it counts as a transition.
	TransitionMinFrames int

	// SilenceFloor is the peak frame RMS at or below which the whole buffer
	// is treated as silent.
	SilenceFloor float64
}

// DefaultConfig returns the calibrated defaults for speech at conversational
// rate.
func DefaultConfig() Config {
	return Config{
		FrameLength:         25 * time.Millisecond,
		HopLength:           10 * time.Millisecond,
		EnergyPercentile:    20,
		PeakFloorRatio:      0.01,
		OnsetRatio:          0.15,
		RhythmInterval:      120 * time.Millisecond,
		RhythmSearch:        30 * time.Millisecond,
		MergeWindow:         60 * time.Millisecond,
		MaxSyllable:         180 * time.Millisecond,
		PreRoll:             20 * time.Millisecond,
		MinSegment:          40 * time.Millisecond,
		TransitionMinFrames: 3,
		SilenceFloor:        1e-6,
	}
}

// Validate checks that every constant is in range and returns all problems
// joined.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("segment: %s must be positive, got %s", name, d))
		}
	}
	positive("frame_length", c.FrameLength)
	positive("hop_length", c.HopLength)
	positive("rhythm_interval", c.RhythmInterval)
	positive("max_syllable", c.MaxSyllable)
	positive("min_segment", c.MinSegment)

	if c.RhythmSearch < 0 || c.MergeWindow < 0 || c.PreRoll < 0 {
		errs = append(errs, errors.New("segment: rhythm_search, merge_window and pre_roll must not be negative"))
	}
	if c.EnergyPercentile < 0 || c.EnergyPercentile > 100 {
		errs = append(errs, fmt.Errorf("segment: energy_percentile must be in [0, 100], got %g", c.EnergyPercentile))
	}
	if c.PeakFloorRatio < 0 || c.PeakFloorRatio > 1 {
		errs = append(errs, fmt.Errorf("segment: peak_floor_ratio must be in [0, 1], got %g", c.PeakFloorRatio))
	}
	if c.OnsetRatio <= 0 || c.OnsetRatio > 1 {
		errs = append(errs, fmt.Errorf("segment: onset_ratio must be in (0, 1], got %g", c.OnsetRatio))
	}
	if c.MinSegment > c.MaxSyllable {
		errs = append(errs, fmt.Errorf("segment: min_segment %s exceeds max_syllable %s", c.MinSegment, c.MaxSyllable))
	}
	if c.TransitionMinFrames < 1 {
		errs = append(errs, fmt.Errorf("segment: transition_min_frames must be at least 1, got %d", c.TransitionMinFrames))
	}
	if c.SilenceFloor < 0 {
		errs = append(errs, fmt.Errorf("segment: silence_floor must not be negative, got %g", c.SilenceFloor))
	}
	return errors.Join(errs...)
}

package spectral

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the classifier's thresholds, feature bands and confidence
// weights. Frequencies are in Hz.
type Config struct {
	// OpenThreshold is the height centroid at or above which a frame is open,
	// before pitch adaptation.
	OpenThreshold float64

	// RoundingThreshold is the backness centroid at or below which a
	// non-open frame is rounded.
	RoundingThreshold float64

	// ReferencePitch and MaxPitchScale control pitch adaptation:
	// threshold = OpenThreshold * min(sqrt(median/ReferencePitch), MaxPitchScale).
	ReferencePitch float64
	MaxPitchScale  float64

	HeightLow    float64
	HeightHigh   float64
	BacknessLow  float64
	BacknessHigh float64

	PitchMin float64
	PitchMax float64

	// VoicingThreshold is the normalised autocorrelation peak needed to
	// report a pitch.
	VoicingThreshold float64

	DistanceWeight float64
	EnergyWeight   float64
	DurationWeight float64

	// DistanceReference is the relative distance from the deciding threshold
	// that scores full shape certainty.
	DistanceReference float64

	// EnergyReference is the mean-to-peak energy ratio that scores full
	// energy certainty.
	EnergyReference float64

	// DurationReference is the segment length that scores full duration
	// certainty.
	DurationReference time.Duration
}

// DefaultConfig returns thresholds calibrated for adult speech at 16 kHz.
func DefaultConfig() Config {
	return Config{
		OpenThreshold:     500,
		RoundingThreshold: 1100,
		ReferencePitch:    170,
		MaxPitchScale:     1.5,
		HeightLow:         200,
		HeightHigh:        1000,
		BacknessLow:       700,
		BacknessHigh:      3000,
		PitchMin:          75,
		PitchMax:          400,
		VoicingThreshold:  0.3,
		DistanceWeight:    0.5,
		EnergyWeight:      0.3,
		DurationWeight:    0.2,
		DistanceReference: 0.25,
		EnergyReference:   0.5,
		DurationReference: 80 * time.Millisecond,
	}
}

// Validate returns all out-of-range settings joined.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("spectral: %s must be positive, got %g", name, v))
		}
	}
	positive("open_threshold", c.OpenThreshold)
	positive("rounding_threshold", c.RoundingThreshold)
	positive("reference_pitch", c.ReferencePitch)
	positive("max_pitch_scale", c.MaxPitchScale)
	positive("distance_reference", c.DistanceReference)
	positive("energy_reference", c.EnergyReference)
	if c.DurationReference <= 0 {
		errs = append(errs, fmt.Errorf("spectral: duration_reference must be positive, got %s", c.DurationReference))
	}

	band := func(name string, lo, hi float64) {
		if lo < 0 || hi <= lo {
			errs = append(errs, fmt.Errorf("spectral: %s band [%g, %g] is empty", name, lo, hi))
		}
	}
	band("height", c.HeightLow, c.HeightHigh)
	band("backness", c.BacknessLow, c.BacknessHigh)
	band("pitch", c.PitchMin, c.PitchMax)

	if c.VoicingThreshold < 0 || c.VoicingThreshold > 1 {
		errs = append(errs, fmt.Errorf("spectral: voicing_threshold must be in [0, 1], got %g", c.VoicingThreshold))
	}
	if c.DistanceWeight < 0 || c.EnergyWeight < 0 || c.DurationWeight < 0 {
		errs = append(errs, errors.New("spectral: confidence weights must not be negative"))
	}
	return errors.Join(errs...)
}

// Package config provides the configuration schema, loader, and phonemizer
// registry for mouthpiece.
//
// Every tuning constant of the detection pipeline is a YAML field. Omitted
// fields keep the calibrated defaults returned by [Default], so a config
// file only needs to list what it changes.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/mouthpiece/internal/viseme"
	"github.com/MrWong99/mouthpiece/internal/viseme/align"
	"github.com/MrWong99/mouthpiece/internal/viseme/segment"
	"github.com/MrWong99/mouthpiece/internal/viseme/spectral"
	"github.com/MrWong99/mouthpiece/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the slog level. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for mouthpiece.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel   LogLevel          `yaml:"log_level"`
	Audio      AudioConfig       `yaml:"audio"`
	Segmenter  SegmenterConfig   `yaml:"segmenter"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Alignment  align.Costs       `yaml:"alignment"`
	Track      align.TrackConfig `yaml:"track"`
	Phonemizer PhonemizerConfig  `yaml:"phonemizer"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
}

// AudioConfig controls ingestion.
type AudioConfig struct {
	// SampleRate is the analysis rate. 0 analyses audio at its native rate.
	SampleRate int `yaml:"sample_rate"`

	// Resample selects the converter: "soxr" or "linear".
	Resample audio.ResampleMethod `yaml:"resample"`
}

// SegmenterConfig mirrors [segment.Config]. Durations are written as Go
// duration strings ("25ms").
type SegmenterConfig struct {
	FrameLength         time.Duration `yaml:"frame_length"`
	HopLength           time.Duration `yaml:"hop_length"`
	EnergyPercentile    float64       `yaml:"energy_percentile"`
	PeakFloorRatio      float64       `yaml:"peak_floor_ratio"`
	OnsetRatio          float64       `yaml:"onset_ratio"`
	RhythmInterval      time.Duration `yaml:"rhythm_interval"`
	RhythmSearch        time.Duration `yaml:"rhythm_search"`
	MergeWindow         time.Duration `yaml:"merge_window"`
	MaxSyllable         time.Duration `yaml:"max_syllable"`
	PreRoll             time.Duration `yaml:"pre_roll"`
	MinSegment          time.Duration `yaml:"min_segment"`
	TransitionMinFrames int           `yaml:"transition_min_frames"`
	SilenceFloor        float64       `yaml:"silence_floor"`
}

// ClassifierConfig mirrors [spectral.Config]. Frequencies are in Hz.
type ClassifierConfig struct {
	OpenThreshold     float64       `yaml:"open_threshold"`
	RoundingThreshold float64       `yaml:"rounding_threshold"`
	ReferencePitch    float64       `yaml:"reference_pitch"`
	MaxPitchScale     float64       `yaml:"max_pitch_scale"`
	HeightBand        Band          `yaml:"height_band"`
	BacknessBand      Band          `yaml:"backness_band"`
	PitchRange        Band          `yaml:"pitch_range"`
	VoicingThreshold  float64       `yaml:"voicing_threshold"`
	DistanceWeight    float64       `yaml:"distance_weight"`
	EnergyWeight      float64       `yaml:"energy_weight"`
	DurationWeight    float64       `yaml:"duration_weight"`
	DistanceReference float64       `yaml:"distance_reference"`
	EnergyReference   float64       `yaml:"energy_reference"`
	DurationReference time.Duration `yaml:"duration_reference"`
}

// Band is a frequency range in Hz.
type Band struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// PhonemizerConfig selects and tunes the text-to-phoneme converter.
type PhonemizerConfig struct {
	// Name selects the registered phonemizer ("cmudict" or "rules").
	Name string `yaml:"name"`

	// DictionaryPath is a CMU-format dictionary file. Empty uses the
	// embedded subset.
	DictionaryPath string `yaml:"dictionary_path"`

	// PhoneticThreshold is the minimum Jaro-Winkler score for a phonetic
	// neighbour to replace an unknown word.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// DisablePhonetic skips the phonetic neighbour lookup.
	DisablePhonetic bool `yaml:"disable_phonetic"`
}

// TelemetryConfig configures metrics export.
type TelemetryConfig struct {
	// MetricsAddr is the listen address of the Prometheus endpoint served
	// by long-running commands. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// ServiceName is reported in telemetry. Default: "mouthpiece".
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of traces sampled.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default returns a config holding every calibrated default.
func Default() *Config {
	d := viseme.DefaultConfig()
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			SampleRate: d.SampleRate,
			Resample:   d.Resample,
		},
		Segmenter:  segmenterFrom(d.Segmenter),
		Classifier: classifierFrom(d.Classifier),
		Alignment:  d.Costs,
		Track:      d.Track,
		Phonemizer: PhonemizerConfig{
			Name:              "cmudict",
			PhoneticThreshold: 0.85,
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "mouthpiece",
			TraceSampleRatio: 1,
		},
	}
}

// Detector converts the pipeline sections to a [viseme.Config].
func (c *Config) Detector() viseme.Config {
	return viseme.Config{
		SampleRate: c.Audio.SampleRate,
		Resample:   c.Audio.Resample,
		Segmenter:  c.Segmenter.Segment(),
		Classifier: c.Classifier.Spectral(),
		Costs:      c.Alignment,
		Track:      c.Track,
	}
}

// Segment converts c to a [segment.Config].
func (c SegmenterConfig) Segment() segment.Config {
	return segment.Config{
		FrameLength:         c.FrameLength,
		HopLength:           c.HopLength,
		EnergyPercentile:    c.EnergyPercentile,
		PeakFloorRatio:      c.PeakFloorRatio,
		OnsetRatio:          c.OnsetRatio,
		RhythmInterval:      c.RhythmInterval,
		RhythmSearch:        c.RhythmSearch,
		MergeWindow:         c.MergeWindow,
		MaxSyllable:         c.MaxSyllable,
		PreRoll:             c.PreRoll,
		MinSegment:          c.MinSegment,
		TransitionMinFrames: c.TransitionMinFrames,
		SilenceFloor:        c.SilenceFloor,
	}
}

func segmenterFrom(s segment.Config) SegmenterConfig {
	return SegmenterConfig{
		FrameLength:         s.FrameLength,
		HopLength:           s.HopLength,
		EnergyPercentile:    s.EnergyPercentile,
		PeakFloorRatio:      s.PeakFloorRatio,
		OnsetRatio:          s.OnsetRatio,
		RhythmInterval:      s.RhythmInterval,
		RhythmSearch:        s.RhythmSearch,
		MergeWindow:         s.MergeWindow,
		MaxSyllable:         s.MaxSyllable,
		PreRoll:             s.PreRoll,
		MinSegment:          s.MinSegment,
		TransitionMinFrames: s.TransitionMinFrames,
		SilenceFloor:        s.SilenceFloor,
	}
}

// Spectral converts c to a [spectral.Config].
func (c ClassifierConfig) Spectral() spectral.Config {
	return spectral.Config{
		OpenThreshold:     c.OpenThreshold,
		RoundingThreshold: c.RoundingThreshold,
		ReferencePitch:    c.ReferencePitch,
		MaxPitchScale:     c.MaxPitchScale,
		HeightLow:         c.HeightBand.Low,
		HeightHigh:        c.HeightBand.High,
		BacknessLow:       c.BacknessBand.Low,
		BacknessHigh:      c.BacknessBand.High,
		PitchMin:          c.PitchRange.Low,
		PitchMax:          c.PitchRange.High,
		VoicingThreshold:  c.VoicingThreshold,
		DistanceWeight:    c.DistanceWeight,
		EnergyWeight:      c.EnergyWeight,
		DurationWeight:    c.DurationWeight,
		DistanceReference: c.DistanceReference,
		EnergyReference:   c.EnergyReference,
		DurationReference: c.DurationReference,
	}
}

func classifierFrom(s spectral.Config) ClassifierConfig {
	return ClassifierConfig{
		OpenThreshold:     s.OpenThreshold,
		RoundingThreshold: s.RoundingThreshold,
		ReferencePitch:    s.ReferencePitch,
		MaxPitchScale:     s.MaxPitchScale,
		HeightBand:        Band{Low: s.HeightLow, High: s.HeightHigh},
		BacknessBand:      Band{Low: s.BacknessLow, High: s.BacknessHigh},
		PitchRange:        Band{Low: s.PitchMin, High: s.PitchMax},
		VoicingThreshold:  s.VoicingThreshold,
		DistanceWeight:    s.DistanceWeight,
		EnergyWeight:      s.EnergyWeight,
		DurationWeight:    s.DurationWeight,
		DistanceReference: s.DistanceReference,
		EnergyReference:   s.EnergyReference,
		DurationReference: s.DurationReference,
	}
}

package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DetectorChanged is set when any pipeline section changed: audio,
	// segmenter, classifier, alignment or track.
	DetectorChanged bool

	// PhonemizerChanged is set when the phonemizer section changed.
	PhonemizerChanged bool

	// TelemetryChanged is set when the telemetry section changed. Telemetry
	// is only read at startup, so a change needs a restart.
	TelemetryChanged bool
}

// NeedsRebuild reports whether a new detector must be constructed to apply
// the diff.
func (d ConfigDiff) NeedsRebuild() bool {
	return d.DetectorChanged || d.PhonemizerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	d.DetectorChanged = old.Detector() != new.Detector()
	d.PhonemizerChanged = old.Phonemizer != new.Phonemizer
	d.TelemetryChanged = old.Telemetry != new.Telemetry
	return d
}

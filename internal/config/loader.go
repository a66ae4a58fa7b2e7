package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidPhonemizerNames lists the phonemizers registered by
// [NewDefaultRegistry]. Used by [Validate] to warn about unrecognised names.
var ValidPhonemizerNames = []string{"cmudict", "rules"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Phonemizer
	switch {
	case cfg.Phonemizer.Name == "":
		errs = append(errs, errors.New("phonemizer.name is required"))
	case !slices.Contains(ValidPhonemizerNames, cfg.Phonemizer.Name):
		slog.Warn("unknown phonemizer name; it must be registered before use",
			"name", cfg.Phonemizer.Name,
			"known", ValidPhonemizerNames,
		)
	}
	if t := cfg.Phonemizer.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("phonemizer.phonetic_threshold must be in [0, 1], got %g", t))
	}
	if cfg.Phonemizer.Name == "rules" && cfg.Phonemizer.DictionaryPath != "" {
		slog.Warn("phonemizer.dictionary_path is ignored by the rules phonemizer",
			"path", cfg.Phonemizer.DictionaryPath,
		)
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio must be in [0, 1], got %g", r))
	}

	// Pipeline sections report their own field names.
	if err := cfg.Detector().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

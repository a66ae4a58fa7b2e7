package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/mouthpiece/internal/viseme/phoneme"
)

// ErrPhonemizerNotRegistered is returned by [Registry.CreatePhonemizer] when
// no factory has been registered under the requested name.
var ErrPhonemizerNotRegistered = errors.New("config: phonemizer not registered")

// PhonemizerFactory constructs a phonemizer from its config section.
type PhonemizerFactory func(PhonemizerConfig) (phoneme.Phonemizer, error)

// Registry maps phonemizer names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	phonemizers map[string]PhonemizerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		phonemizers: make(map[string]PhonemizerFactory),
	}
}

// NewDefaultRegistry returns a registry holding the built-in phonemizers:
//
//   - "cmudict": dictionary lookup with phonetic and rule fallbacks.
//   - "rules": letter-to-sound rules only.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterPhonemizer("cmudict", newDictionaryPhonemizer)
	r.RegisterPhonemizer("rules", func(PhonemizerConfig) (phoneme.Phonemizer, error) {
		return phoneme.Rules{}, nil
	})
	return r
}

// RegisterPhonemizer registers a phonemizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterPhonemizer(name string, factory PhonemizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phonemizers[name] = factory
}

// CreatePhonemizer instantiates the phonemizer named by cfg.Name.
// Returns [ErrPhonemizerNotRegistered] if no factory is registered for it.
func (r *Registry) CreatePhonemizer(cfg PhonemizerConfig) (phoneme.Phonemizer, error) {
	r.mu.RLock()
	factory, ok := r.phonemizers[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPhonemizerNotRegistered, cfg.Name)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create phonemizer %q: %w", cfg.Name, err)
	}
	return p, nil
}

// CreatePredictor wraps the phonemizer named by cfg.Name in a
// [phoneme.Predictor].
func (r *Registry) CreatePredictor(cfg PhonemizerConfig) (*phoneme.Predictor, error) {
	p, err := r.CreatePhonemizer(cfg)
	if err != nil {
		return nil, err
	}
	return phoneme.NewPredictor(p), nil
}

// Names returns the registered phonemizer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.phonemizers))
	for name := range r.phonemizers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newDictionaryPhonemizer(cfg PhonemizerConfig) (phoneme.Phonemizer, error) {
	var (
		dict *phoneme.Dictionary
		err  error
	)
	if cfg.DictionaryPath != "" {
		dict, err = phoneme.LoadDictionaryFile(cfg.DictionaryPath)
	} else {
		dict, err = phoneme.DefaultDictionary()
	}
	if err != nil {
		return nil, err
	}

	var opts []phoneme.Option
	if cfg.DisablePhonetic {
		opts = append(opts, phoneme.WithoutPhoneticLookup())
	} else if cfg.PhoneticThreshold > 0 {
		opts = append(opts, phoneme.WithPhoneticThreshold(cfg.PhoneticThreshold))
	}
	return phoneme.NewDictionaryPhonemizer(dict, opts...), nil
}

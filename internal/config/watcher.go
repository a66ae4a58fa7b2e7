package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// fingerprint identifies one version of the watched file. The modification
// time and size are compared first; the content sum decides when they differ.
type fingerprint struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

func (f fingerprint) sameStat(info os.FileInfo) bool {
	return f.modTime.Equal(info.ModTime()) && f.size == info.Size()
}

// Watcher polls a config file and reports valid changes to a callback.
// Invalid edits are logged and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	current atomic.Pointer[Config]
	seen    fingerprint // owned by the polling goroutine
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is polled. Non-positive values keep
// the 5 second default.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and returns a watcher for it. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: defaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current.Store(cfg)
	w.seen = fp
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Run polls until ctx is done and always returns nil, so it can run in an
// errgroup next to the work it reconfigures.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	log := slog.With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config watcher: stat failed", "err", err)
		return
	}
	if w.seen.sameStat(info) {
		return
	}

	cfg, fp, err := readConfigFile(w.path)
	if err != nil {
		log.Warn("config watcher: invalid edit ignored", "err", err)
		return
	}
	contentChanged := fp.sum != w.seen.sum
	w.seen = fp
	if !contentChanged {
		return
	}

	old := w.current.Swap(cfg)
	log.Info("config watcher: reloaded")
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// readConfigFile parses and validates the file at path.
func readConfigFile(path string) (*Config, fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{modTime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}

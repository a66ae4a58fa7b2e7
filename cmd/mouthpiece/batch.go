package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mouthpiece/internal/config"
	"github.com/MrWong99/mouthpiece/internal/health"
	"github.com/MrWong99/mouthpiece/internal/observe"
	"github.com/MrWong99/mouthpiece/internal/viseme"
)

// Manifest lists the jobs of a batch run. Relative paths are resolved
// against the manifest's directory.
//
// Example:
//
//	jobs:
//	  - name: greeting
//	    audio: lines/greeting.wav
//	    text: "Well met, traveller."
//	    sequence: base/greeting.yaml
//	    out: out/greeting.yaml
//	  - name: farewell
//	    text_file: lines/farewell.txt
//	    duration: 1.8
//	    out: out/farewell.yaml
type Manifest struct {
	Jobs []detectJob `yaml:"jobs"`
}

// loadManifest reads and validates the manifest at path.
func loadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %q: %w", path, err)
	}
	defer f.Close()

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode manifest %q: %w", path, err)
	}

	dir := filepath.Dir(path)
	var errs []error
	for i := range m.Jobs {
		j := &m.Jobs[i]
		if err := j.validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d] %q: %w", i, j.Name, err))
		}
		if j.Out == "-" {
			errs = append(errs, fmt.Errorf("jobs[%d] %q: out must be a file", i, j.Name))
		}
		j.Audio = resolve(dir, j.Audio)
		j.TextFile = resolve(dir, j.TextFile)
		j.Sequence = resolve(dir, j.Sequence)
		j.Out = resolve(dir, j.Out)
		if j.Name == "" {
			j.Name = j.sequenceName()
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}
	return &m, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// detectorSwap holds the detector used for new jobs. Config reloads replace
// it while running jobs keep the one they started with.
type detectorSwap struct {
	cur  atomic.Pointer[viseme.Detector]
	opts []viseme.Option
}

func (s *detectorSwap) load() *viseme.Detector { return s.cur.Load() }

func (s *detectorSwap) rebuild(cfg *config.Config) error {
	det, err := newDetector(cfg, s.opts...)
	if err != nil {
		return err
	}
	s.cur.Store(det)
	return nil
}

// batchProgress counts jobs for the /progress endpoint.
type batchProgress struct {
	total, running, done, failed atomic.Int64
}

func (p *batchProgress) snapshot() health.Progress {
	return health.Progress{
		Total:   p.total.Load(),
		Running: p.running.Load(),
		Done:    p.done.Load(),
		Failed:  p.failed.Load(),
	}
}

func runBatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults when empty)")
	manifestPath := fs.String("manifest", "", "job manifest")
	workers := fs.Int("workers", runtime.NumCPU(), "number of jobs run in parallel")
	metricsAddr := fs.String("metrics-addr", "", "serve metrics and health endpoints on this address (overrides telemetry.metrics_addr)")
	watch := fs.Duration("watch", 0, "poll the config file at this interval and apply changes to new jobs (0 disables)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *manifestPath == "" {
		fmt.Fprintln(stderr, "mouthpiece batch: -manifest is required")
		return 2
	}
	if *workers < 1 {
		fmt.Fprintln(stderr, "mouthpiece batch: -workers must be at least 1")
		return 2
	}
	if *watch > 0 && *configPath == "" {
		fmt.Fprintln(stderr, "mouthpiece batch: -watch needs -config")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
		return 1
	}
	var level slog.LevelVar
	level.Set(cfg.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(stderr, &level))

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		slog.Error("failed to load manifest", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	progress := &batchProgress{}
	progress.total.Store(int64(len(manifest.Jobs)))

	swap := &detectorSwap{opts: []viseme.Option{viseme.WithMetrics(metrics)}}
	if err := swap.rebuild(cfg); err != nil {
		slog.Error("failed to build detector", "err", err)
		return 1
	}

	var watcher *config.Watcher
	if *watch > 0 {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyReload(config.Diff(old, new), new, &level, swap)
		}, config.WithInterval(*watch))
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
	}

	// ── Background services ───────────────────────────────────────────────────
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	bg, bgCtx := errgroup.WithContext(bgCtx)

	addr := cfg.Telemetry.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to listen for metrics", "addr", addr, "err", err)
			return 1
		}
		instrument := observe.Middleware(metrics)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", instrument(observe.MetricsHandler(provider.Registry)))
		health.New(progress.snapshot, health.Checker{
			Name: "detector",
			Check: func(context.Context) error {
				if swap.load() == nil {
					return errors.New("detector not built")
				}
				return nil
			},
		}).Register(mux, instrument)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		bg.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		bg.Go(func() error {
			<-bgCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("serving metrics", "addr", ln.Addr().String())
	}

	if watcher != nil {
		bg.Go(func() error { return watcher.Run(bgCtx) })
	}

	// ── Jobs ──────────────────────────────────────────────────────────────────
	slog.Info("batch starting", "jobs", len(manifest.Jobs), "workers", *workers)
	start := time.Now()

	jobs, jobCtx := errgroup.WithContext(ctx)
	jobs.SetLimit(*workers)
	for i := range manifest.Jobs {
		job := &manifest.Jobs[i]
		jobs.Go(func() error {
			if err := jobCtx.Err(); err != nil {
				return err
			}
			metrics.ActiveJobs.Add(jobCtx, 1)
			progress.running.Add(1)
			defer func() {
				metrics.ActiveJobs.Add(jobCtx, -1)
				progress.running.Add(-1)
			}()

			ctx, span := observe.StartSpan(observe.WithJob(jobCtx, job.Name), "batch.job")
			res, err := runDetectJob(ctx, swap.load(), job, stdout)
			observe.EndSpan(span, err)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					metrics.RecordJob(ctx, "cancelled")
					return err
				}
				progress.failed.Add(1)
				metrics.RecordJob(ctx, "failed")
				observe.Logger(ctx).Error("job failed", "err", err)
				return nil
			}
			progress.done.Add(1)
			metrics.RecordJob(ctx, "ok")
			observe.Logger(ctx).Info("job done",
				"out", job.Out,
				"segments", len(res.Segments),
				"events", res.Track.Len(),
			)
			return nil
		})
	}
	jobErr := jobs.Wait()

	stopBackground()
	if err := bg.Wait(); err != nil {
		slog.Error("background service error", "err", err)
	}

	slog.Info("batch finished",
		"jobs", len(manifest.Jobs),
		"done", progress.done.Load(),
		"failed", progress.failed.Load(),
		"elapsed", time.Since(start),
	)
	if jobErr != nil {
		slog.Warn("batch interrupted", "err", jobErr)
		return 1
	}
	if progress.failed.Load() > 0 {
		return 1
	}
	return 0
}

// applyReload applies a config change to the running batch.
func applyReload(d config.ConfigDiff, cfg *config.Config, level *slog.LevelVar, swap *detectorSwap) {
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.NeedsRebuild() {
		if err := swap.rebuild(cfg); err != nil {
			slog.Warn("config reload: keeping previous detector", "err", err)
		} else {
			slog.Info("config reload: detector rebuilt for new jobs")
		}
	}
	if d.TelemetryChanged {
		slog.Warn("config reload: telemetry changes need a restart")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/MrWong99/mouthpiece/internal/config"
	"github.com/MrWong99/mouthpiece/internal/viseme"
	"github.com/MrWong99/mouthpiece/pkg/audio"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

// detectJob is one recording to turn into a mouth track. It is shared by
// the detect and batch commands.
type detectJob struct {
	Name     string  `yaml:"name"`
	Audio    string  `yaml:"audio"`
	Text     string  `yaml:"text"`
	TextFile string  `yaml:"text_file"`
	Duration float64 `yaml:"duration"`
	Sequence string  `yaml:"sequence"`
	Out      string  `yaml:"out"`
}

func (j *detectJob) validate() error {
	var errs []error
	if j.Audio == "" && j.Duration <= 0 {
		errs = append(errs, errors.New("either audio or a positive duration is required"))
	}
	if j.Text != "" && j.TextFile != "" {
		errs = append(errs, errors.New("text and text_file are mutually exclusive"))
	}
	if j.Out == "" {
		errs = append(errs, errors.New("out is required"))
	}
	return errors.Join(errs...)
}

// transcript returns the inline text or the contents of the text file.
func (j *detectJob) transcript() (string, error) {
	if j.TextFile == "" {
		return j.Text, nil
	}
	b, err := os.ReadFile(j.TextFile)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// sequenceName is the name given to a new sequence: the job name, or the
// output file name without extension.
func (j *detectJob) sequenceName() string {
	if j.Name != "" {
		return j.Name
	}
	base := filepath.Base(j.Out)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runDetectJob detects the mouth track of job and writes the resulting
// sequence. The track replaces any track of the same attribute in the base
// sequence.
func runDetectJob(ctx context.Context, det *viseme.Detector, job *detectJob, stdout io.Writer) (*viseme.Result, error) {
	text, err := job.transcript()
	if err != nil {
		return nil, err
	}

	var res *viseme.Result
	if job.Audio != "" {
		buf, err := audio.LoadWAV(job.Audio)
		if err != nil {
			return nil, err
		}
		res, err = det.Detect(ctx, buf, text)
		if err != nil {
			return nil, err
		}
	} else {
		res, err = det.DetectText(ctx, text, job.Duration)
		if err != nil {
			return nil, err
		}
	}

	var seq *track.Sequence
	if job.Sequence != "" {
		base, err := track.LoadSequenceFile(job.Sequence)
		if err != nil {
			return nil, err
		}
		seq, err = base.WithTrack(res.Track)
		if err != nil {
			return nil, err
		}
	} else {
		seq, err = track.NewSequence(job.sequenceName(), res.Track)
		if err != nil {
			return nil, err
		}
	}

	if err := writeSequence(job.Out, seq, stdout); err != nil {
		return nil, err
	}
	return res, nil
}

// writeSequence writes seq to path, or to stdout for "-".
func writeSequence(path string, seq *track.Sequence, stdout io.Writer) (err error) {
	if path == "-" {
		return track.WriteSequence(stdout, seq)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return track.WriteSequence(f, seq)
}

// newDetector builds a detector from cfg using the default phonemizer
// registry.
func newDetector(cfg *config.Config, opts ...viseme.Option) (*viseme.Detector, error) {
	pred, err := config.NewDefaultRegistry().CreatePredictor(cfg.Phonemizer)
	if err != nil {
		return nil, err
	}
	return viseme.New(cfg.Detector(), pred, opts...)
}

func runDetect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults when empty)")
	var job detectJob
	fs.StringVar(&job.Audio, "audio", "", "WAV recording to analyse")
	fs.StringVar(&job.Text, "text", "", "transcript of the recording")
	fs.StringVar(&job.TextFile, "text-file", "", "file holding the transcript")
	fs.Float64Var(&job.Duration, "duration", 0, "length in seconds for a text-only track when no audio is given")
	fs.StringVar(&job.Sequence, "sequence", "", "sequence file to merge the mouth track into")
	fs.StringVar(&job.Name, "name", "", "name of a new sequence (default: output file name)")
	fs.StringVar(&job.Out, "out", "-", `output sequence file, "-" for stdout`)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := job.validate(); err != nil {
		fmt.Fprintf(stderr, "mouthpiece detect: %v\n", err)
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

	det, err := newDetector(cfg)
	if err != nil {
		slog.Error("failed to build detector", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runDetectJob(ctx, det, &job, stdout)
	if err != nil {
		slog.Error("detect failed", "audio", job.Audio, "err", err)
		return 1
	}
	slog.Info("mouth track detected",
		"out", job.Out,
		"duration", res.Duration,
		"segments", len(res.Segments),
		"events", res.Track.Len(),
		"overrides", res.Alignment.Overrides,
		"corrections", res.Alignment.Corrections,
	)
	return 0
}

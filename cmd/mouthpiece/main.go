// Command mouthpiece detects mouth tracks for recorded dialogue and samples
// animation sequences.
//
// Usage:
//
//	mouthpiece detect -audio line.wav -text "hello there" -out line.yaml
//	mouthpiece sample -sequence line.yaml -t 1.25
//	mouthpiece frames -sequence line.yaml -fps 24
//	mouthpiece batch  -manifest jobs.yaml -workers 4 -metrics-addr :9464
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/mouthpiece/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// command is one subcommand. It returns the process exit code.
type command func(args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"detect": runDetect,
	"sample": runSample,
	"frames": runFrames,
	"batch":  runBatch,
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
			usage(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "mouthpiece: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	return cmd(args[1:], stdout, stderr)
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: mouthpiece <command> [flags]

commands:
  detect   detect a mouth track for one recording and write a sequence file
  sample   print the pose of a sequence at one instant
  frames   step through a sequence at a frame rate
  batch    run many detect jobs from a manifest

Run "mouthpiece <command> -h" for the flags of a command.
`)
}

// loadConfig loads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a text logger on w whose level follows level.
func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

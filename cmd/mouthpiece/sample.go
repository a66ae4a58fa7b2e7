package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/mouthpiece/internal/observe"
	"github.com/MrWong99/mouthpiece/pkg/anim"
	"github.com/MrWong99/mouthpiece/pkg/track"
)

func runSample(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seqPath := fs.String("sequence", "", "sequence file to sample")
	at := fs.Float64("t", 0, "time in seconds")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *seqPath == "" {
		fmt.Fprintln(stderr, "mouthpiece sample: -sequence is required")
		return 2
	}

	seq, err := track.LoadSequenceFile(*seqPath)
	if err != nil {
		fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
		return 1
	}
	s := anim.New(seq)
	fmt.Fprintf(stdout, "t=%.3f %s\n", *at, formatPose(s.SamplePose(*at)))
	return 0
}

// formatPose renders p as space separated attr=value pairs in attribute
// order.
func formatPose(p track.PoseState) string {
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(p.Bools)) {
		parts = append(parts, fmt.Sprintf("%s=%t", k, p.Bools[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(p.Mouths)) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, p.Mouths[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(p.Transforms)) {
		tr := p.Transforms[k]
		parts = append(parts, fmt.Sprintf("%s=(%.3g,%.3g,%.3g,%.3g)", k, tr.TranslateX, tr.TranslateY, tr.ScaleX, tr.ScaleY))
	}
	return strings.Join(parts, " ")
}

// puppet is a character that only remembers its last pose.
type puppet struct {
	pose track.PoseState
}

func (p *puppet) ApplyPose(pose track.PoseState) { p.pose = pose }

// previewRenderer draws one bar per mouth attribute on a blank canvas: flat
// for closed, tall for open and square for rounded.
type previewRenderer struct {
	width, height int
}

func (r previewRenderer) Render(c anim.Character) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	p, ok := c.(*puppet)
	if !ok {
		return img, nil
	}
	attrs := slices.Sorted(maps.Keys(p.pose.Mouths))
	if len(attrs) == 0 {
		return img, nil
	}
	slot := r.width / len(attrs)
	for i, attr := range attrs {
		w, h := slot/2, max(r.height/16, 1)
		switch p.pose.Mouths[attr] {
		case track.MouthOpen:
			h = r.height / 2
		case track.MouthRounded:
			w = min(slot/3, r.height/3)
			h = w
		}
		x0 := i*slot + (slot-w)/2
		y0 := (r.height - h) / 2
		draw.Draw(img, image.Rect(x0, y0, x0+w, y0+h), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return img, nil
}

func runFrames(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seqPath := fs.String("sequence", "", "sequence file to step through")
	fps := fs.Float64("fps", 24, "frames per second")
	width := fs.Int("width", 64, "preview width in pixels")
	height := fs.Int("height", 64, "preview height in pixels")
	pngDir := fs.String("png-dir", "", "write a PNG preview per frame to this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *seqPath == "" {
		fmt.Fprintln(stderr, "mouthpiece frames: -sequence is required")
		return 2
	}
	if *width <= 0 || *height <= 0 {
		fmt.Fprintln(stderr, "mouthpiece frames: -width and -height must be positive")
		return 2
	}

	seq, err := track.LoadSequenceFile(*seqPath)
	if err != nil {
		fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
		return 1
	}

	var renderer anim.Renderer
	if *pngDir != "" {
		if err := os.MkdirAll(*pngDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
			return 1
		}
		renderer = previewRenderer{width: *width, height: *height}
	}

	it, err := anim.New(seq).Frames(*fps, &puppet{}, renderer)
	if err != nil {
		fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
		return 1
	}

	ctx := context.Background()
	metrics := observe.DefaultMetrics()
	for f, err := range it.All() {
		if err != nil {
			fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
			return 1
		}
		line := fmt.Sprintf("%05d t=%.3f %s", f.Index, f.Time, formatPose(f.Pose))
		for _, s := range f.Sounds {
			line += fmt.Sprintf(" sound=%s@%.2f", s.Value.SourceID, s.Value.Volume)
		}
		fmt.Fprintln(stdout, line)

		if f.Image != nil {
			if err := writePNG(filepath.Join(*pngDir, fmt.Sprintf("frame_%05d.png", f.Index)), f.Image); err != nil {
				fmt.Fprintf(stderr, "mouthpiece: %v\n", err)
				return 1
			}
		}
		metrics.Frames.Add(ctx, 1)
	}
	slog.Debug("frames done", "sequence", seq.Name(), "frames", it.Len())
	return 0
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}

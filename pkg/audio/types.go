// Package audio holds the mono sample buffers consumed by the viseme detector
// together with the helpers that get audio into that form: WAV decoding,
// 16-bit PCM conversion, downmixing and resampling.
package audio

import (
	"fmt"
	"math"
)

// Buffer is a mono signal. Samples are normalised to [-1, 1].
type Buffer struct {
	Samples []float64

	// SampleRate in Hz (e.g. 16000 for analysis, 44100 or 48000 for input files).
	SampleRate int
}

// Format describes the sample rate and channel count of interleaved PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Len returns the number of samples.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the signal length in seconds, or 0 for an empty buffer or
// an unset sample rate.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples between from and to seconds, clamped to the
// buffer. The result shares memory with b.
func (b Buffer) Slice(from, to float64) Buffer {
	if b.SampleRate <= 0 {
		return Buffer{SampleRate: b.SampleRate}
	}
	i := clampIndex(int(math.Floor(from*float64(b.SampleRate))), len(b.Samples))
	j := clampIndex(int(math.Ceil(to*float64(b.SampleRate))), len(b.Samples))
	if j < i {
		j = i
	}
	return Buffer{Samples: b.Samples[i:j], SampleRate: b.SampleRate}
}

// Validate reports a missing sample rate on a non-empty buffer.
func (b Buffer) Validate() error {
	if len(b.Samples) > 0 && b.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", b.SampleRate)
	}
	return nil
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float64 {
	var p float64
	for _, s := range b.Samples {
		p = max(p, math.Abs(s))
	}
	return p
}

func clampIndex(i, n int) int {
	return max(0, min(n, i))
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

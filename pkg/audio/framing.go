package audio

import (
	"math"
	"math/bits"
	"time"
)

// Framing is the fixed frame/hop geometry used by every analysis stage, so
// that frame i means the same span of samples to the segmenter and to the
// spectral classifier.
type Framing struct {
	SampleRate  int
	FrameLength int // samples per frame
	HopLength   int // samples between frame starts
}

// NewFraming converts frame and hop durations to sample counts at sampleRate.
// Both are at least one sample.
func NewFraming(sampleRate int, frame, hop time.Duration) Framing {
	return Framing{
		SampleRate:  sampleRate,
		FrameLength: max(1, int(math.Round(frame.Seconds()*float64(sampleRate)))),
		HopLength:   max(1, int(math.Round(hop.Seconds()*float64(sampleRate)))),
	}
}

// Count returns the number of whole frames in n samples. A signal shorter
// than one frame has zero frames.
func (f Framing) Count(n int) int {
	if f.FrameLength <= 0 || f.HopLength <= 0 || n < f.FrameLength {
		return 0
	}
	return 1 + (n-f.FrameLength)/f.HopLength
}

// Frame returns the samples of frame i. The slice shares memory with samples.
func (f Framing) Frame(samples []float64, i int) []float64 {
	start := i * f.HopLength
	return samples[start : start+f.FrameLength]
}

// Hop returns the hop length in seconds.
func (f Framing) Hop() float64 {
	return float64(f.HopLength) / float64(f.SampleRate)
}

// Start returns the start time of frame i in seconds.
func (f Framing) Start(i int) float64 {
	return float64(i*f.HopLength) / float64(f.SampleRate)
}

// Centre returns the time of the middle of frame i in seconds.
func (f Framing) Centre(i int) float64 {
	return (float64(i*f.HopLength) + float64(f.FrameLength)/2) / float64(f.SampleRate)
}

// Index returns the frame whose hop contains time t, not clamped.
func (f Framing) Index(t float64) int {
	return int(math.Floor(t * float64(f.SampleRate) / float64(f.HopLength)))
}

// FFTSize returns the smallest power of two holding one frame.
func (f Framing) FFTSize() int {
	if f.FrameLength <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(f.FrameLength-1))
}

// RMS returns the root mean square of frame, or 0 for an empty frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// FrameEnergies returns the RMS of every frame of samples.
func (f Framing) FrameEnergies(samples []float64) []float64 {
	n := f.Count(len(samples))
	out := make([]float64, n)
	for i := range n {
		out[i] = RMS(f.Frame(samples, i))
	}
	return out
}

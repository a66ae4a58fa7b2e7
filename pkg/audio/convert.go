package audio

import (
	"fmt"
	"math"
)

// FromPCM16 decodes little-endian interleaved int16 PCM into a mono buffer,
// averaging channels. The byte count must be a whole number of frames.
func FromPCM16(pcm []byte, f Format) (Buffer, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return Buffer{}, fmt.Errorf("audio: invalid PCM format %s", formatString(f.SampleRate, f.Channels))
	}
	frameBytes := 2 * f.Channels
	if len(pcm)%frameBytes != 0 {
		return Buffer{}, fmt.Errorf("audio: %d bytes is not a whole number of %s frames", len(pcm), formatString(f.SampleRate, f.Channels))
	}

	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return Buffer{Samples: DownmixToMono(samples, f.Channels), SampleRate: f.SampleRate}, nil
}

// ToPCM16 encodes samples as little-endian int16 PCM, clamping to [-1, 1].
func ToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := pcm16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func pcm16(s float64) int16 {
	switch {
	case math.IsNaN(s):
		return 0
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767.0)
}

// DownmixToMono averages each interleaved frame of channels samples. Mono
// input is returned unchanged; a trailing partial frame is dropped.
func DownmixToMono(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// ResampleLinear resamples mono samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := expectedLength(len(samples), srcRate, dstRate)
	if dstSamples == 0 {
		return nil
	}

	out := make([]float64, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

func expectedLength(n, srcRate, dstRate int) int {
	return int(int64(n) * int64(dstRate) / int64(srcRate))
}

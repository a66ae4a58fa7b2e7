package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
	"gonum.org/v1/gonum/floats"
)

// ResampleMethod selects the sample rate converter.
type ResampleMethod string

const (
	// MethodSoxr uses the band-limited converter from go-audio-resampling.
	MethodSoxr ResampleMethod = "soxr"

	// MethodLinear uses linear interpolation. Cheap, with audible aliasing
	// on downsampling, but fine for energy and coarse formant features.
	MethodLinear ResampleMethod = "linear"
)

// IsValid reports whether m names a known converter.
func (m ResampleMethod) IsValid() bool {
	return m == MethodSoxr || m == MethodLinear
}

// Resampler converts buffers to a target sample rate. If the soxr converter
// fails it logs a warning once and falls back to linear interpolation.
// A Resampler is safe for concurrent use.
type Resampler struct {
	Method ResampleMethod

	warnedFallback sync.Once
}

// NewResampler returns a Resampler using method. An empty method means
// [MethodSoxr].
func NewResampler(method ResampleMethod) *Resampler {
	if method == "" {
		method = MethodSoxr
	}
	return &Resampler{Method: method}
}

// Resample returns buf at rate. A buffer already at rate is returned
// unchanged.
func (r *Resampler) Resample(buf Buffer, rate int) Buffer {
	if buf.SampleRate == rate || buf.SampleRate <= 0 || rate <= 0 || len(buf.Samples) == 0 {
		return buf
	}
	if r.Method != MethodLinear {
		out, err := resampleSoxr(buf.Samples, buf.SampleRate, rate)
		if err == nil {
			return Buffer{Samples: out, SampleRate: rate}
		}
		r.warnedFallback.Do(func() {
			slog.Warn("audio resampler: soxr failed, falling back to linear interpolation",
				"from", formatString(buf.SampleRate, 1),
				"to", formatString(rate, 1),
				"err", err,
			)
		})
	}
	return Buffer{Samples: ResampleLinear(buf.Samples, buf.SampleRate, rate), SampleRate: rate}
}

// maxAlignLag bounds the delay search between the soxr output and the
// linear reference, in seconds of output.
const maxAlignLag = 0.04

// resampleSoxr runs the whole signal through a fresh converter and flushes
// it. The converter's filter delay is removed by aligning its output with the
// linear interpolation of the same signal, which has no delay. Samples the
// converter did not produce after alignment are taken from that reference,
// so the result has exactly n*dst/src samples on the input's time base.
func resampleSoxr(samples []float64, srcRate, dstRate int) ([]float64, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := rs.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d -> %d Hz: %w", srcRate, dstRate, err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("audio: flush resampler: %w", err)
	}
	out = append(out, tail...)

	want := expectedLength(len(samples), srcRate, dstRate)
	ref := ResampleLinear(samples, srcRate, dstRate)
	lag := alignLag(out, ref, int(maxAlignLag*float64(dstRate)))

	aligned := make([]float64, want)
	for i := range aligned {
		switch j := i + lag; {
		case j >= 0 && j < len(out):
			aligned[i] = out[j]
		case i < len(ref):
			aligned[i] = ref[i]
		}
	}
	return aligned, nil
}

// alignLag returns the shift of out against ref, within ±maxLag, that
// maximises their cross-correlation: out[i+lag] lines up with ref[i]. Ties,
// including all-silent input, keep the smallest shift.
func alignLag(out, ref []float64, maxLag int) int {
	best, bestScore := 0, math.Inf(-1)
	for _, lag := range lagOrder(maxLag) {
		// ref[lo:hi] overlaps out[lo+lag:hi+lag].
		lo, hi := max(0, -lag), min(len(ref), len(out)-lag)
		if lo >= hi {
			continue
		}
		score := floats.Dot(ref[lo:hi], out[lo+lag:hi+lag])
		if score > bestScore {
			best, bestScore = lag, score
		}
	}
	return best
}

// lagOrder lists 0, 1, -1, 2, -2 ... up to maxLag.
func lagOrder(maxLag int) []int {
	lags := make([]int, 0, 2*maxLag+1)
	lags = append(lags, 0)
	for l := 1; l <= maxLag; l++ {
		lags = append(lags, l, -l)
	}
	return lags
}

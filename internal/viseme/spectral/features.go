package spectral

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/mouthpiece/pkg/audio"
)

// Feature extraction errors.
var (
	ErrEmptyFrame = errors.New("spectral: empty frame")
	ErrNonFinite  = errors.New("spectral: frame contains NaN or Inf samples")
)

// Features are the per-frame measurements the decision rule works on.
type Features struct {
	// Height is the magnitude-weighted centroid of the low band, a stand-in
	// for the first formant. It rises as the jaw opens.
	Height float64

	// Backness is the centroid of the mid band, a stand-in for the second
	// formant. It falls as the lips round.
	Backness float64

	// Centroid is the full-band spectral centroid.
	Centroid float64

	// Energy is the frame RMS.
	Energy float64

	// Pitch is the autocorrelation fundamental, or 0 when unvoiced.
	Pitch float64
}

// extractor holds the FFT plan and window for one framing. It is not safe
// for concurrent use.
type extractor struct {
	cfg     Config
	framing audio.Framing
	fft     *fourier.FFT
	window  []float64
	padded  []float64
	coeffs  []complex128
	mags    []float64
}

func newExtractor(cfg Config, f audio.Framing) *extractor {
	n := f.FFTSize()
	return &extractor{
		cfg:     cfg,
		framing: f,
		fft:     fourier.NewFFT(n),
		window:  hann(f.FrameLength),
		padded:  make([]float64, n),
		coeffs:  make([]complex128, n/2+1),
		mags:    make([]float64, n/2+1),
	}
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func (x *extractor) extract(frame []float64) (Features, error) {
	if len(frame) == 0 {
		return Features{}, ErrEmptyFrame
	}
	for _, s := range frame {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Features{}, ErrNonFinite
		}
	}

	clear(x.padded)
	for i, s := range frame {
		x.padded[i] = s * x.window[i]
	}
	x.coeffs = x.fft.Coefficients(x.coeffs, x.padded)
	for k, c := range x.coeffs {
		x.mags[k] = cmplx.Abs(c)
	}

	nyquist := float64(x.framing.SampleRate) / 2
	return Features{
		Height:   x.centroid(x.cfg.HeightLow, x.cfg.HeightHigh),
		Backness: x.centroid(x.cfg.BacknessLow, x.cfg.BacknessHigh),
		Centroid: x.centroid(0, nyquist),
		Energy:   audio.RMS(frame),
		Pitch:    x.pitch(frame),
	}, nil
}

// centroid returns the magnitude-weighted mean frequency of the bins in
// [lo, hi], or 0 when the band holds no energy.
func (x *extractor) centroid(lo, hi float64) float64 {
	binHz := float64(x.framing.SampleRate) / float64(x.fft.Len())
	first := max(0, int(math.Ceil(lo/binHz)))
	last := min(len(x.mags)-1, int(math.Floor(hi/binHz)))

	var num, den float64
	for k := first; k <= last; k++ {
		num += float64(k) * binHz * x.mags[k]
		den += x.mags[k]
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// pitch estimates the fundamental from the strongest autocorrelation peak
// between PitchMin and PitchMax.
func (x *extractor) pitch(frame []float64) float64 {
	sr := float64(x.framing.SampleRate)
	minLag := max(1, int(math.Floor(sr/x.cfg.PitchMax)))
	maxLag := min(len(frame)-1, int(math.Ceil(sr/x.cfg.PitchMin)))
	if minLag >= maxLag {
		return 0
	}

	var r0 float64
	for _, s := range frame {
		r0 += s * s
	}
	if r0 == 0 {
		return 0
	}

	bestLag, best := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var r float64
		for i := 0; i+lag < len(frame); i++ {
			r += frame[i] * frame[i+lag]
		}
		if r > best {
			bestLag, best = lag, r
		}
	}
	if bestLag == 0 || best/r0 < x.cfg.VoicingThreshold {
		return 0
	}
	return sr / float64(bestLag)
}

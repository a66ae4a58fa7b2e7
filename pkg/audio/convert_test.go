package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mouthpiece/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func sine(freq float64, rate int, d time.Duration) []float64 {
	n := int(d.Seconds() * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestFromPCM16_Mono(t *testing.T) {
	t.Parallel()

	buf, err := audio.FromPCM16(samplesToBytes([]int16{0, 16384, -32768}), audio.Format{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("FromPCM16: %v", err)
	}
	want := []float64{0, 0.5, -1}
	if len(buf.Samples) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(buf.Samples), len(want))
	}
	for i := range want {
		if buf.Samples[i] != want[i] {
			t.Errorf("sample %d: got %g, want %g", i, buf.Samples[i], want[i])
		}
	}
	if buf.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", buf.SampleRate)
	}
}

func TestFromPCM16_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Two stereo frames: L=16384,R=0 and L=-16384,R=-16384
	buf, err := audio.FromPCM16(samplesToBytes([]int16{16384, 0, -16384, -16384}), audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("FromPCM16: %v", err)
	}
	want := []float64{0.25, -0.5}
	if len(buf.Samples) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(buf.Samples), len(want))
	}
	for i := range want {
		if buf.Samples[i] != want[i] {
			t.Errorf("sample %d: got %g, want %g", i, buf.Samples[i], want[i])
		}
	}
}

func TestFromPCM16_Errors(t *testing.T) {
	t.Parallel()

	if _, err := audio.FromPCM16([]byte{1, 2, 3}, audio.Format{SampleRate: 16000, Channels: 1}); err == nil {
		t.Error("odd byte count should fail")
	}
	if _, err := audio.FromPCM16([]byte{1, 2}, audio.Format{SampleRate: 16000, Channels: 2}); err == nil {
		t.Error("partial stereo frame should fail")
	}
	if _, err := audio.FromPCM16(nil, audio.Format{}); err == nil {
		t.Error("zero format should fail")
	}
}

func TestToPCM16_Clamping(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.ToPCM16([]float64{2, -2, 0, math.NaN()}))
	want := []int16{32767, -32768, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleLinear(t *testing.T) {
	t.Parallel()

	in := []float64{0, 1, 0, -1}
	out := audio.ResampleLinear(in, 8000, 16000)
	want := []float64{0, 0.5, 1, 0.5, 0, -0.5, -1, -1}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("sample %d: got %g, want %g", i, out[i], want[i])
		}
	}

	same := audio.ResampleLinear(in, 16000, 16000)
	if &same[0] != &in[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampler_Length(t *testing.T) {
	t.Parallel()

	in := audio.Buffer{Samples: sine(440, 48000, 500*time.Millisecond), SampleRate: 48000}
	for _, m := range []audio.ResampleMethod{audio.MethodSoxr, audio.MethodLinear} {
		out := audio.NewResampler(m).Resample(in, 16000)
		if out.SampleRate != 16000 {
			t.Errorf("%s: SampleRate = %d", m, out.SampleRate)
		}
		if out.Len() != 8000 {
			t.Errorf("%s: Len = %d, want 8000", m, out.Len())
		}
	}
}

func TestResampler_PreservesTiming(t *testing.T) {
	t.Parallel()

	const src, dst = 48000, 16000
	bump := make([]float64, src)
	for i := range bump {
		d := (float64(i)/src - 0.5) / 0.001
		bump[i] = math.Exp(-d * d / 2)
	}
	tone := sine(300, src, time.Second)

	for _, m := range []audio.ResampleMethod{audio.MethodSoxr, audio.MethodLinear} {
		t.Run(string(m), func(t *testing.T) {
			t.Parallel()
			r := audio.NewResampler(m)

			out := r.Resample(audio.Buffer{Samples: bump, SampleRate: src}, dst)
			peak := 0
			for i, v := range out.Samples {
				if v > out.Samples[peak] {
					peak = i
				}
			}
			if got := float64(peak) / dst; math.Abs(got-0.5) > 1.0/dst {
				t.Errorf("bump peak at %.4fs, want 0.5000s", got)
			}

			out = r.Resample(audio.Buffer{Samples: tone, SampleRate: src}, dst)
			if out.Len() != dst {
				t.Fatalf("Len = %d, want %d", out.Len(), dst)
			}
			last := out.Slice(0.99, 1)
			if rms := audio.RMS(last.Samples); rms < 0.2 {
				t.Errorf("RMS of the last 10ms = %.3f, want the tone (about 0.35)", rms)
			}
		})
	}
}

func TestBuffer_SliceAndDuration(t *testing.T) {
	t.Parallel()

	buf := audio.Buffer{Samples: make([]float64, 1600), SampleRate: 16000}
	if d := buf.Duration(); d != 0.1 {
		t.Errorf("Duration = %g, want 0.1", d)
	}
	if n := buf.Slice(0.05, 0.2).Len(); n != 800 {
		t.Errorf("Slice(0.05, 0.2).Len = %d, want 800", n)
	}
	if n := buf.Slice(-1, 0.01).Len(); n != 160 {
		t.Errorf("Slice(-1, 0.01).Len = %d, want 160", n)
	}
	if n := buf.Slice(0.09, 0.01).Len(); n != 0 {
		t.Errorf("inverted Slice.Len = %d, want 0", n)
	}
}

func TestFraming(t *testing.T) {
	t.Parallel()

	f := audio.NewFraming(16000, 25*time.Millisecond, 10*time.Millisecond)
	if f.FrameLength != 400 || f.HopLength != 160 {
		t.Fatalf("framing = %+v, want 400/160", f)
	}
	if got := f.FFTSize(); got != 512 {
		t.Errorf("FFTSize = %d, want 512", got)
	}

	tests := []struct {
		n, want int
	}{
		{0, 0},
		{399, 0},
		{400, 1},
		{559, 1},
		{560, 2},
		{16000, 98},
	}
	for _, tt := range tests {
		if got := f.Count(tt.n); got != tt.want {
			t.Errorf("Count(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
	if got := f.Start(3); math.Abs(got-0.03) > 1e-12 {
		t.Errorf("Start(3) = %g, want 0.03", got)
	}
	if got := f.Centre(0); math.Abs(got-0.0125) > 1e-12 {
		t.Errorf("Centre(0) = %g, want 0.0125", got)
	}
	if got := f.Index(0.035); got != 3 {
		t.Errorf("Index(0.035) = %d, want 3", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %g", got)
	}
	if got := audio.RMS([]float64{0.5, -0.5, 0.5, -0.5}); got != 0.5 {
		t.Errorf("RMS = %g, want 0.5", got)
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := audio.Buffer{Samples: sine(300, 16000, 200*time.Millisecond), SampleRate: 16000}
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := audio.EncodeWAV(f, in); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := audio.LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if out.SampleRate != 16000 || out.Len() != in.Len() {
		t.Fatalf("decoded %d samples at %d Hz, want %d at 16000", out.Len(), out.SampleRate, in.Len())
	}
	for i := range in.Samples {
		if math.Abs(out.Samples[i]-in.Samples[i]) > 1e-3 {
			t.Fatalf("sample %d: got %g, want %g", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAV(strings.NewReader("definitely not a riff file"))
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("error = %v, want ErrInvalidWAV", err)
	}
}

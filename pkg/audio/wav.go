package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for input that is not a RIFF/WAVE PCM file.
var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// LoadWAV decodes the WAV file at path into a mono buffer.
func LoadWAV(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	buf, err := DecodeWAV(f)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return buf, nil
}

// DecodeWAV reads an integer PCM WAV stream, normalises samples by the source
// bit depth and downmixes to mono.
func DecodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: read PCM: %w", err)
	}
	if ib.Format == nil || ib.Format.SampleRate <= 0 || ib.Format.NumChannels <= 0 {
		return Buffer{}, fmt.Errorf("%w: missing format chunk", ErrInvalidWAV)
	}

	depth := ib.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return Buffer{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}

	// 8-bit WAV is unsigned, everything wider is signed.
	scale := float64(int64(1) << (depth - 1))
	var offset float64
	if depth == 8 {
		offset = scale
	}
	samples := make([]float64, len(ib.Data))
	for i, v := range ib.Data {
		samples[i] = (float64(v) - offset) / scale
	}

	return Buffer{
		Samples:    DownmixToMono(samples, ib.Format.NumChannels),
		SampleRate: ib.Format.SampleRate,
	}, nil
}

// EncodeWAV writes buf as a 16-bit mono PCM WAV stream.
func EncodeWAV(w io.WriteSeeker, buf Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, buf.SampleRate, 16, 1, 1)

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(pcm16(s))
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("audio: write WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close WAV encoder: %w", err)
	}
	return nil
}

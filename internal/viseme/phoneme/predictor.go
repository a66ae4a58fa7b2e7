package phoneme

import (
	"fmt"
	"strings"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

// vowelShapes maps stress-free ARPAbet vowels to the mouth shapes they
// produce. Diphthongs list both ends of the glide in order. Consonants are
// absent and contribute nothing.
var vowelShapes = map[string][]track.MouthShape{
	"AA": {track.MouthOpen},
	"AE": {track.MouthOpen},
	"AH": {track.MouthOpen},
	"EH": {track.MouthOpen},
	"ER": {track.MouthOpen},
	"EY": {track.MouthOpen},
	"IH": {track.MouthOpen},
	"IY": {track.MouthOpen},

	"AO": {track.MouthRounded},
	"OW": {track.MouthRounded},
	"UH": {track.MouthRounded},
	"UW": {track.MouthRounded},

	"AW": {track.MouthOpen, track.MouthRounded},
	"AY": {track.MouthOpen, track.MouthOpen},
	"OY": {track.MouthRounded, track.MouthOpen},

	// TIMIT reduced vowels, emitted by some converters.
	"AX":  {track.MouthOpen},
	"AXR": {track.MouthOpen},
	"IX":  {track.MouthOpen},
	"UX":  {track.MouthRounded},
}

// StripStress removes trailing stress digits: "AH0" becomes "AH".
func StripStress(ph string) string {
	return strings.TrimRight(strings.ToUpper(ph), "012")
}

// IsVowel reports whether ph, with or without stress, is a vowel.
func IsVowel(ph string) bool {
	_, ok := vowelShapes[StripStress(ph)]
	return ok
}

// Shapes maps a phoneme sequence to its expected mouth shapes.
func Shapes(phonemes []string) []track.MouthShape {
	var out []track.MouthShape
	for _, ph := range phonemes {
		out = append(out, vowelShapes[StripStress(ph)]...)
	}
	return out
}

// Predictor turns text into an ordered, untimed sequence of expected mouth
// shapes. It is safe for concurrent use when its Phonemizer is.
type Predictor struct {
	phonemizer Phonemizer
}

// NewPredictor returns a Predictor using ph.
func NewPredictor(ph Phonemizer) *Predictor {
	return &Predictor{phonemizer: ph}
}

// NewDefaultPredictor returns a Predictor over the embedded dictionary with
// phonetic lookup enabled.
func NewDefaultPredictor() (*Predictor, error) {
	dict, err := DefaultDictionary()
	if err != nil {
		return nil, err
	}
	return NewPredictor(NewDictionaryPhonemizer(dict)), nil
}

// Predict returns the expected shapes for text. Empty or whitespace-only
// text yields no shapes.
func (p *Predictor) Predict(text string) ([]track.MouthShape, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	phs, err := p.phonemizer.Phonemize(text)
	if err != nil {
		return nil, fmt.Errorf("phoneme: phonemize: %w", err)
	}
	return Shapes(phs), nil
}

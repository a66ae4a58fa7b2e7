// Package phoneme predicts the sequence of mouth shapes a text will produce
// when spoken.
//
// Text is converted to ARPAbet phonemes by a [Phonemizer]. The default
// [DictionaryPhonemizer] resolves each word in three steps:
//
//  1. Dictionary lookup in a CMU-format pronunciation dictionary.
//  2. Phonetic nearest-neighbour lookup: dictionary words sharing a Double
//     Metaphone code with the unknown word are ranked by Jaro-Winkler
//     similarity, and the best one is used if it clears the threshold. This
//     absorbs typos and spelling variants ("helo", "wurld").
//  3. Letter-to-sound [Rules] as the last resort.
//
// A [Predictor] strips stress digits and maps each vowel to one mouth shape,
// or two for diphthongs.
package phoneme

import (
	"log/slog"
	"strings"
	"unicode"
)

// Phonemizer converts text into ARPAbet phonemes, with or without stress
// digits.
type Phonemizer interface {
	Phonemize(text string) ([]string, error)
}

const defaultPhoneticThreshold = 0.85

// Option is a functional option for configuring a [DictionaryPhonemizer].
type Option func(*DictionaryPhonemizer)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically similar dictionary word to stand in for an unknown word.
// Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(p *DictionaryPhonemizer) {
		p.phoneticThreshold = threshold
	}
}

// WithoutPhoneticLookup disables the nearest-neighbour step, so unknown
// words go straight to the letter rules.
func WithoutPhoneticLookup() Option {
	return func(p *DictionaryPhonemizer) {
		p.phonetic = false
	}
}

// DictionaryPhonemizer is the dictionary-first [Phonemizer]. It is
// read-only after construction and safe for concurrent use.
type DictionaryPhonemizer struct {
	dict              *Dictionary
	phonetic          bool
	phoneticThreshold float64
}

// NewDictionaryPhonemizer returns a phonemizer backed by dict.
func NewDictionaryPhonemizer(dict *Dictionary, opts ...Option) *DictionaryPhonemizer {
	p := &DictionaryPhonemizer{
		dict:              dict,
		phonetic:          true,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Phonemize converts every word of text.
func (p *DictionaryPhonemizer) Phonemize(text string) ([]string, error) {
	var out []string
	for _, w := range Tokenize(text) {
		out = append(out, p.word(w)...)
	}
	return out, nil
}

func (p *DictionaryPhonemizer) word(w string) []string {
	if ph, ok := p.dict.Lookup(w); ok {
		return ph
	}
	if p.phonetic {
		if match, score, ok := p.dict.Nearest(w, p.phoneticThreshold); ok {
			slog.Debug("phoneme: using phonetic neighbour for unknown word",
				"word", w, "match", match, "score", score)
			ph, _ := p.dict.Lookup(match)
			return ph
		}
	}
	slog.Debug("phoneme: using letter rules for unknown word", "word", w)
	return WordToPhonemes(w)
}

// abbreviations are expanded before tokenising.
var abbreviations = [][2]string{
	{"mr.", "mister"},
	{"mrs.", "missus"},
	{"dr.", "doctor"},
	{"st.", "saint"},
	{"vs.", "versus"},
	{"etc.", "etcetera"},
	{"e.g.", "for example"},
	{"i.e.", "that is"},
}

var digitWords = [10]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// Tokenize lower-cases text, expands common abbreviations, spells out digits
// and splits into words of letters and apostrophes. Punctuation separates
// words and is otherwise dropped.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if w := strings.Trim(cur.String(), "'"); w != "" {
			tokens = append(tokens, w)
		}
		cur.Reset()
	}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = expandAbbreviation(field)
		for _, r := range field {
			switch {
			case unicode.IsLetter(r) || r == '\'' || r == '’':
				if r == '’' {
					r = '\''
				}
				cur.WriteRune(r)
			case r >= '0' && r <= '9':
				flush()
				tokens = append(tokens, digitWords[r-'0'])
			default:
				flush()
			}
		}
		flush()
	}
	return tokens
}

// expandAbbreviation replaces a whole whitespace-delimited field that is an
// abbreviation, ignoring surrounding punctuation.
func expandAbbreviation(field string) string {
	core := strings.TrimLeft(field, "\"'([")
	for _, pair := range abbreviations {
		rest, ok := strings.CutPrefix(core, pair[0])
		if ok && strings.TrimFunc(rest, unicode.IsPunct) == "" {
			return pair[1]
		}
	}
	return field
}

package phoneme

import "strings"

// Rules is a letter-to-sound converter for words missing from the
// dictionary. It applies longest-match grapheme rules, handles a silent
// final e and lengthens the vowel before it ("make", "home"). The result is
// rough but always yields vowels where a reader would expect them, which is
// all the shape predictor needs.
type Rules struct{}

// Phonemize converts every word of text.
func (Rules) Phonemize(text string) ([]string, error) {
	var out []string
	for _, w := range Tokenize(text) {
		out = append(out, WordToPhonemes(w)...)
	}
	return out, nil
}

// maxRuleLen is the longest grapheme key in graphemeRules.
const maxRuleLen = 4

// graphemeRules maps letter sequences to ARPAbet phonemes. An empty slice
// marks a silent sequence.
var graphemeRules = map[string][]string{
	// Multi-character rules
	"tion": {"SH", "AH", "N"},
	"sion": {"ZH", "AH", "N"},
	"ough": {"AO"},
	"augh": {"AO"},
	"ight": {"AY", "T"},
	"eigh": {"EY"},

	"igh": {"AY"},
	"tch": {"CH"},
	"dge": {"JH"},
	"sch": {"S", "K"},
	"ear": {"IH", "R"},
	"air": {"EH", "R"},
	"oor": {"AO", "R"},
	"our": {"AW", "R"},

	"th": {"TH"},
	"sh": {"SH"},
	"ch": {"CH"},
	"ph": {"F"},
	"wh": {"W"},
	"ng": {"NG"},
	"ck": {"K"},
	"qu": {"K", "W"},
	"kn": {"N"},
	"wr": {"R"},
	"gh": {},
	"ee": {"IY"},
	"ea": {"IY"},
	"oo": {"UW"},
	"ou": {"AW"},
	"ow": {"OW"},
	"oi": {"OY"},
	"oy": {"OY"},
	"ai": {"EY"},
	"ay": {"EY"},
	"au": {"AO"},
	"aw": {"AO"},
	"ie": {"IY"},
	"ei": {"EY"},
	"ey": {"EY"},
	"ue": {"UW"},
	"ew": {"UW"},
	"oa": {"OW"},
	"er": {"ER"},
	"ir": {"ER"},
	"ur": {"ER"},
	"ar": {"AA", "R"},
	"or": {"AO", "R"},

	// Single characters
	"a": {"AE"},
	"b": {"B"},
	"c": {"K"},
	"d": {"D"},
	"e": {"EH"},
	"f": {"F"},
	"g": {"G"},
	"h": {"HH"},
	"i": {"IH"},
	"j": {"JH"},
	"k": {"K"},
	"l": {"L"},
	"m": {"M"},
	"n": {"N"},
	"o": {"AA"},
	"p": {"P"},
	"q": {"K"},
	"r": {"R"},
	"s": {"S"},
	"t": {"T"},
	"u": {"AH"},
	"v": {"V"},
	"w": {"W"},
	"x": {"K", "S"},
	"z": {"Z"},
}

// longVowels is the vowel a single vowel letter takes before a silent final e.
var longVowels = map[byte]string{
	'a': "EY",
	'e': "IY",
	'i': "AY",
	'o': "OW",
	'u': "UW",
}

func isVowelLetter(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

// WordToPhonemes converts one lower-case word with letter rules.
func WordToPhonemes(word string) []string {
	word = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(word))
	if word == "" {
		return nil
	}

	end := len(word)
	magic := -1
	if n := len(word); n >= 3 && word[n-1] == 'e' && !isVowelLetter(word[n-2]) && word[n-2] != 'e' {
		end = n - 1
		if isVowelLetter(word[n-3]) && (n < 4 || !isVowelLetter(word[n-4])) {
			magic = n - 3
		}
	}

	var out []string
	for i := 0; i < end; {
		c := word[i]
		switch {
		case i == magic:
			out = append(out, longVowels[c])
			i++
			continue
		case c == 'y':
			out = append(out, yPhoneme(i, end))
			i++
			continue
		case i > 0 && c == word[i-1] && !isVowelLetter(c):
			// Doubled consonants sound once.
			i++
			continue
		}

		matched := false
		for l := min(maxRuleLen, end-i); l >= 2; l-- {
			if ph, ok := graphemeRules[word[i:i+l]]; ok {
				out = append(out, ph...)
				i += l
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, graphemeRules[string(c)]...)
			i++
		}
	}
	return out
}

func yPhoneme(i, end int) string {
	switch {
	case i == 0:
		return "Y"
	case i == end-1:
		return "IY"
	}
	return "IH"
}

package phoneme

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

//go:embed data/cmudict-subset.dict
var defaultDictionary string

// Dictionary maps lower-case words to ARPAbet pronunciations. It also keeps
// a Double Metaphone index of its words for nearest-neighbour lookup of
// misspelled or unknown words. A Dictionary is read-only after loading and
// safe for concurrent use.
type Dictionary struct {
	entries map[string][]string
	byCode  map[string][]string
}

// DefaultDictionary parses the embedded dictionary subset.
func DefaultDictionary() (*Dictionary, error) {
	return LoadDictionary(strings.NewReader(defaultDictionary))
}

// LoadDictionaryFile reads a CMU-format dictionary from path.
func LoadDictionaryFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phoneme: open dictionary %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadDictionary(f)
	if err != nil {
		return nil, fmt.Errorf("phoneme: load dictionary %q: %w", path, err)
	}
	return d, nil
}

// LoadDictionary parses CMU Pronouncing Dictionary lines of the form
//
//	WORD  PH0 PH1 ...
//
// Lines starting with ";;;" are comments. Alternate pronunciations, written
// WORD(1), are skipped so each word keeps its primary pronunciation.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{
		entries: make(map[string][]string),
		byCode:  make(map[string][]string),
	}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";;;") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("phoneme: dictionary line %d: want a word and at least one phoneme, got %q", line, text)
		}
		word := fields[0]
		if strings.HasSuffix(word, ")") && strings.Contains(word, "(") {
			continue
		}
		word = strings.ToLower(word)
		if _, dup := d.entries[word]; dup {
			continue
		}
		d.entries[word] = slices.Clone(fields[1:])
		d.index(word)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phoneme: read dictionary: %w", err)
	}
	return d, nil
}

func (d *Dictionary) index(word string) {
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		d.byCode[p] = append(d.byCode[p], word)
	}
	if s != "" && s != p {
		d.byCode[s] = append(d.byCode[s], word)
	}
}

// Len returns the number of words.
func (d *Dictionary) Len() int { return len(d.entries) }

// Lookup returns the pronunciation of word, matched case-insensitively.
func (d *Dictionary) Lookup(word string) ([]string, bool) {
	ph, ok := d.entries[strings.ToLower(word)]
	if !ok {
		return nil, false
	}
	return slices.Clone(ph), true
}

// Nearest finds the dictionary word that sounds most like word: candidates
// share a Double Metaphone code with it and are ranked by Jaro-Winkler
// similarity. It reports false when no candidate reaches threshold.
func (d *Dictionary) Nearest(word string, threshold float64) (match string, score float64, ok bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", 0, false
	}
	p, s := matchr.DoubleMetaphone(word)
	seen := make(map[string]struct{})
	for _, code := range []string{p, s} {
		if code == "" {
			continue
		}
		for _, cand := range d.byCode[code] {
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			js := matchr.JaroWinkler(word, cand, false)
			if js > score || (js == score && cand < match) {
				match, score = cand, js
			}
		}
	}
	if match == "" || score < threshold {
		return "", 0, false
	}
	return match, score, true
}

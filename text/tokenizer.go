// Package text turns raw component descriptions into fixed-length integer
// sequences.
package text

import (
	"sort"
	"strings"
)

// DefaultFilters are the characters replaced by a space before splitting.
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Tokenizer builds a frequency ranked vocabulary.
//
// Word indices start at 1; index 0 is reserved for padding. Only words with
// an index below NumWords are emitted by TextsToSequences, so a sequence
// never references more than NumWords-1 distinct words.
type Tokenizer struct {
	// NumWords caps the vocabulary used by TextsToSequences. Zero means
	// unlimited.
	NumWords int
	Filters  string
	Lower    bool

	counts    map[string]int
	order     []string // words in order of first appearance
	wordIndex map[string]int
	docs      int
}

// NewTokenizer returns a tokenizer with the default filters and lower-casing.
func NewTokenizer(numWords int) *Tokenizer {
	return &Tokenizer{
		NumWords: numWords,
		Filters:  DefaultFilters,
		Lower:    true,
	}
}

// Words splits a text into tokens.
func (t *Tokenizer) Words(text string) []string {
	if t.Lower {
		text = strings.ToLower(text)
	}
	if t.Filters != "" {
		text = strings.Map(func(r rune) rune {
			if strings.ContainsRune(t.Filters, r) {
				return ' '
			}
			return r
		}, text)
	}

	fields := strings.Split(text, " ")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FitOnTexts updates the vocabulary with texts and rebuilds the word index.
func (t *Tokenizer) FitOnTexts(texts []string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}

	for _, text := range texts {
		t.docs++
		for _, w := range t.Words(text) {
			if _, seen := t.counts[w]; !seen {
				t.order = append(t.order, w)
			}
			t.counts[w]++
		}
	}

	ranked := make([]string, len(t.order))
	copy(ranked, t.order)
	// Stable sort keeps first appearance as the tie breaker.
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.counts[ranked[i]] > t.counts[ranked[j]]
	})

	t.wordIndex = make(map[string]int, len(ranked))
	for i, w := range ranked {
		t.wordIndex[w] = i + 1
	}
}

// TextsToSequences maps each text to the indices of its known words.
func (t *Tokenizer) TextsToSequences(texts []string) [][]int {
	seqs := make([][]int, len(texts))
	for i, text := range texts {
		words := t.Words(text)
		seq := make([]int, 0, len(words))
		for _, w := range words {
			idx, ok := t.wordIndex[w]
			if !ok {
				continue
			}
			if t.NumWords > 0 && idx >= t.NumWords {
				continue
			}
			seq = append(seq, idx)
		}
		seqs[i] = seq
	}
	return seqs
}

// WordIndex returns a copy of the word to index mapping over the full
// vocabulary.
func (t *Tokenizer) WordIndex() map[string]int {
	out := make(map[string]int, len(t.wordIndex))
	for w, i := range t.wordIndex {
		out[w] = i
	}
	return out
}

// WordCounts returns a copy of the word frequencies.
func (t *Tokenizer) WordCounts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for w, c := range t.counts {
		out[w] = c
	}
	return out
}

// DocumentCount returns the number of texts seen by FitOnTexts.
func (t *Tokenizer) DocumentCount() int {
	return t.docs
}

// VocabularySize returns the number of distinct words seen.
func (t *Tokenizer) VocabularySize() int {
	return len(t.wordIndex)
}

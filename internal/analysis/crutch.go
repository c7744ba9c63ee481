package analysis

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on runs of non-alphanumeric runes
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeCrutchWords case-folds entries, collapses inner whitespace and
// drops empties and duplicates, keeping first-seen order.
func NormalizeCrutchWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		key := strings.Join(Tokenize(w), " ")
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

type phrase struct {
	key    string
	tokens []string
}

// CrutchWordDetector counts configured filler words and multi-word phrases
type CrutchWordDetector struct {
	singles map[string]struct{}
	phrases []phrase
}

// NewCrutchWordDetector builds a detector. Entries with more than one token are phrases.
func NewCrutchWordDetector(words []string) *CrutchWordDetector {
	d := &CrutchWordDetector{singles: make(map[string]struct{})}
	for _, key := range NormalizeCrutchWords(words) {
		tokens := strings.Fields(key)
		if len(tokens) == 1 {
			d.singles[key] = struct{}{}
		} else {
			d.phrases = append(d.phrases, phrase{key: key, tokens: tokens})
		}
	}
	return d
}

// Count returns occurrences per entry in text. Phrases are tried first, in
// configured order; a matched phrase consumes all its tokens.
func (d *CrutchWordDetector) Count(text string) map[string]int {
	return d.countTokens(Tokenize(text))
}

func (d *CrutchWordDetector) countTokens(tokens []string) map[string]int {
	counts := make(map[string]int)

	for i := 0; i < len(tokens); {
		if p, ok := d.matchPhrase(tokens, i); ok {
			counts[p.key]++
			i += len(p.tokens)
			continue
		}
		if _, ok := d.singles[tokens[i]]; ok {
			counts[tokens[i]]++
		}
		i++
	}
	return counts
}

func (d *CrutchWordDetector) matchPhrase(tokens []string, at int) (phrase, bool) {
	for _, p := range d.phrases {
		if at+len(p.tokens) > len(tokens) {
			continue
		}
		matched := true
		for j, t := range p.tokens {
			if tokens[at+j] != t {
				matched = false
				break
			}
		}
		if matched {
			return p, true
		}
	}
	return phrase{}, false
}

// CrutchTally accumulates counts across a recording fed with cumulative
// transcripts. The open utterance is recounted on each update and banked
// once a later update starts a new one.
type CrutchTally struct {
	detector   *CrutchWordDetector
	utterances Utterances
	banked     map[string]int
	current    map[string]int
}

func NewCrutchTally(d *CrutchWordDetector) *CrutchTally {
	return &CrutchTally{
		detector: d,
		banked:   make(map[string]int),
		current:  make(map[string]int),
	}
}

// Update replaces the open utterance's counts with those of text
func (t *CrutchTally) Update(text string, final bool) {
	tokens := Tokenize(text)
	if t.utterances.Advance(tokens, final) {
		for k, v := range t.current {
			t.banked[k] += v
		}
	}
	t.current = t.detector.countTokens(tokens)
}

// Counts returns a copy of the accumulated counts
func (t *CrutchTally) Counts() map[string]int {
	out := make(map[string]int, len(t.banked)+len(t.current))
	for k, v := range t.banked {
		out[k] += v
	}
	for k, v := range t.current {
		out[k] += v
	}
	return out
}

// Total sums all counts
func (t *CrutchTally) Total() int {
	total := 0
	for _, v := range t.banked {
		total += v
	}
	for _, v := range t.current {
		total += v
	}
	return total
}

func (t *CrutchTally) Reset() {
	t.utterances.Reset()
	t.banked = make(map[string]int)
	t.current = make(map[string]int)
}

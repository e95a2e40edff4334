package detect

import (
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"
)

// KeywordMatcher does fuzzy matching of recognized words against expected
// document keywords (e.g. "REPUBLIC", "PHILIPPINES").
type KeywordMatcher struct {
	keywords []string
	// Maximum edit distance as a fraction of the keyword length.
	tolerance float64
}

// NewKeywordMatcher normalizes keywords once. A tolerance of 0.25 allows one
// edit per four characters.
func NewKeywordMatcher(keywords []string, tolerance float64) *KeywordMatcher {
	m := &KeywordMatcher{tolerance: tolerance}
	for _, k := range keywords {
		if n := normalizeWord(k); n != "" {
			m.keywords = append(m.keywords, n)
		}
	}
	return m
}

// Empty reports whether no keywords are configured.
func (m *KeywordMatcher) Empty() bool { return len(m.keywords) == 0 }

// Match returns the first keyword matched by any word, and whether one was found.
func (m *KeywordMatcher) Match(words []string) (string, bool) {
	for _, w := range words {
		nw := normalizeWord(w)
		if nw == "" {
			continue
		}
		for _, k := range m.keywords {
			maxDist := int(float64(len(k)) * m.tolerance)
			if levenshtein.Distance(nw, k) <= maxDist {
				return k, true
			}
		}
	}
	return "", false
}

func normalizeWord(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

// Accept reports whether words form a positive detection: at least minWords
// words and, when keywords are configured, at least one keyword match.
func (m *KeywordMatcher) Accept(words []string, minWords int) (string, bool) {
	if len(words) < minWords {
		return "", false
	}
	if m.Empty() {
		return "", true
	}
	return m.Match(words)
}

// NormalizeWord upper-cases s and strips everything but letters and digits.
func NormalizeWord(s string) string { return normalizeWord(s) }

package utils

import "strings"

// germanEndings are the inflection suffixes tolerated when matching a
// forbidden word against generated text. "treffen" should also catch
// "treffens", "Park" should catch "Parks", and so on.
var germanEndings = []string{"", "s", "n", "e", "en", "er", "es"}

// GenerateInflections generates the tolerated inflected forms of a base term.
func GenerateInflections(baseTerm string) []string {
	if len(baseTerm) < 2 {
		return []string{baseTerm}
	}

	variations := make([]string, 0, len(germanEndings))
	for _, ending := range germanEndings {
		variations = append(variations, baseTerm+ending)
	}

	return RemoveDuplicates(variations)
}

// ContainsWord reports whether any inflected form of word occurs in text as a
// whole word. Both arguments are expected to be lowercase already.
func ContainsWord(text, word string) bool {
	if word == "" {
		return false
	}

	for _, form := range GenerateInflections(word) {
		idx := 0

		for {
			pos := strings.Index(text[idx:], form)
			if pos < 0 {
				break
			}

			start := idx + pos
			end := start + len(form)

			if isWordBoundary(text, start-1) && isWordBoundary(text, end) {
				return true
			}

			idx = start + 1
		}
	}

	return false
}

// isWordBoundary reports whether position i in text is outside the text or a
// non-letter byte. Multi-byte runes count as letters, which is the safe side
// for umlauts inside words.
func isWordBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}

	c := text[i]
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return false
	}

	// Continuation or start of a multi-byte rune (umlauts, ß)
	return c < 0x80
}

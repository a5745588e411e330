package utils

import (
	"regexp"
	"strings"
)

// MultipleSpaces matches any sequence of whitespace (including newlines).
var MultipleSpaces = regexp.MustCompile(`\s+`)

// tokenSplitter matches the separators used when breaking situation names
// and chat messages into tokens.
var tokenSplitter = regexp.MustCompile(`[\s\-_/,.!?;:]+`)

// CompressAllWhitespace replaces all whitespace sequences (including newlines) with a single space.
func CompressAllWhitespace(s string) string {
	return strings.TrimSpace(MultipleSpaces.ReplaceAllString(s, " "))
}

// Tokenize splits text into lowercase tokens longer than minLen runes.
// Separators are whitespace, dashes, underscores, slashes and common punctuation.
func Tokenize(s string, minLen int) []string {
	var tokens []string

	for _, tok := range tokenSplitter.Split(strings.ToLower(s), -1) {
		if len([]rune(tok)) > minLen {
			tokens = append(tokens, tok)
		}
	}

	return tokens
}

// TokenOverlap reports the Jaccard-style word overlap between two messages,
// in [0, 1]. Tokens shorter than 3 runes are ignored so that articles and
// fillers do not inflate the score.
func TokenOverlap(a, b string) float64 {
	tokensA := Tokenize(a, 2)
	tokensB := Tokenize(b, 2)

	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = struct{}{}
	}

	setB := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		setB[tok] = struct{}{}
	}

	shared := 0

	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}

	return float64(shared) / float64(union)
}

// SharesToken reports whether two messages share at least one token longer
// than 2 runes.
func SharesToken(a, b string) bool {
	tokensB := Tokenize(b, 2)
	if len(tokensB) == 0 {
		return false
	}

	setB := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		setB[tok] = struct{}{}
	}

	for _, tok := range Tokenize(a, 2) {
		if _, ok := setB[tok]; ok {
			return true
		}
	}

	return false
}

// WindowCoverage measures how much of the shorter of two texts is covered by
// sliding windows of windowSize bytes that also occur in the other text.
// Both texts are lowercased first. Returns a value in [0, 1].
func WindowCoverage(a, b string, windowSize int) float64 {
	a = strings.ToLower(CompressAllWhitespace(a))
	b = strings.ToLower(CompressAllWhitespace(b))

	if len(a) < windowSize || len(b) < windowSize {
		if a != "" && a == b {
			return 1
		}

		return 0
	}

	// Shorter text provides the windows so coverage is relative to it
	if len(b) < len(a) {
		a, b = b, a
	}

	total := len(a) - windowSize + 1
	covered := 0

	for i := 0; i < total; i++ {
		if strings.Contains(b, a[i:i+windowSize]) {
			covered++
		}
	}

	return float64(covered) / float64(total)
}

// RemoveDuplicates removes duplicate strings from a slice, preserving order.
func RemoveDuplicates(strs []string) []string {
	seen := make(map[string]struct{})

	var result []string

	for _, str := range strs {
		if _, exists := seen[str]; !exists {
			result = append(result, str)
			seen[str] = struct{}{}
		}
	}

	return result
}

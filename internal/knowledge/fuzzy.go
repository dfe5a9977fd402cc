package knowledge

import (
	"regexp"
	"strings"
)

const (
	// Signatures shorter than this are scored by edit distance; longer ones
	// by token overlap. Empirical constant carried over unchanged.
	shortSignatureLen = 20

	// DefaultMaxEditDistance is the raw edit-distance cutoff for short
	// signature matches.
	DefaultMaxEditDistance = 3
)

var tokenPattern = regexp.MustCompile(`\w+`)

// EditDistance computes the Levenshtein distance between two strings.
func EditDistance(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		curr[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}
			curr[j+1] = min(curr[j]+1, min(prev[j+1]+1, prev[j]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// TokenOverlap computes Jaccard similarity between the token sets of two
// strings. Tokens are word runs, lowercased.
func TokenOverlap(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range tokensA {
		if tokensB[tok] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// FuzzyScore scores how well a known signature matches an observed error
// message. An exact substring match scores 1.0. Short signatures fall back
// to normalized edit distance, rejected past maxEditDistance; longer
// signatures use token overlap.
func FuzzyScore(query, candidate string, maxEditDistance int) float64 {
	queryLower := strings.ToLower(query)
	candidateLower := strings.ToLower(candidate)

	if strings.Contains(queryLower, candidateLower) {
		return 1.0
	}

	if len(candidateLower) < shortSignatureLen {
		dist := EditDistance(queryLower, candidateLower)
		if dist > maxEditDistance {
			// A short signature past the edit cutoff is rejected
			// outright, with no token-overlap fallback: at under 20
			// characters the token sets are too small to discriminate.
			return 0.0
		}
		maxLen := max(len(queryLower), len(candidateLower))
		if maxLen == 0 {
			return 0.0
		}
		return 1.0 - float64(dist)/float64(maxLen)
	}

	return TokenOverlap(queryLower, candidateLower)
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = true
	}
	return tokens
}

// Package similarity implements the traditional text metrics tier: token
// based similarity against reference texts, timing and task success.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Tokenize lower-cases text and splits it into word tokens.
// A token is a maximal run of letters, digits or underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// CosineSimilarity calculates cosine similarity between two vectors.
// Anti-correlated vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	return cosine(dotProduct, normA, normB)
}

// TermCosine calculates cosine similarity between the term-frequency vectors of two token lists.
func TermCosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	freqA, freqB := termFrequencies(a), termFrequencies(b)
	var dotProduct, normA, normB float64
	for term, countA := range freqA {
		normA += countA * countA
		if countB, ok := freqB[term]; ok {
			dotProduct += countA * countB
		}
	}
	for _, countB := range freqB {
		normB += countB * countB
	}

	return cosine(dotProduct, normA, normB)
}

// cosine normalizes a dot product. Identical vectors score exactly 1.
func cosine(dotProduct, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	if dotProduct == normA && normA == normB {
		return 1
	}
	return clamp01(dotProduct / math.Sqrt(normA*normB))
}

func termFrequencies(tokens []string) map[string]float64 {
	freq := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}
	return freq
}

// JaccardSimilarity calculates the Jaccard similarity between the token sets of two token lists.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	set1 := make(map[string]bool, len(a))
	for _, token := range a {
		set1[token] = true
	}
	set2 := make(map[string]bool, len(b))
	for _, token := range b {
		set2[token] = true
	}

	var intersection int
	for token := range set1 {
		if set2[token] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// EditSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over tokens.
// Two empty inputs are considered dissimilar.
func EditSimilarity(a, b []string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	return clamp01(1 - float64(levenshtein(a, b))/float64(longest))
}

// levenshtein computes the token edit distance with two rolling rows.
func levenshtein(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

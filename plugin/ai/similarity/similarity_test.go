package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{name: "punctuation and case", text: "Hello, World!", expected: []string{"hello", "world"}},
		{name: "underscores and digits", text: "run_task 42 times", expected: []string{"run_task", "42", "times"}},
		{name: "unicode letters", text: "Größe überprüfen", expected: []string{"größe", "überprüfen"}},
		{name: "empty", text: "  ...  ", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.expected, Tokenize(tt.text))
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{name: "identical vectors", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 1.0},
		{name: "orthogonal vectors", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, expected: 0.0},
		{name: "opposite vectors", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, expected: 0.0},
		{name: "similar vectors", a: []float32{1, 2, 3}, b: []float32{1, 2, 4}, expected: 0.9914},
		{name: "empty vectors", a: []float32{}, b: []float32{}, expected: 0.0},
		{name: "different length", a: []float32{1, 2}, b: []float32{1, 2, 3}, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 0.01)
		})
	}
}

func TestTermCosine(t *testing.T) {
	assert.InDelta(t, 1.0, TermCosine([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 0.0, TermCosine([]string{"a"}, []string{"b"}), 1e-9)
	assert.InDelta(t, 0.0, TermCosine(nil, []string{"b"}), 1e-9)
	// {a:2, b:1} vs {a:1}: 2 / sqrt(5)
	assert.InDelta(t, 0.8944, TermCosine([]string{"a", "a", "b"}, []string{"a"}), 1e-4)
}

func TestCosine_EqualVectorsAreExact(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
	}{
		{name: "two terms", a: []string{"a", "b"}, b: []string{"a", "b"}},
		{name: "reordered", a: []string{"b", "a", "c"}, b: []string{"c", "a", "b"}},
		{name: "repeated terms", a: []string{"a", "a", "b", "c", "c", "c"}, b: []string{"c", "a", "c", "b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1.0, TermCosine(tt.a, tt.b))
		})
	}

	for _, vec := range [][]float32{{1, 1}, {0.1, 0.2, 0.3}, {3, -4, 12}} {
		assert.Equal(t, 1.0, CosineSimilarity(vec, vec))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{name: "identical", a: []string{"go", "react"}, b: []string{"react", "go"}, expected: 1.0},
		{name: "no overlap", a: []string{"go", "python"}, b: []string{"react", "vue"}, expected: 0.0},
		{name: "partial overlap", a: []string{"go", "react", "docker"}, b: []string{"go", "react", "k8s"}, expected: 0.5},
		{name: "duplicates ignored", a: []string{"go", "go"}, b: []string{"go"}, expected: 1.0},
		{name: "both empty", a: nil, b: nil, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, JaccardSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestEditSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{name: "identical", a: "the quick fox", b: "the quick fox", expected: 1.0},
		{name: "one substitution", a: "the quick fox", b: "the slow fox", expected: 2.0 / 3.0},
		{name: "one insertion", a: "the fox", b: "the quick fox", expected: 2.0 / 3.0},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", expected: 0.0},
		{name: "both empty", a: "", b: "", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EditSimilarity(Tokenize(tt.a), Tokenize(tt.b)), 1e-9)
		})
	}
}

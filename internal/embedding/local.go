package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder is a dependency-free deterministic embedder. Each token is
// hashed into a handful of vector positions with alternating sign, so texts
// sharing vocabulary land near each other under cosine distance. Stable
// across runs and platforms, which keeps stored vectors comparable.
type LocalEmbedder struct {
	dim int
}

const projectionsPerToken = 4

// NewLocal returns a LocalEmbedder producing dim-length vectors.
func NewLocal(dim int) *LocalEmbedder {
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Name() string { return "local-hash-v1" }

func (e *LocalEmbedder) Dim() int { return e.dim }

// Embed computes the vector for text. Never fails; empty text yields a zero
// vector.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		for k := 0; k < projectionsPerToken; k++ {
			bits := sum >> (k * 16)
			idx := int(bits % uint64(e.dim))
			sign := float32(1)
			if bits&(1<<15) != 0 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

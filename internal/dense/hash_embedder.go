package dense

import (
	"context"
	"hash/fnv"
)

// HashEmbedder is a deterministic, dependency-free Embedder stand-in for
// tests and offline development: it maps tokens into a fixed-width vector
// via feature hashing so that repeated runs are byte-identical and similar
// text produces similar vectors, without requiring a real embedding model.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder with the given vector width.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{Dim: dim}
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, h.Dim)
	word := make([]byte, 0, 16)
	flush := func() {
		if len(word) == 0 {
			return
		}
		hasher := fnv.New32a()
		_, _ = hasher.Write(word)
		idx := int(hasher.Sum32()) % h.Dim
		if idx < 0 {
			idx += h.Dim
		}
		v[idx]++
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			word = append(word, c)
		} else {
			flush()
		}
	}
	flush()
	return v, nil
}

// Package dense wraps the external dense-vector index behind a uniform
// hit contract, and ships a deterministic in-memory reference
// implementation for tests and standalone deployments.
package dense

import (
	"context"
	"math"
	"sort"

	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/types"
)

// Searcher is the dense retrieval contract consumed by the retrieval
// pipeline: implementations must L2-normalize query vectors and use inner
// product (cosine) scoring, returning deterministic order.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]types.Hit, error)
}

// Embedder turns text into a vector. Real deployments wrap a sentence
// embedding model; tests use a deterministic hash-based stand-in.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MemoryIndex is a deterministic in-memory reference Searcher: vectors are
// L2-normalized up front, queries are scored by inner product, and at most
// maxHitsPerPage hits are kept per (doc_id, start_page, end_page) to avoid
// a single page dominating the result set.
type MemoryIndex struct {
	store          *chunkstore.Store
	embedder       Embedder
	vectors        map[int][]float64
	maxHitsPerPage int
}

// NewMemoryIndex builds a MemoryIndex over every chunk in store, embedding
// each chunk's text with embedder. maxHitsPerPage <= 0 means no per-page cap.
func NewMemoryIndex(ctx context.Context, store *chunkstore.Store, embedder Embedder, maxHitsPerPage int) (*MemoryIndex, error) {
	vectors := make(map[int][]float64, store.Len())
	for _, c := range store.All() {
		v, err := embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		vectors[c.VectorID] = normalize(v)
	}
	return &MemoryIndex{store: store, embedder: embedder, vectors: vectors, maxHitsPerPage: maxHitsPerPage}, nil
}

func normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-12 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

type pageKey struct {
	docID     string
	startPage int
	endPage   int
}

// Search embeds query, L2-normalizes it, and returns the top-k hits by
// inner product, capped per page and ordered deterministically by
// (-score, doc_id, start_page, chunk_id).
func (m *MemoryIndex) Search(ctx context.Context, query string, k int) ([]types.Hit, error) {
	qv, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qv = normalize(qv)

	type scored struct {
		vectorID int
		score    float64
	}
	all := make([]scored, 0, len(m.vectors))
	for vid, v := range m.vectors {
		all = append(all, scored{vid, dot(qv, v)})
	}

	chunks := make(map[int]types.Chunk, len(all))
	for _, s := range all {
		c, ok := m.store.GetByVectorID(s.vectorID)
		if ok {
			chunks[s.vectorID] = c
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		ci, cj := chunks[all[i].vectorID], chunks[all[j].vectorID]
		if ci.DocID != cj.DocID {
			return ci.DocID < cj.DocID
		}
		if ci.StartPage != cj.StartPage {
			return ci.StartPage < cj.StartPage
		}
		return ci.ChunkID < cj.ChunkID
	})

	pageCounts := make(map[pageKey]int)
	hits := make([]types.Hit, 0, k)
	for _, s := range all {
		c, ok := chunks[s.vectorID]
		if !ok {
			continue
		}
		pk := pageKey{c.DocID, c.StartPage, c.EndPage}
		if m.maxHitsPerPage > 0 {
			pageCounts[pk]++
			if pageCounts[pk] > m.maxHitsPerPage {
				continue
			}
		}
		hits = append(hits, types.Hit{
			Score:     s.score,
			ChunkID:   c.ChunkID,
			DocID:     c.DocID,
			StartPage: c.StartPage,
			EndPage:   c.EndPage,
			Text:      c.Text,
		})
		if k > 0 && len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Package chunkstore loads the chunk corpus artifact and exposes
// chunk_id/vector_id lookups and same-document neighbor expansion.
package chunkstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/jackzampolin/docqa/internal/types"
)

// Store is an in-memory, read-only-after-load mapping over the chunk
// corpus. Deterministic iteration order is ascending vector_id.
type Store struct {
	byChunkID  map[string]types.Chunk
	byVectorID map[int]types.Chunk
	order      []int // vector_ids ascending
}

// Load reads a line-based JSON chunk store artifact (one record per line,
// fields vector_id/chunk_id/doc_id/start_page/end_page/text) into a Store.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open: %w", err)
	}
	defer f.Close()

	s := &Store{
		byChunkID:  make(map[string]types.Chunk),
		byVectorID: make(map[int]types.Chunk),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c types.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("chunkstore: decode row: %w", err)
		}
		s.byChunkID[c.ChunkID] = c
		s.byVectorID[c.VectorID] = c
		s.order = append(s.order, c.VectorID)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chunkstore: scan: %w", err)
	}

	sort.Ints(s.order)
	return s, nil
}

// FromChunks builds a Store directly from in-memory chunks (used by tests
// and by ingest-adjacent tooling that builds the artifact in one pass).
func FromChunks(chunks []types.Chunk) *Store {
	s := &Store{
		byChunkID:  make(map[string]types.Chunk, len(chunks)),
		byVectorID: make(map[int]types.Chunk, len(chunks)),
	}
	for _, c := range chunks {
		s.byChunkID[c.ChunkID] = c
		s.byVectorID[c.VectorID] = c
		s.order = append(s.order, c.VectorID)
	}
	sort.Ints(s.order)
	return s
}

// GetByChunkID looks up a chunk by its chunk_id.
func (s *Store) GetByChunkID(chunkID string) (types.Chunk, bool) {
	c, ok := s.byChunkID[chunkID]
	return c, ok
}

// GetByVectorID looks up a chunk by its dense-aligned vector_id.
func (s *Store) GetByVectorID(vectorID int) (types.Chunk, bool) {
	c, ok := s.byVectorID[vectorID]
	return c, ok
}

// Len returns the number of chunks in the store.
func (s *Store) Len() int { return len(s.order) }

// All returns chunks in ascending vector_id order.
func (s *Store) All() []types.Chunk {
	out := make([]types.Chunk, 0, len(s.order))
	for _, vid := range s.order {
		out = append(out, s.byVectorID[vid])
	}
	return out
}

// Neighbors returns up to window chunks immediately before and after the
// given chunk's vector_id, constrained to the same doc_id when
// sameDocOnly is true.
func (s *Store) Neighbors(chunkID string, window int, sameDocOnly bool) []types.Chunk {
	seed, ok := s.byChunkID[chunkID]
	if !ok || window <= 0 {
		return nil
	}

	pos := sort.SearchInts(s.order, seed.VectorID)
	if pos >= len(s.order) || s.order[pos] != seed.VectorID {
		return nil
	}

	var out []types.Chunk
	for d := -window; d <= window; d++ {
		if d == 0 {
			continue
		}
		idx := pos + d
		if idx < 0 || idx >= len(s.order) {
			continue
		}
		c := s.byVectorID[s.order[idx]]
		if sameDocOnly && c.DocID != seed.DocID {
			continue
		}
		out = append(out, c)
	}
	return out
}

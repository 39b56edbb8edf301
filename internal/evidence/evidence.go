// Package evidence dedups and budgets retrieval hits into the ordered
// evidence list that drives answer-prompt assembly.
package evidence

import (
	"sort"

	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/types"
)

// Options controls evidence selection budgets.
type Options struct {
	MaxChunks             int
	MaxChars              int
	IncludeNeighborChunks bool
	NeighborWindow        int
}

func sortKey(h types.Hit) (float64, string, int, int, string) {
	return -h.Score, h.DocID, h.StartPage, h.EndPage, h.ChunkID
}

func less(a, b types.Hit) bool {
	as1, as2, as3, as4, as5 := sortKey(a)
	bs1, bs2, bs3, bs4, bs5 := sortKey(b)
	if as1 != bs1 {
		return as1 < bs1
	}
	if as2 != bs2 {
		return as2 < bs2
	}
	if as3 != bs3 {
		return as3 < bs3
	}
	if as4 != bs4 {
		return as4 < bs4
	}
	return as5 < bs5
}

// neighborHits returns same-document neighbor chunks around hit using
// vector_id adjacency from store, with a small score decay per distance so
// neighbors never outrank their seed.
func neighborHits(store *chunkstore.Store, hit types.Hit, window int) []types.Hit {
	if window <= 0 || store == nil {
		return nil
	}
	var neighbors []types.Hit
	seed, ok := store.GetByChunkID(hit.ChunkID)
	if !ok {
		return nil
	}
	for delta := 1; delta <= window; delta++ {
		for _, candidateVID := range [2]int{seed.VectorID - delta, seed.VectorID + delta} {
			c, ok := store.GetByVectorID(candidateVID)
			if !ok || c.DocID != hit.DocID {
				continue
			}
			neighbors = append(neighbors, types.Hit{
				Score:     hit.Score - float64(delta)*1e-6,
				ChunkID:   c.ChunkID,
				DocID:     c.DocID,
				StartPage: c.StartPage,
				EndPage:   c.EndPage,
				Text:      c.Text,
			})
		}
	}
	return neighbors
}

// Select dedups hits by chunk_id (keeping max score), sorts deterministically,
// truncates to MaxChunks, optionally expands with same-doc neighbors, and
// then applies MaxChunks and the char budget to the expanded list, so
// neighbors count against both budgets. The returned list's order
// determines citation key assignment (c1..cN).
func Select(store *chunkstore.Store, hits []types.Hit, opts Options) []types.Hit {
	best := make(map[string]types.Hit, len(hits))
	for _, h := range hits {
		prev, ok := best[h.ChunkID]
		if !ok || h.Score > prev.Score {
			best[h.ChunkID] = h
		}
	}

	ordered := make([]types.Hit, 0, len(best))
	for _, h := range best {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })

	maxChunks := opts.MaxChunks
	if maxChunks <= 0 || maxChunks > len(ordered) {
		maxChunks = len(ordered)
	}
	primary := ordered[:maxChunks]

	expanded := make([]types.Hit, 0, len(primary))
	seen := make(map[string]struct{}, len(primary))
	for _, h := range primary {
		if _, ok := seen[h.ChunkID]; !ok {
			expanded = append(expanded, h)
			seen[h.ChunkID] = struct{}{}
		}
		if opts.IncludeNeighborChunks {
			for _, n := range neighborHits(store, h, opts.NeighborWindow) {
				if _, ok := seen[n.ChunkID]; ok {
					continue
				}
				expanded = append(expanded, n)
				seen[n.ChunkID] = struct{}{}
			}
		}
	}

	budgeted := make([]types.Hit, 0, len(expanded))
	total := 0
	for _, h := range expanded {
		if opts.MaxChunks > 0 && len(budgeted) >= opts.MaxChunks {
			break
		}
		if h.Text == "" {
			continue
		}
		if opts.MaxChars > 0 && total+len(h.Text) > opts.MaxChars && len(budgeted) > 0 {
			break
		}
		budgeted = append(budgeted, h)
		total += len(h.Text)
	}
	return budgeted
}

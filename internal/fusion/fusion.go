// Package fusion combines multiple ranked hit lists with Reciprocal Rank
// Fusion and applies an optional lexical rerank pass.
package fusion

import (
	"sort"
	"strings"

	"github.com/jackzampolin/docqa/internal/bm25"
	"github.com/jackzampolin/docqa/internal/queryvariant"
	"github.com/jackzampolin/docqa/internal/types"
)

// DefaultK0 is the RRF constant in 1/(k0 + rank).
const DefaultK0 = 60

// DefaultCandidateMultiplier scales final_k into the per-variant pool size.
const DefaultCandidateMultiplier = 4

// PerSourceK returns the per-variant retrieval pool size.
func PerSourceK(finalK, candidateMultiplier int) int {
	k := finalK * candidateMultiplier
	if k < finalK {
		k = finalK
	}
	return k
}

func tieBreakLess(a, b types.Hit) bool {
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	if a.StartPage != b.StartPage {
		return a.StartPage < b.StartPage
	}
	return a.ChunkID < b.ChunkID
}

// RRFFuse merges rankings (each a ranked hit list from one retrieval
// source) via Reciprocal Rank Fusion and returns the top_k fused hits
// ordered by (-fused_score, doc_id, start_page, chunk_id).
func RRFFuse(rankings [][]types.Hit, topK, k0 int) []types.Hit {
	if topK <= 0 {
		return nil
	}
	if k0 <= 0 {
		k0 = DefaultK0
	}

	scores := make(map[string]float64)
	representative := make(map[string]types.Hit)
	repSourceIdx := make(map[string]int)
	repScore := make(map[string]float64)

	for sourceIdx, hits := range rankings {
		for i, h := range hits {
			rank := i + 1
			scores[h.ChunkID] += 1.0 / float64(k0+rank)

			prev, exists := representative[h.ChunkID]
			if !exists {
				representative[h.ChunkID] = h
				repSourceIdx[h.ChunkID] = sourceIdx
				repScore[h.ChunkID] = h.Score
				continue
			}
			switch {
			case h.Score > repScore[h.ChunkID]:
				representative[h.ChunkID] = h
				repSourceIdx[h.ChunkID] = sourceIdx
				repScore[h.ChunkID] = h.Score
			case h.Score == repScore[h.ChunkID]:
				if sourceIdx < repSourceIdx[h.ChunkID] {
					representative[h.ChunkID] = h
					repSourceIdx[h.ChunkID] = sourceIdx
					repScore[h.ChunkID] = h.Score
				} else if sourceIdx == repSourceIdx[h.ChunkID] && tieBreakLess(h, prev) {
					representative[h.ChunkID] = h
				}
			}
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := scores[ids[i]], scores[ids[j]]
		if si != sj {
			return si > sj
		}
		return tieBreakLess(representative[ids[i]], representative[ids[j]])
	})

	if len(ids) > topK {
		ids = ids[:topK]
	}

	fused := make([]types.Hit, 0, len(ids))
	for _, id := range ids {
		hit := representative[id]
		fused = append(fused, types.Hit{
			Score:     scores[id],
			ChunkID:   hit.ChunkID,
			DocID:     hit.DocID,
			StartPage: hit.StartPage,
			EndPage:   hit.EndPage,
			Text:      hit.Text,
		})
	}
	return fused
}

// Rerank applies a lightweight lexical rerank over the top rerankPool
// fused candidates: exact technical-token presence first, then BM25
// score_text, then the standard tie-break, truncated to finalK.
func Rerank(idx *bm25.Index, originalQuery string, fused []types.Hit, finalK, rerankPool int) []types.Hit {
	if rerankPool <= 0 || rerankPool > len(fused) {
		rerankPool = len(fused)
	}
	pool := append([]types.Hit(nil), fused[:rerankPool]...)

	tokens := queryvariant.ExtractTechnicalTokens(originalQuery)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	type reranked struct {
		hit        types.Hit
		hasExact   bool
		lexScore   float64
	}
	scored := make([]reranked, 0, len(pool))
	for _, h := range pool {
		lowerText := strings.ToLower(h.Text)
		hasExact := false
		for t := range tokenSet {
			if strings.Contains(lowerText, t) {
				hasExact = true
				break
			}
		}
		scored = append(scored, reranked{
			hit:      h,
			hasExact: hasExact,
			lexScore: idx.ScoreText(originalQuery, h.Text),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].hasExact != scored[j].hasExact {
			return scored[i].hasExact
		}
		if scored[i].lexScore != scored[j].lexScore {
			return scored[i].lexScore > scored[j].lexScore
		}
		return tieBreakLess(scored[i].hit, scored[j].hit)
	})

	if finalK > 0 && len(scored) > finalK {
		scored = scored[:finalK]
	}
	out := make([]types.Hit, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.hit)
	}
	return out
}


package retrieve

import (
	"context"
	"sort"
	"strings"

	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/types"
)

// ToolResult is the uniform shape every control-loop retrieval tool
// returns: the evidence it found plus enough bookkeeping for tracing.
type ToolResult struct {
	Tool     string
	Query    string
	ModeHint string
	Evidence []types.Hit
	Stats    map[string]any
}

// ModeHintFromQuery infers a retrieval mode hint from question phrasing,
// independent of the control loop's own routing decision: used to label
// the tool's own retrieval call in the trace.
func ModeHintFromQuery(q string) string {
	ql := strings.ToLower(q)
	if strings.Contains(ql, "algorithm") || strings.Contains(ql, "shake") {
		return types.ModeAlgorithm
	}
	if strings.ContainsAny(q, "§()η") || strings.Contains(ql, "fips") {
		return types.ModeSymbolic
	}
	if strings.HasPrefix(ql, "define") || strings.HasPrefix(ql, "what is") || strings.HasPrefix(ql, "what's") {
		return types.ModeDefinition
	}
	return types.ModeGeneral
}

// RetrieveTool runs the shared retrieval pipeline for query and returns up
// to k evidence hits, optionally restricted to docID.
func (p *Pipeline) RetrieveTool(ctx context.Context, query string, k int, docID string, opts Options) ToolResult {
	modeHint := ModeHintFromQuery(query)
	hits, err := p.Search(ctx, query, k, opts)
	if err != nil {
		return ToolResult{Tool: "retrieve", Query: query, ModeHint: modeHint, Stats: map[string]any{"error": err.Error()}}
	}
	if docID != "" {
		hits = filterByDoc(hits, docID)
	}
	return ToolResult{
		Tool:     "retrieve",
		Query:    query,
		ModeHint: modeHint,
		Evidence: hits,
		Stats:    map[string]any{"n": len(hits)},
	}
}

// ResolveDefinitionTool forces a definitions/notation-oriented retrieval
// pass for term.
func (p *Pipeline) ResolveDefinitionTool(ctx context.Context, term string, k int, docID string, opts Options) ToolResult {
	query := "definition of " + term + "; notation; definitions"
	hits, err := p.Search(ctx, query, k, opts)
	if err != nil {
		return ToolResult{Tool: "resolve_definition", Query: query, ModeHint: types.ModeDefinition, Stats: map[string]any{"error": err.Error()}}
	}
	if docID != "" {
		hits = filterByDoc(hits, docID)
	}
	return ToolResult{
		Tool:     "resolve_definition",
		Query:    query,
		ModeHint: types.ModeDefinition,
		Evidence: hits,
		Stats:    map[string]any{"n": len(hits)},
	}
}

// CompareTool retrieves evidence for two topics independently and merges
// the deduped union, in topicA-then-topicB order.
func (p *Pipeline) CompareTool(ctx context.Context, topicA, topicB string, k int, opts Options) ToolResult {
	qa := topicA + " intended use-cases; definition; key properties"
	qb := topicB + " intended use-cases; definition; key properties"

	hitsA, errA := p.Search(ctx, qa, k, opts)
	hitsB, errB := p.Search(ctx, qb, k, opts)
	if errA != nil || errB != nil {
		stats := map[string]any{}
		if errA != nil {
			stats["error_a"] = errA.Error()
		}
		if errB != nil {
			stats["error_b"] = errB.Error()
		}
		return ToolResult{Tool: "compare", ModeHint: types.ModeCompare, Stats: stats}
	}

	merged := dedupeHits(append(append([]types.Hit{}, hitsA...), hitsB...))
	return ToolResult{
		Tool:     "compare",
		ModeHint: types.ModeCompare,
		Evidence: merged,
		Stats:    map[string]any{"n_a": len(hitsA), "n_b": len(hitsB), "n_merged": len(merged)},
	}
}

// SummarizeTool fetches every chunk overlapping [startPage, endPage] in
// docID, deterministically sorted, capped at k.
func SummarizeTool(store *chunkstore.Store, docID string, startPage, endPage, k int) ToolResult {
	var matched []types.Chunk
	for _, c := range store.All() {
		if c.DocID != docID {
			continue
		}
		if c.StartPage <= endPage && c.EndPage >= startPage {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartPage != matched[j].StartPage {
			return matched[i].StartPage < matched[j].StartPage
		}
		return matched[i].ChunkID < matched[j].ChunkID
	})
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}

	hits := make([]types.Hit, 0, len(matched))
	for _, c := range matched {
		hits = append(hits, types.Hit{
			ChunkID:   c.ChunkID,
			DocID:     c.DocID,
			StartPage: c.StartPage,
			EndPage:   c.EndPage,
			Text:      c.Text,
		})
	}
	return ToolResult{
		Tool:     "summarize",
		ModeHint: types.ModeGeneral,
		Evidence: hits,
		Stats:    map[string]any{"n": len(hits)},
	}
}

func filterByDoc(hits []types.Hit, docID string) []types.Hit {
	out := make([]types.Hit, 0, len(hits))
	for _, h := range hits {
		if h.DocID == docID {
			out = append(out, h)
		}
	}
	return out
}

func dedupeHits(hits []types.Hit) []types.Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]types.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.ChunkID]; ok {
			continue
		}
		seen[h.ChunkID] = struct{}{}
		out = append(out, h)
	}
	return out
}

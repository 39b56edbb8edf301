// Package retrieve is the shared retrieval core for search, ask, and the
// agent control loop: deterministic query variants, base (single-backend)
// and hybrid (BM25 + dense) retrieval fused with RRF, and an optional
// lexical rerank pass.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackzampolin/docqa/internal/bm25"
	"github.com/jackzampolin/docqa/internal/dense"
	"github.com/jackzampolin/docqa/internal/fusion"
	"github.com/jackzampolin/docqa/internal/queryvariant"
	"github.com/jackzampolin/docqa/internal/types"
)

// Mode selects the retrieval strategy.
const (
	ModeHybrid = "hybrid"
	ModeBase   = "base"
)

// Backend selects the single-backend retriever used by ModeBase.
const (
	BackendDense = "dense"
	BackendBM25  = "bm25"
)

// Options controls one retrieval call; zero values fall back to the
// package defaults (fusion.DefaultCandidateMultiplier, fusion.DefaultK0).
type Options struct {
	Mode                string
	Backend             string
	CandidateMultiplier int
	K0                  int
	UseQueryFusion      bool
	EnableRerank        bool
	RerankPool          int
}

// Pipeline wires the lexical and dense retrieval backends together. Dense
// is optional: a nil Dense makes ModeHybrid degrade to BM25-only and
// rejects BackendDense for ModeBase.
type Pipeline struct {
	BM25  *bm25.Index
	Dense dense.Searcher
}

func (p *Pipeline) searchBackend(ctx context.Context, backend, query string, k int) ([]types.Hit, error) {
	switch backend {
	case BackendDense:
		if p.Dense == nil {
			return nil, fmt.Errorf("retrieve: dense backend unavailable")
		}
		return p.Dense.Search(ctx, query, k)
	case BackendBM25:
		return p.BM25.Search(query, k), nil
	default:
		return nil, fmt.Errorf("retrieve: unknown backend %q", backend)
	}
}

func (p *Pipeline) variants(query string, useFusion bool) []string {
	if !useFusion {
		return []string{query}
	}
	variants := queryvariant.Generate(query)
	if len(variants) == 0 {
		return []string{query}
	}
	return variants
}

// HybridSearch runs BM25 + dense retrieval over every query variant and
// fuses the rankings with RRF.
func (p *Pipeline) HybridSearch(ctx context.Context, query string, topK int, opts Options) ([]types.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("retrieve: top_k must be > 0")
	}
	candidateMultiplier := opts.CandidateMultiplier
	if candidateMultiplier <= 0 {
		candidateMultiplier = fusion.DefaultCandidateMultiplier
	}
	perSourceK := fusion.PerSourceK(topK, candidateMultiplier)

	var rankings [][]types.Hit
	for _, q := range p.variants(query, opts.UseQueryFusion) {
		if p.Dense != nil {
			vectorHits, err := p.Dense.Search(ctx, q, perSourceK)
			if err != nil {
				return nil, err
			}
			rankings = append(rankings, vectorHits)
		}
		rankings = append(rankings, p.BM25.Search(q, perSourceK))
	}

	fused := fusion.RRFFuse(rankings, topK, opts.K0)
	return p.maybeRerank(query, fused, topK, opts), nil
}

// BaseSearch runs a single backend over every query variant and fuses the
// rankings with RRF.
func (p *Pipeline) BaseSearch(ctx context.Context, query string, topK int, opts Options) ([]types.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("retrieve: top_k must be > 0")
	}
	candidateMultiplier := opts.CandidateMultiplier
	if candidateMultiplier <= 0 {
		candidateMultiplier = fusion.DefaultCandidateMultiplier
	}
	perQueryK := fusion.PerSourceK(topK, candidateMultiplier)

	var rankings [][]types.Hit
	for _, q := range p.variants(query, opts.UseQueryFusion) {
		hits, err := p.searchBackend(ctx, opts.Backend, q, perQueryK)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, hits)
	}

	fused := fusion.RRFFuse(rankings, topK, opts.K0)
	return p.maybeRerank(query, fused, topK, opts), nil
}

func (p *Pipeline) maybeRerank(originalQuery string, fused []types.Hit, topK int, opts Options) []types.Hit {
	if !opts.EnableRerank || p.BM25 == nil {
		return fused
	}
	return fusion.Rerank(p.BM25, originalQuery, fused, topK, opts.RerankPool)
}

// Search is the shared retrieval entrypoint: dispatches to HybridSearch or
// BaseSearch per opts.Mode.
func (p *Pipeline) Search(ctx context.Context, query string, topK int, opts Options) ([]types.Hit, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case ModeHybrid, "":
		return p.HybridSearch(ctx, query, topK, opts)
	case ModeBase:
		return p.BaseSearch(ctx, query, topK, opts)
	default:
		return nil, fmt.Errorf("retrieve: unknown retrieval mode %q", opts.Mode)
	}
}

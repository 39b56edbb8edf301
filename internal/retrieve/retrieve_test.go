package retrieve

import (
	"context"
	"testing"

	"github.com/jackzampolin/docqa/internal/bm25"
	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/types"
)

func sampleChunks() []types.Chunk {
	return []types.Chunk{
		{ChunkID: "FIPS.203::p0010::c000", DocID: "FIPS.203", StartPage: 10, EndPage: 10, Text: "ML-KEM key generation Algorithm 19 produces a public and private key pair.", VectorID: 0},
		{ChunkID: "FIPS.203::p0011::c000", DocID: "FIPS.203", StartPage: 11, EndPage: 11, Text: "ML-KEM encapsulation uses SHAKE128 to derive randomness.", VectorID: 1},
		{ChunkID: "FIPS.204::p0020::c000", DocID: "FIPS.204", StartPage: 20, EndPage: 20, Text: "ML-DSA is a digital signature scheme built on lattice assumptions.", VectorID: 2},
	}
}

func buildIndex(t *testing.T) *bm25.Index {
	t.Helper()
	artifact, err := bm25.Build(sampleChunks(), bm25.DefaultK1, bm25.DefaultB)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return bm25.NewIndex(artifact)
}

func TestBaseSearchBM25Backend(t *testing.T) {
	p := &Pipeline{BM25: buildIndex(t)}
	hits, err := p.BaseSearch(context.Background(), "ML-KEM key generation", 2, Options{Backend: BackendBM25, UseQueryFusion: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected hits")
	}
	if hits[0].DocID != "FIPS.203" {
		t.Fatalf("expected FIPS.203 top hit, got %s", hits[0].DocID)
	}
}

func TestHybridSearchDegradesToBM25WithoutDense(t *testing.T) {
	p := &Pipeline{BM25: buildIndex(t)}
	hits, err := p.HybridSearch(context.Background(), "ML-DSA signature", 2, Options{UseQueryFusion: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected hits")
	}
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	p := &Pipeline{BM25: buildIndex(t)}
	if _, err := p.Search(context.Background(), "q", 1, Options{Mode: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestModeHintFromQuery(t *testing.T) {
	cases := map[string]string{
		"What is ML-KEM?":          types.ModeDefinition,
		"Algorithm 19 steps":       types.ModeAlgorithm,
		"FIPS 203 notation":        types.ModeSymbolic,
		"Tell me about NIST specs": types.ModeGeneral,
	}
	for q, want := range cases {
		if got := ModeHintFromQuery(q); got != want {
			t.Errorf("ModeHintFromQuery(%q) = %q, want %q", q, got, want)
		}
	}
}

func TestRetrieveToolFiltersByDocID(t *testing.T) {
	p := &Pipeline{BM25: buildIndex(t)}
	result := p.RetrieveTool(context.Background(), "ML-KEM", 5, "FIPS.204", Options{Backend: BackendBM25, Mode: ModeBase})
	for _, h := range result.Evidence {
		if h.DocID != "FIPS.204" {
			t.Fatalf("expected only FIPS.204 hits, got %s", h.DocID)
		}
	}
}

func TestCompareToolMergesAndDedupes(t *testing.T) {
	p := &Pipeline{BM25: buildIndex(t)}
	result := p.CompareTool(context.Background(), "ML-KEM", "ML-DSA", 5, Options{Backend: BackendBM25, Mode: ModeBase})
	if len(result.Evidence) == 0 {
		t.Fatalf("expected merged evidence")
	}
	seen := make(map[string]bool)
	for _, h := range result.Evidence {
		if seen[h.ChunkID] {
			t.Fatalf("duplicate chunk %s in merged result", h.ChunkID)
		}
		seen[h.ChunkID] = true
	}
}

func TestSummarizeToolReturnsOverlappingChunksSorted(t *testing.T) {
	store := chunkstore.FromChunks(sampleChunks())
	result := SummarizeTool(store, "FIPS.203", 9, 10, 30)
	if len(result.Evidence) != 1 || result.Evidence[0].StartPage != 10 {
		t.Fatalf("unexpected summarize evidence: %+v", result.Evidence)
	}
}

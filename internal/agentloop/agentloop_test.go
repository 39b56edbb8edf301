package agentloop

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/docqa/internal/bm25"
	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/generator"
	"github.com/jackzampolin/docqa/internal/retrieve"
	"github.com/jackzampolin/docqa/internal/types"
)

func sampleChunks() []types.Chunk {
	return []types.Chunk{
		{ChunkID: "FIPS.203::p0010::c000", DocID: "FIPS.203", StartPage: 10, EndPage: 10, VectorID: 0,
			Text: "ML-KEM is a key-encapsulation mechanism. Algorithm 19 ML-KEM.KeyGen produces a key pair using SHAKE128."},
		{ChunkID: "FIPS.203::p0011::c000", DocID: "FIPS.203", StartPage: 11, EndPage: 11, VectorID: 1,
			Text: "ML-KEM encapsulation derives a shared secret with SHAKE256 randomness."},
		{ChunkID: "FIPS.204::p0020::c000", DocID: "FIPS.204", StartPage: 20, EndPage: 20, VectorID: 2,
			Text: "ML-DSA is a digital signature scheme built on lattice assumptions."},
	}
}

func buildDeps(t *testing.T, gen generator.Generator) Deps {
	t.Helper()
	artifact, err := bm25.Build(sampleChunks(), bm25.DefaultK1, bm25.DefaultB)
	if err != nil {
		t.Fatalf("build bm25: %v", err)
	}
	return Deps{
		Retriever: &retrieve.Pipeline{BM25: bm25.NewIndex(artifact)},
		Store:     chunkstore.FromChunks(sampleChunks()),
		Generator: gen,
		RetrieveOptions: retrieve.Options{
			Mode: retrieve.ModeBase, Backend: retrieve.BackendBM25, UseQueryFusion: true,
		},
		Budgets: DefaultBudgets(),
	}
}

func TestRunAnswersWithSufficientEvidence(t *testing.T) {
	gen := &generator.FakeGenerator{Response: "ML-KEM is a key-encapsulation mechanism defined by Algorithm 19 [c1]."}
	deps := buildDeps(t, gen)

	state := Run(context.Background(), "What is ML-KEM?", deps)

	if state.FinalAnswer == types.RefusalText {
		t.Fatalf("expected an answer, got refusal; trace=%+v", state.Trace)
	}
	if len(state.Citations) == 0 {
		t.Fatalf("expected citations on a successful answer")
	}
	if state.Plan.Action != types.ActionResolveDefinition {
		t.Fatalf("expected resolve_definition routing, got %q", state.Plan.Action)
	}
}

func TestRunRefusesWhenGeneratorAlwaysRefuses(t *testing.T) {
	gen := &generator.FakeGenerator{Response: types.RefusalText}
	deps := buildDeps(t, gen)

	state := Run(context.Background(), "What is a completely unrelated topic?", deps)

	if state.FinalAnswer != types.RefusalText {
		t.Fatalf("expected refusal sentinel, got %q", state.FinalAnswer)
	}
	if len(state.Citations) != 0 {
		t.Fatalf("expected no citations on refusal")
	}
	if state.RefusalReason == "" {
		t.Fatalf("expected a refusal reason to be recorded")
	}
}

func TestRunRoutesCompareIntent(t *testing.T) {
	gen := &generator.FakeGenerator{Response: "ML-KEM differs from ML-DSA [c1][c2]."}
	deps := buildDeps(t, gen)

	state := Run(context.Background(), "Compare ML-KEM and ML-DSA", deps)

	if state.Plan.Action != types.ActionCompare || state.Plan.Args["topic_a"] == "" {
		t.Fatalf("expected compare routing with topics, got plan=%+v", state.Plan)
	}
}

func TestRunRespectsStepBudget(t *testing.T) {
	gen := &generator.FakeGenerator{Response: types.RefusalText}
	deps := buildDeps(t, gen)
	deps.Budgets = Budgets{MaxSteps: 1, MaxToolCalls: 3, MaxRetrievalRounds: 2, MinEvidenceHits: 2}

	state := Run(context.Background(), "What is ML-KEM?", deps)

	if state.StopReason != "step_budget_exhausted" {
		t.Fatalf("expected stop_reason=step_budget_exhausted, got %q", state.StopReason)
	}
	if state.RefusalReason != "budget_exhausted" {
		t.Fatalf("expected refusal_reason=budget_exhausted, got %q", state.RefusalReason)
	}
	if state.FinalAnswer != types.RefusalText {
		t.Fatalf("expected refusal when budget exhausted before any retrieval")
	}
}

func TestMergeEvidenceDedupesAndAssignsKeysInOrder(t *testing.T) {
	var existing []types.EvidenceItem
	incoming := []types.Hit{
		{ChunkID: "a", DocID: "D", StartPage: 1, EndPage: 1, Text: "first"},
		{ChunkID: "b", DocID: "D", StartPage: 2, EndPage: 2, Text: "second"},
		{ChunkID: "a", DocID: "D", StartPage: 1, EndPage: 1, Text: "first duplicate"},
	}
	merged := mergeEvidence(existing, incoming)
	if len(merged) != 2 {
		t.Fatalf("expected 2 deduped items, got %d", len(merged))
	}
	if merged[0].Key != "c1" || merged[1].Key != "c2" {
		t.Fatalf("expected sequential keys, got %+v", merged)
	}
}

func TestWriteTraceTruncatesLongEvidenceText(t *testing.T) {
	longText := ""
	for i := 0; i < 900; i++ {
		longText += "x"
	}
	state := types.AgentState{
		Question: "What is ML-KEM?",
		Evidence: []types.EvidenceItem{
			{Hit: types.Hit{ChunkID: "c", DocID: "D", StartPage: 1, EndPage: 1, Text: longText}, Key: "c1"},
		},
	}
	dir := t.TempDir()
	path, err := WriteTrace(state, dir, "agent", 800, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("WriteTrace: %v", err)
	}
	if path == "" {
		t.Fatalf("expected non-empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if strings.Contains(string(data), longText) {
		t.Fatalf("expected evidence text truncated to 800 chars, found all 900 in trace")
	}
	if !strings.Contains(string(data), strings.Repeat("x", 800)+"…(truncated)") {
		t.Fatalf("expected 800 chars followed by the truncation marker in trace")
	}
}

func TestSlugifyMatchesExpectedFormat(t *testing.T) {
	if got, want := slugify("What is ML-KEM?!"), "what_is_mlkem"; got != want {
		t.Fatalf("slugify: got %q want %q", got, want)
	}
	if got, want := slugify("   "), "question"; got != want {
		t.Fatalf("slugify empty: got %q want %q", got, want)
	}
}

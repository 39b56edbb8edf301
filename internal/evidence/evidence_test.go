package evidence

import (
	"testing"

	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/types"
)

func storeWithNeighbors() *chunkstore.Store {
	return chunkstore.FromChunks([]types.Chunk{
		{ChunkID: "A::p0001::c000", DocID: "A", StartPage: 1, EndPage: 1, Text: "seed neighbor before", VectorID: 0},
		{ChunkID: "A::p0002::c000", DocID: "A", StartPage: 2, EndPage: 2, Text: "the seed chunk itself", VectorID: 1},
		{ChunkID: "A::p0003::c000", DocID: "A", StartPage: 3, EndPage: 3, Text: "seed neighbor after", VectorID: 2},
		{ChunkID: "B::p0001::c000", DocID: "B", StartPage: 1, EndPage: 1, Text: "other doc", VectorID: 3},
	})
}

func TestSelectDedupKeepsMaxScore(t *testing.T) {
	hits := []types.Hit{
		{ChunkID: "x", DocID: "A", StartPage: 1, EndPage: 1, Score: 0.2, Text: "low"},
		{ChunkID: "x", DocID: "A", StartPage: 1, EndPage: 1, Score: 0.9, Text: "high"},
	}
	got := Select(nil, hits, Options{MaxChunks: 5, MaxChars: 1000})
	if len(got) != 1 || got[0].Score != 0.9 {
		t.Fatalf("expected deduped max-score hit, got %+v", got)
	}
}

func TestSelectRespectsMaxChunks(t *testing.T) {
	hits := []types.Hit{
		{ChunkID: "a", DocID: "A", StartPage: 1, EndPage: 1, Score: 0.9, Text: "a"},
		{ChunkID: "b", DocID: "A", StartPage: 2, EndPage: 2, Score: 0.8, Text: "b"},
		{ChunkID: "c", DocID: "A", StartPage: 3, EndPage: 3, Score: 0.7, Text: "c"},
	}
	got := Select(nil, hits, Options{MaxChunks: 2, MaxChars: 1000})
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
}

func TestSelectNeighborExpansionSameDocOnly(t *testing.T) {
	store := storeWithNeighbors()
	hits := []types.Hit{
		{ChunkID: "A::p0002::c000", DocID: "A", StartPage: 2, EndPage: 2, Score: 0.9, Text: "the seed chunk itself"},
	}
	got := Select(store, hits, Options{MaxChunks: 3, MaxChars: 10000, IncludeNeighborChunks: true, NeighborWindow: 1})
	if len(got) != 3 {
		t.Fatalf("expected seed + 2 neighbors, got %d: %+v", len(got), got)
	}
	for _, h := range got {
		if h.DocID != "A" {
			t.Fatalf("neighbor crossed doc boundary: %+v", h)
		}
	}
}

func TestSelectCharBudgetAlwaysKeepsOne(t *testing.T) {
	hits := []types.Hit{
		{ChunkID: "a", DocID: "A", StartPage: 1, EndPage: 1, Score: 0.9, Text: "this text is definitely longer than the budget"},
		{ChunkID: "b", DocID: "A", StartPage: 2, EndPage: 2, Score: 0.8, Text: "second"},
	}
	got := Select(nil, hits, Options{MaxChunks: 5, MaxChars: 5})
	if len(got) != 1 {
		t.Fatalf("expected exactly one hit kept despite tiny char budget, got %d", len(got))
	}
}

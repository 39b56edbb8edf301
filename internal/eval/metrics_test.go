package eval

import (
	"math"
	"testing"

	"github.com/jackzampolin/docqa/internal/types"
)

func hit(docID string, start, end int) types.Hit {
	return types.Hit{DocID: docID, StartPage: start, EndPage: end, ChunkID: docID + "-" + itoa(start)}
}

func TestSpansOverlap(t *testing.T) {
	if !SpansOverlap(1, 5, 4, 10) {
		t.Fatalf("expected overlap")
	}
	if SpansOverlap(1, 2, 3, 4) {
		t.Fatalf("expected no overlap")
	}
}

func TestHitMatchesGoldRequiresDocAndOverlap(t *testing.T) {
	g := GoldSpan{DocID: "D", StartPage: 5, EndPage: 6}
	if !HitMatchesGold(hit("D", 4, 5), g) {
		t.Fatalf("expected match on overlap")
	}
	if HitMatchesGold(hit("D", 1, 2), g) {
		t.Fatalf("expected no match outside range")
	}
	if HitMatchesGold(hit("OTHER", 5, 6), g) {
		t.Fatalf("expected no match on different doc")
	}
}

func TestHitMatchesGoldWithTolerance(t *testing.T) {
	g := GoldSpan{DocID: "D", StartPage: 10, EndPage: 10}
	if HitMatchesGoldWithTolerance(hit("D", 8, 8), g, 1) {
		t.Fatalf("expected no match at tolerance 1")
	}
	if !HitMatchesGoldWithTolerance(hit("D", 8, 8), g, 2) {
		t.Fatalf("expected match at tolerance 2")
	}
}

func TestRecallAtKConsumesEachGoldOnce(t *testing.T) {
	gold := []GoldSpan{{DocID: "D", StartPage: 1, EndPage: 1}, {DocID: "D", StartPage: 2, EndPage: 2}}
	hits := []types.Hit{hit("D", 1, 1), hit("D", 1, 1), hit("D", 2, 2)}
	got := RecallAtK(hits, gold, 3)
	if got != 1.0 {
		t.Fatalf("expected full recall, got %v", got)
	}
}

func TestMRRAtKReturnsReciprocalOfFirstHit(t *testing.T) {
	gold := []GoldSpan{{DocID: "D", StartPage: 5, EndPage: 5}}
	hits := []types.Hit{hit("X", 1, 1), hit("D", 5, 5)}
	got := MRRAtK(hits, gold, 5)
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestMRRAtKZeroWhenNoMatch(t *testing.T) {
	gold := []GoldSpan{{DocID: "D", StartPage: 5, EndPage: 5}}
	hits := []types.Hit{hit("X", 1, 1)}
	if got := MRRAtK(hits, gold, 5); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestNDCGAtKPerfectRankingIsOne(t *testing.T) {
	gold := []GoldSpan{{DocID: "D", StartPage: 1, EndPage: 1}, {DocID: "D", StartPage: 2, EndPage: 2}}
	hits := []types.Hit{hit("D", 1, 1), hit("D", 2, 2)}
	got := NDCGAtK(hits, gold, 2)
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected perfect ndcg, got %v", got)
	}
}

func TestNDCGAtKEmptyGoldIsZero(t *testing.T) {
	if got := NDCGAtK(nil, nil, 5); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestComputeRetrievalMetricsByKs(t *testing.T) {
	gold := []GoldSpan{{DocID: "D", StartPage: 1, EndPage: 1}}
	hits := []types.Hit{hit("D", 1, 1)}
	out := ComputeRetrievalMetricsByKs(hits, gold, []int{1, 3, 0, -5})
	if len(out) != 2 {
		t.Fatalf("expected only positive ks kept, got %+v", out)
	}
	if out["k1"].RecallAtK != 1.0 {
		t.Fatalf("expected recall 1.0 at k1, got %+v", out["k1"])
	}
}

func TestInlineCitationSentenceRate(t *testing.T) {
	rate, ok := InlineCitationSentenceRate("First sentence cited. [c1] Second sentence uncited.")
	if !ok {
		t.Fatalf("expected sentences found")
	}
	if rate <= 0 || rate >= 1 {
		t.Fatalf("expected a partial rate, got %v", rate)
	}
	if _, ok := InlineCitationSentenceRate("   "); ok {
		t.Fatalf("expected no sentences for blank text")
	}
}

func TestEvaluateAnswerPayloadRefusal(t *testing.T) {
	result := types.AnswerResult{Answer: types.RefusalText}
	m := EvaluateAnswerPayload(result, false)
	if !m.IsRefusal || !m.CitationPresenceOK {
		t.Fatalf("expected refusal with ok citation presence, got %+v", m)
	}
	if m.RefusalAccuracy != 1.0 {
		t.Fatalf("expected refusal_accuracy 1.0 for unanswerable question, got %v", m.RefusalAccuracy)
	}
}

func TestEvaluateAnswerPayloadAnsweredRequiresCitations(t *testing.T) {
	result := types.AnswerResult{Answer: "ML-KEM is a KEM. [c1]", Citations: []types.Citation{{Key: "c1"}}}
	m := EvaluateAnswerPayload(result, true)
	if m.IsRefusal || !m.CitationPresenceOK {
		t.Fatalf("expected answered with citations ok, got %+v", m)
	}
	if m.RefusalAccuracy != 1.0 {
		t.Fatalf("expected refusal_accuracy 1.0 for correctly answered question, got %v", m.RefusalAccuracy)
	}
}

func TestSafeMean(t *testing.T) {
	if _, ok := SafeMean(nil); ok {
		t.Fatalf("expected no mean for empty slice")
	}
	v, ok := SafeMean([]float64{1, 2, 3})
	if !ok || v != 2 {
		t.Fatalf("expected mean 2, got %v ok=%v", v, ok)
	}
}

package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/jackzampolin/docqa/internal/generator"
	"github.com/jackzampolin/docqa/internal/types"
)

func sampleEvidence() []types.EvidenceItem {
	hits := []types.Hit{
		{ChunkID: "FIPS.203::p0010::c000", DocID: "FIPS.203", StartPage: 10, EndPage: 10, Text: "ML-KEM is a key-encapsulation mechanism."},
		{ChunkID: "FIPS.204::p0020::c000", DocID: "FIPS.204", StartPage: 20, EndPage: 20, Text: "ML-DSA is a digital signature scheme."},
	}
	items, _ := AssignKeys(hits)
	return items
}

func TestAssignKeysOrderAndMap(t *testing.T) {
	items := sampleEvidence()
	if items[0].Key != "c1" || items[1].Key != "c2" {
		t.Fatalf("unexpected keys: %+v", items)
	}
}

func TestEnforceInlineCitationsValidAnswer(t *testing.T) {
	evidence := sampleEvidence()
	keyMap := map[string]types.Citation{}
	for _, e := range evidence {
		keyMap[e.Key] = types.Citation{Key: e.Key, DocID: e.DocID, StartPage: e.StartPage, EndPage: e.EndPage, ChunkID: e.ChunkID}
	}
	text := "ML-KEM encapsulates a shared secret. [c1] ML-DSA signs messages. [c2]"
	result := EnforceInlineCitations(text, keyMap)
	if result.IsRefusal() {
		t.Fatalf("expected non-refusal, got %+v", result)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(result.Citations))
	}
}

func TestEnforceInlineCitationsRejectsUncitedSentence(t *testing.T) {
	keyMap := map[string]types.Citation{"c1": {Key: "c1", StartPage: 1, EndPage: 1}}
	text := "This sentence has a citation. [c1] This one does not."
	result := EnforceInlineCitations(text, keyMap)
	if !result.IsRefusal() {
		t.Fatalf("expected refusal, got %+v", result)
	}
}

func TestEnforceInlineCitationsRejectsUnknownKey(t *testing.T) {
	keyMap := map[string]types.Citation{"c1": {Key: "c1", StartPage: 1, EndPage: 1}}
	text := "Claim with a bad key. [c2]"
	result := EnforceInlineCitations(text, keyMap)
	if !result.IsRefusal() {
		t.Fatalf("expected refusal, got %+v", result)
	}
}

func TestEnforceInlineCitationsNormalizesNearMissRefusal(t *testing.T) {
	result := EnforceInlineCitations("Not Found", nil)
	if result.Answer != types.RefusalText {
		t.Fatalf("got %q", result.Answer)
	}
	if len(result.Citations) != 0 {
		t.Fatalf("expected no citations on refusal")
	}
}

func TestBuildContextFormatsHeaders(t *testing.T) {
	ctx := BuildContext(sampleEvidence())
	if !strings.Contains(ctx, "[c1] | FIPS.203 | p10-p10 | FIPS.203::p0010::c000") {
		t.Fatalf("missing expected header, got %s", ctx)
	}
}

func TestBuildCitedAnswerUsesGeneratorOutput(t *testing.T) {
	evidence := sampleEvidence()
	allHits := make([]types.Hit, len(evidence))
	for i, e := range evidence {
		allHits[i] = e.Hit
	}
	gen := &generator.FakeGenerator{Response: "ML-KEM is a key-encapsulation mechanism. [c1] ML-DSA is a digital signature scheme. [c2]"}
	result := BuildCitedAnswer(context.Background(), "compare ML-KEM and ML-DSA", evidence, allHits, gen)
	if result.IsRefusal() {
		t.Fatalf("expected non-refusal, got %+v", result)
	}
}

func TestBuildCitedAnswerFallsBackOnCompareRefusal(t *testing.T) {
	evidence := sampleEvidence()
	allHits := make([]types.Hit, len(evidence))
	for i, e := range evidence {
		allHits[i] = e.Hit
	}
	gen := &generator.FakeGenerator{Response: types.RefusalText}
	result := BuildCitedAnswer(context.Background(), "compare ML-KEM and ML-DSA", evidence, allHits, gen)
	if result.IsRefusal() {
		t.Fatalf("expected compare fallback to produce an answer, got refusal")
	}
	if len(result.Citations) != 2 {
		t.Fatalf("expected 2 citations from compare fallback, got %d", len(result.Citations))
	}
}

func TestBuildCitedAnswerEmptyEvidenceRefuses(t *testing.T) {
	gen := &generator.FakeGenerator{Response: "anything"}
	result := BuildCitedAnswer(context.Background(), "what is it", nil, nil, gen)
	if !result.IsRefusal() {
		t.Fatalf("expected refusal on empty evidence")
	}
}

package main

import (
	"testing"

	"github.com/jackzampolin/docqa/internal/types"
)

func TestFormatCitations(t *testing.T) {
	result := types.AnswerResult{
		Citations: []types.Citation{
			{Key: "c1", DocID: "FIPS.203", StartPage: 8, EndPage: 9, ChunkID: "ch1"},
		},
	}
	got := formatCitations(result)
	want := "[c1] FIPS.203 p8-p9 chunk_id=ch1"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestValidateAnswerPayloadRejectsMissingModel(t *testing.T) {
	raw := []byte(`{"answer":"not found in provided docs","citations":[]}`)
	if err := validateAnswerPayload(raw); err == nil {
		t.Fatalf("expected schema rejection for missing model field")
	}
}

func TestValidateAnswerPayloadAcceptsWellFormed(t *testing.T) {
	raw := []byte(`{"answer":"x [c1]","citations":[{"key":"c1","doc_id":"D","start_page":1,"end_page":1,"chunk_id":"ch1"}],"model":"gpt-4o-mini"}`)
	if err := validateAnswerPayload(raw); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestFormatCitationsEmpty(t *testing.T) {
	if got := formatCitations(types.AnswerResult{}); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

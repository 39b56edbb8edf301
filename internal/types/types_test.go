package types

import "testing"

func TestAnswerResultIsRefusal(t *testing.T) {
	r := AnswerResult{Answer: "Not Found In Provided Docs"}
	if !r.IsRefusal() {
		t.Fatal("expected case-insensitive refusal match")
	}
	if (AnswerResult{Answer: "the answer is 42 [c1]"}).IsRefusal() {
		t.Fatal("did not expect a normal answer to be treated as a refusal")
	}
}

func TestExtractCitationKeys(t *testing.T) {
	got := ExtractCitationKeys("x is y [c1][C2], also see [c1, c3]")
	want := []string{"c1", "c2", "c3"}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			t.Fatalf("expected key %q in %v", k, got)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(got), len(want), got)
	}
}

func TestExtractCitationKeysIgnoresNonCiteBrackets(t *testing.T) {
	got := ExtractCitationKeys("see [figure 1] for details")
	if len(got) != 0 {
		t.Fatalf("expected no citation keys, got %v", got)
	}
}

func TestValidateAnswerRefusalMustHaveNoCitations(t *testing.T) {
	r := AnswerResult{Answer: RefusalText, Citations: []Citation{{Key: "c1", StartPage: 1, EndPage: 1}}}
	if err := ValidateAnswer(r, true, true); err == nil {
		t.Fatal("expected error for refusal carrying citations")
	}
}

func TestValidateAnswerRequiresCitationsWhenNonRefusal(t *testing.T) {
	r := AnswerResult{Answer: "the sky is blue"}
	if err := ValidateAnswer(r, true, false); err == nil {
		t.Fatal("expected error for non-refusal answer with no citations")
	}
}

func TestValidateAnswerRejectsInvalidPageRange(t *testing.T) {
	r := AnswerResult{
		Answer:    "x [c1]",
		Citations: []Citation{{Key: "c1", StartPage: 5, EndPage: 2}},
	}
	if err := ValidateAnswer(r, true, false); err == nil {
		t.Fatal("expected error for start_page > end_page")
	}
}

func TestValidateAnswerRejectsUnknownInlineMarker(t *testing.T) {
	r := AnswerResult{
		Answer:    "x [c1] and [c2]",
		Citations: []Citation{{Key: "c1", StartPage: 1, EndPage: 1}},
	}
	if err := ValidateAnswer(r, true, true); err == nil {
		t.Fatal("expected error for inline marker with no matching citation")
	}
}

func TestValidateAnswerAcceptsWellFormed(t *testing.T) {
	r := AnswerResult{
		Answer:    "x [c1]",
		Citations: []Citation{{Key: "c1", StartPage: 1, EndPage: 2}},
	}
	if err := ValidateAnswer(r, true, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

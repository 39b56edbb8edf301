package eval

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestQIDSortKeyOrdersNumerically(t *testing.T) {
	qids := []string{"q10", "q2", "q1"}
	rows := questionsFromQIDs(qids)
	SortQuestionsByQID(rows)
	got := []string{rows[0].QID, rows[1].QID, rows[2].QID}
	want := []string{"q1", "q2", "q10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func questionsFromQIDs(qids []string) []Question {
	rows := make([]Question, len(qids))
	for i, q := range qids {
		rows[i] = Question{QID: q, Question: "x", Answerable: false}
	}
	return rows
}

func TestValidateQuestionsRejectsDuplicateQID(t *testing.T) {
	rows := []Question{
		{QID: "q1", Question: "a", Answerable: false},
		{QID: "q1", Question: "b", Answerable: false},
	}
	if err := ValidateQuestions(rows, true); err == nil {
		t.Fatalf("expected duplicate qid error")
	}
}

func TestValidateQuestionsRequiresGoldWhenAnswerable(t *testing.T) {
	rows := []Question{{QID: "q1", Question: "a", Answerable: true}}
	if err := ValidateQuestions(rows, true); err == nil {
		t.Fatalf("expected missing-gold error")
	}
	if err := ValidateQuestions(rows, false); err != nil {
		t.Fatalf("expected no error when require_labeled=false, got %v", err)
	}
}

func TestValidateQuestionsRejectsGoldOnUnanswerable(t *testing.T) {
	rows := []Question{{
		QID: "q1", Question: "a", Answerable: false,
		Gold: []GoldSpan{{DocID: "D", StartPage: 1, EndPage: 1}},
	}}
	if err := ValidateQuestions(rows, true); err == nil {
		t.Fatalf("expected gold-on-unanswerable error")
	}
}

func TestValidateQuestionsRejectsBadGoldSpan(t *testing.T) {
	rows := []Question{{
		QID: "q1", Question: "a", Answerable: true,
		Gold: []GoldSpan{{DocID: "D", StartPage: 5, EndPage: 2}},
	}}
	if err := ValidateQuestions(rows, true); err == nil {
		t.Fatalf("expected start>end gold span error")
	}
}

func TestLoadQuestionsSortsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questions.jsonl")
	content := `{"qid":"q10","question":"What is ML-DSA?","answerable":true,"gold":[{"doc_id":"FIPS.204","start_page":1,"end_page":2}]}
{"qid":"q2","question":"What is ML-KEM?","answerable":true,"gold":[{"doc_id":"FIPS.203","start_page":8,"end_page":9}]}
{"qid":"q1","question":"unanswerable one","answerable":false,"gold":[]}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rows, err := LoadQuestions(path, true)
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	got := []string{rows[0].QID, rows[1].QID, rows[2].QID}
	want := []string{"q1", "q2", "q10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v want %v", got, want)
		}
	}
}

func TestLoadQuestionsMissingFile(t *testing.T) {
	if _, err := LoadQuestions(filepath.Join(t.TempDir(), "missing.jsonl"), true); err == nil {
		t.Fatalf("expected error for missing dataset")
	}
}

func TestValidateQuestionsErrorIsLineAware(t *testing.T) {
	rows := []Question{
		{QID: "q1", Question: "a", Answerable: false},
		{QID: "q1", Question: "b", Answerable: false},
	}
	err := ValidateQuestions(rows, true)
	var dsErr *DatasetError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected *DatasetError, got %T: %v", err, err)
	}
	if dsErr.Row != 2 || dsErr.QID != "q1" {
		t.Fatalf("expected row 2, qid q1, got row=%d qid=%q", dsErr.Row, dsErr.QID)
	}
}

func TestLoadQuestionsRejectsMalformedRowShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questions.jsonl")
	content := `{"qid":"q1","question":"What is ML-KEM?","answerable":"yes"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadQuestions(path, false); err == nil {
		t.Fatalf("expected schema rejection for non-boolean answerable")
	}
}

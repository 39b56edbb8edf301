package eval

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/docqa/internal/types"
)

func sampleQuestions() []Question {
	return []Question{
		{QID: "q1", Question: "What is ML-KEM?", Answerable: true,
			Gold: []GoldSpan{{DocID: "FIPS.203", StartPage: 8, EndPage: 9}}},
		{QID: "q2", Question: "What is ML-DSA?", Answerable: true,
			Gold: []GoldSpan{{DocID: "FIPS.204", StartPage: 20, EndPage: 20}}},
		{QID: "q3", Question: "What is the capital of nowhere?", Answerable: false},
	}
}

func fakeRetriever(t *testing.T) Retriever {
	t.Helper()
	return func(query string, depth int) ([]types.Hit, error) {
		switch query {
		case "What is ML-KEM?":
			return []types.Hit{
				{DocID: "FIPS.203", StartPage: 8, EndPage: 8, ChunkID: "c1", Score: 1.0},
				{DocID: "FIPS.204", StartPage: 1, EndPage: 1, ChunkID: "c2", Score: 0.5},
			}, nil
		case "What is ML-DSA?":
			return []types.Hit{
				{DocID: "FIPS.203", StartPage: 1, EndPage: 1, ChunkID: "c3", Score: 0.9},
			}, nil
		default:
			return nil, nil
		}
	}
}

func baseConfig() RunConfig {
	return RunConfig{
		Mode: "base", Backend: "bm25", K: 3, Ks: []int{1, 3},
		RetrievalDepth: 5, NearPageTolerance: 1, K0: 60, CandidateMultiplier: 4,
		Fusion: true, Rerank: true, RerankPool: 30,
	}
}

func TestRunScoresRetrievalOnlyForLabeledAnswerableQuestions(t *testing.T) {
	report, err := Run(sampleQuestions(), baseConfig(), fakeRetriever(t), nil, "eval/questions.jsonl", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Retrieval.NQuestions != 2 {
		t.Fatalf("expected 2 scored questions, got %d", report.Summary.Retrieval.NQuestions)
	}
	if len(report.Summary.Retrieval.SkippedUnanswerableQIDs) != 1 {
		t.Fatalf("expected 1 skipped unanswerable qid, got %+v", report.Summary.Retrieval.SkippedUnanswerableQIDs)
	}
	if report.Summary.Retrieval.NQuestionsWithGoldInPrimaryK != 1 {
		t.Fatalf("expected q1 to have gold in primary k, got %+v", report.Summary.Retrieval.QuestionsWithGoldInPrimaryKQIDs)
	}
	if report.Summary.Retrieval.NQuestionsWithoutGoldInPrimaryK != 1 {
		t.Fatalf("expected q2 to miss gold in primary k, got %d", report.Summary.Retrieval.NQuestionsWithoutGoldInPrimaryK)
	}
}

func TestRunWithAnswersScoresCitationMetrics(t *testing.T) {
	answerFn := func(q string) (types.AnswerResult, error) {
		if q == "What is the capital of nowhere?" {
			return types.AnswerResult{Answer: types.RefusalText}, nil
		}
		return types.AnswerResult{Answer: q + " [c1]", Citations: []types.Citation{{Key: "c1"}}}, nil
	}
	cfg := baseConfig()
	cfg.WithAnswers = true
	report, err := Run(sampleQuestions(), cfg, fakeRetriever(t), answerFn, "eval/questions.jsonl", time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Counts.AnswerEvaluatedQuestions != 3 {
		t.Fatalf("expected all 3 questions answer-evaluated, got %d", report.Summary.Counts.AnswerEvaluatedQuestions)
	}
	if report.Summary.Answer.RefusalAccuracy == nil || *report.Summary.Answer.RefusalAccuracy != 1.0 {
		t.Fatalf("expected perfect refusal accuracy, got %+v", report.Summary.Answer.RefusalAccuracy)
	}
}

func TestRunWithAnswersRequiresAnswerFn(t *testing.T) {
	cfg := baseConfig()
	cfg.WithAnswers = true
	if _, err := Run(sampleQuestions(), cfg, fakeRetriever(t), nil, "eval/questions.jsonl", time.Now()); err == nil {
		t.Fatalf("expected error when with_answers set but no AnswerFn supplied")
	}
}

func TestRunRecordsAnswerErrors(t *testing.T) {
	answerFn := func(q string) (types.AnswerResult, error) {
		return types.AnswerResult{}, errors.New("generator unavailable")
	}
	cfg := baseConfig()
	cfg.WithAnswers = true
	report, err := Run(sampleQuestions(), cfg, fakeRetriever(t), answerFn, "eval/questions.jsonl", time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Counts.AnswerErrors != 3 {
		t.Fatalf("expected all 3 answer calls to error, got %d", report.Summary.Counts.AnswerErrors)
	}
}

func TestWriteReportProducesAllThreeArtifacts(t *testing.T) {
	report, err := Run(sampleQuestions(), baseConfig(), fakeRetriever(t), nil, "eval/questions.jsonl", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := t.TempDir()
	paths, err := WriteReport(report, outDir)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	for _, name := range []string{"per_question", "summary_json", "summary_md"} {
		path, ok := paths[name]
		if !ok {
			t.Fatalf("missing artifact path for %s", name)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
	if filepath.Dir(paths["summary_md"]) != outDir {
		t.Fatalf("expected artifact under %s, got %s", outDir, paths["summary_md"])
	}
}

func TestBuildRunIDIsDeterministicForSameInputs(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := BuildRunID("eval/day4/questions.jsonl", ts)
	b := BuildRunID("eval/day4/questions.jsonl", ts)
	if a != b {
		t.Fatalf("expected deterministic run id, got %q vs %q", a, b)
	}
	if a != "questions_20260102T030405Z" {
		t.Fatalf("unexpected run id: %q", a)
	}
}

func TestBuildSummaryMarkdownNotesZeroTolerance(t *testing.T) {
	cfg := baseConfig()
	cfg.NearPageTolerance = 0
	report, err := Run(sampleQuestions(), cfg, fakeRetriever(t), nil, "eval/questions.jsonl", time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	md := BuildSummaryMarkdown(report.Summary)
	if !strings.Contains(md, "near_page_tolerance=0 makes near_page equivalent to strict") {
		t.Fatalf("expected zero-tolerance note in markdown, got:\n%s", md)
	}
}

package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackzampolin/docqa/internal/types"
)

// RunConfig captures every knob that affects a run's artifacts, recorded
// verbatim into the summary for reproducibility.
type RunConfig struct {
	Mode                string `json:"mode"`
	Backend             string `json:"backend"`
	K                   int    `json:"k"`
	Ks                  []int  `json:"ks"`
	RetrievalDepth      int    `json:"retrieval_depth"`
	NearPageTolerance   int    `json:"near_page_tolerance"`
	K0                  int    `json:"k0"`
	CandidateMultiplier int    `json:"candidate_multiplier"`
	Fusion              bool   `json:"fusion"`
	Rerank              bool   `json:"rerank"`
	RerankPool          int    `json:"rerank_pool"`
	WithAnswers         bool   `json:"with_answers"`
	AllowUnlabeled      bool   `json:"allow_unlabeled"`
}

// PrimaryK returns cfg.K when it is one of the requested ks, else the
// largest requested k, mirroring the CLI's primary-k fallback.
func (cfg RunConfig) PrimaryK() int {
	for _, k := range cfg.Ks {
		if k == cfg.K {
			return cfg.K
		}
	}
	max := 0
	for _, k := range cfg.Ks {
		if k > max {
			max = k
		}
	}
	return max
}

// TopHitRef is a compact, display-friendly reference to a retrieved hit.
type TopHitRef struct {
	Rank    int    `json:"rank"`
	DocID   string `json:"doc_id"`
	Pages   string `json:"pages"`
	ChunkID string `json:"chunk_id"`
}

func topHitRefs(hits []types.Hit, limit int) []TopHitRef {
	if limit < 0 {
		limit = 0
	}
	if limit > len(hits) {
		limit = len(hits)
	}
	out := make([]TopHitRef, 0, limit)
	for i, h := range hits[:limit] {
		out = append(out, TopHitRef{
			Rank:    i + 1,
			DocID:   h.DocID,
			Pages:   fmt.Sprintf("p%d-p%d", h.StartPage, h.EndPage),
			ChunkID: h.ChunkID,
		})
	}
	return out
}

func goldHitRanks(hits []types.Hit, gold []GoldSpan, k int, matcher func(types.Hit, GoldSpan) bool) []int {
	var ranks []int
	for i, h := range clampK(hits, k) {
		for _, g := range gold {
			if matcher(h, g) {
				ranks = append(ranks, i+1)
				break
			}
		}
	}
	return ranks
}

func hasHitInTopK(ranks []int, k int) bool {
	for _, r := range ranks {
		if r <= k {
			return true
		}
	}
	return false
}

func hitRateAtK(rankLists [][]int, k int) (float64, bool) {
	if len(rankLists) == 0 {
		return 0, false
	}
	hits := 0
	for _, ranks := range rankLists {
		if hasHitInTopK(ranks, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(rankLists)), true
}

// QuestionResult is one row of the per_question.jsonl artifact.
type QuestionResult struct {
	QID                 string                       `json:"qid"`
	Question            string                       `json:"question"`
	Answerable          bool                         `json:"answerable"`
	Gold                []GoldSpan                   `json:"gold"`
	RetrievalMetrics    map[string]RetrievalMetrics  `json:"retrieval_metrics,omitempty"`
	RetrievalPrimary    *RetrievalMetrics            `json:"retrieval_primary,omitempty"`
	GoldHitRanks        []int                        `json:"gold_hit_ranks"`
	DocHitRanks         []int                        `json:"doc_hit_ranks"`
	NearPageHitRanks    []int                        `json:"near_page_hit_ranks"`
	HasGoldInPrimaryK   *bool                        `json:"has_gold_in_primary_k,omitempty"`
	TopHitIDs           []TopHitRef                  `json:"top_hit_ids"`
	Hits                []types.Hit                  `json:"hits"`
	Answer              *types.AnswerResult          `json:"answer,omitempty"`
	AnswerMetrics       *AnswerMetrics               `json:"answer_metrics,omitempty"`
	AnswerError         string                       `json:"answer_error,omitempty"`
}

// MissedQuestion records one answerable, labeled question whose gold
// spans were not recovered within the primary k.
type MissedQuestion struct {
	QID          string      `json:"qid"`
	Question     string      `json:"question"`
	Gold         []GoldSpan  `json:"gold"`
	GoldHitRanks []int       `json:"gold_hit_ranks"`
	TopHitIDs    []TopHitRef `json:"top_hit_ids"`
}

// SecondaryHitRate bundles the three relaxed diagnostics at one k.
type SecondaryHitRate struct {
	StrictPageOverlap *float64 `json:"strict_page_overlap"`
	DocOnly           *float64 `json:"doc_only"`
	NearPageTolerance *float64 `json:"near_page_tolerance"`
}

// RetrievalSummary aggregates retrieval metrics across all evaluated
// questions.
type RetrievalSummary struct {
	ScoringScope                     string                      `json:"scoring_scope"`
	MetricKs                         []int                       `json:"metric_ks"`
	PrimaryK                         int                         `json:"primary_k"`
	NQuestions                       int                         `json:"n_questions"`
	SkippedUnanswerableQIDs          []string                    `json:"skipped_unanswerable_qids"`
	SkippedUnlabeledAnswerableQIDs   []string                    `json:"skipped_unlabeled_answerable_qids"`
	AtK                              map[string]AggregateAtK     `json:"at_k"`
	RecallAtK                        *float64                    `json:"recall_at_k"`
	MRRAtK                           *float64                    `json:"mrr_at_k"`
	NDCGAtK                          *float64                    `json:"ndcg_at_k"`
	NQuestionsWithGoldInPrimaryK      int                         `json:"n_questions_with_gold_in_primary_k"`
	NQuestionsWithoutGoldInPrimaryK   int                         `json:"n_questions_without_gold_in_primary_k"`
	QuestionsWithGoldInPrimaryKQIDs   []string                    `json:"questions_with_gold_in_primary_k_qids"`
	QuestionsWithoutGoldInPrimaryK    []MissedQuestion            `json:"questions_without_gold_in_primary_k"`
	SecondaryDiagnostics              SecondaryDiagnostics        `json:"secondary_diagnostics"`
}

// AggregateAtK is the mean recall/mrr/ndcg across evaluated questions at
// one k.
type AggregateAtK struct {
	Recall *float64 `json:"recall"`
	MRR    *float64 `json:"mrr"`
	NDCG   *float64 `json:"ndcg"`
}

// SecondaryDiagnostics bundles the relaxed hit-rate-style diagnostics.
type SecondaryDiagnostics struct {
	NearPageTolerance int                         `json:"near_page_tolerance"`
	PrimaryKHitRate   SecondaryHitRate            `json:"primary_k_hit_rate"`
	HitRateAtK        map[string]SecondaryHitRate `json:"hit_rate_at_k"`
}

// AnswerSummary aggregates the citation/refusal diagnostics across every
// question that was scored with an answer.
type AnswerSummary struct {
	Enabled                    bool     `json:"enabled"`
	ModelDependent             bool     `json:"model_dependent"`
	Note                       string   `json:"note"`
	CitationPresenceRate       *float64 `json:"citation_presence_rate"`
	InlineCitationSentenceRate *float64 `json:"inline_citation_sentence_rate"`
	RefusalAccuracy            *float64 `json:"refusal_accuracy"`
}

// Counts summarizes dataset composition and evaluation coverage.
type Counts struct {
	TotalQuestions                   int `json:"total_questions"`
	AnswerableQuestions              int `json:"answerable_questions"`
	UnanswerableQuestions            int `json:"unanswerable_questions"`
	LabeledAnswerableQuestions       int `json:"labeled_answerable_questions"`
	UnlabeledAnswerableQuestions     int `json:"unlabeled_answerable_questions"`
	RetrievalEvaluatedQuestions      int `json:"retrieval_evaluated_questions"`
	RetrievalSkippedUnanswerable     int `json:"retrieval_skipped_unanswerable"`
	RetrievalSkippedUnlabeledAnswerable int `json:"retrieval_skipped_unlabeled_answerable"`
	AnswerEvaluatedQuestions         int `json:"answer_evaluated_questions"`
	AnswerErrors                     int `json:"answer_errors"`
}

// Summary is the top-level summary.json artifact.
type Summary struct {
	RunID          string            `json:"run_id"`
	GeneratedAtUTC string            `json:"generated_at_utc"`
	DatasetPath    string            `json:"dataset_path"`
	RunConfig      RunConfig         `json:"run_config"`
	Counts         Counts            `json:"counts"`
	Retrieval      RetrievalSummary  `json:"retrieval"`
	Answer         AnswerSummary     `json:"answer"`
	ArtifactPaths  map[string]string `json:"artifact_paths"`
}

// Report bundles everything a run produces: the per-question rows plus
// the aggregate summary.
type Report struct {
	PerQuestion []QuestionResult
	Summary     Summary
}

// Retriever returns, in rank order, up to depth hits for query.
type Retriever func(query string, depth int) ([]types.Hit, error)

// AnswerFn produces a cited (or refusing) answer for query.
type AnswerFn func(query string) (types.AnswerResult, error)

// Run executes retrieval (and, if cfg.WithAnswers, answering) over
// questions and assembles the full Report, mirroring the scoring
// contract: only answerable questions carrying at least one gold span
// are scored for retrieval metrics.
func Run(questions []Question, cfg RunConfig, retrieve Retriever, answer AnswerFn, datasetPath string, generatedAt time.Time) (Report, error) {
	primaryK := cfg.PrimaryK()
	retrievalRowsByK := make(map[int][]RetrievalMetrics, len(cfg.Ks))
	for _, k := range cfg.Ks {
		retrievalRowsByK[k] = nil
	}

	var (
		perQuestion                     []QuestionResult
		retrievalEvalQIDs               []string
		skippedUnanswerable             []string
		skippedUnlabeled                []string
		strictRankLists                 [][]int
		docOnlyRankLists                [][]int
		nearPageRankLists               [][]int
		withGoldInPrimaryK              []string
		withoutGoldInPrimaryK           []MissedQuestion
		answerMetricsRows               []AnswerMetrics
		answerErrors                    int
	)

	for _, row := range questions {
		hits, err := retrieve(row.Question, cfg.RetrievalDepth)
		if err != nil {
			return Report{}, fmt.Errorf("eval: retrieve %q: %w", row.QID, err)
		}

		qr := QuestionResult{
			QID:        row.QID,
			Question:   row.Question,
			Answerable: row.Answerable,
			Gold:       row.Gold,
			Hits:       hits,
			TopHitIDs:  topHitRefs(hits, minInt(10, cfg.RetrievalDepth)),
		}

		switch {
		case row.Answerable && len(row.Gold) > 0:
			metricsByK := ComputeRetrievalMetricsByKs(hits, row.Gold, cfg.Ks)
			qr.RetrievalMetrics = metricsByK
			if primary, ok := metricsByK[formatK(primaryK)]; ok {
				qr.RetrievalPrimary = &primary
			}
			for _, k := range cfg.Ks {
				retrievalRowsByK[k] = append(retrievalRowsByK[k], metricsByK[formatK(k)])
			}
			retrievalEvalQIDs = append(retrievalEvalQIDs, row.QID)

			qr.GoldHitRanks = goldHitRanks(hits, row.Gold, cfg.RetrievalDepth, HitMatchesGold)
			qr.DocHitRanks = goldHitRanks(hits, row.Gold, cfg.RetrievalDepth, HitMatchesGoldDocOnly)
			qr.NearPageHitRanks = goldHitRanks(hits, row.Gold, cfg.RetrievalDepth, func(h types.Hit, g GoldSpan) bool {
				return HitMatchesGoldWithTolerance(h, g, cfg.NearPageTolerance)
			})
			strictRankLists = append(strictRankLists, qr.GoldHitRanks)
			docOnlyRankLists = append(docOnlyRankLists, qr.DocHitRanks)
			nearPageRankLists = append(nearPageRankLists, qr.NearPageHitRanks)

			hasGold := hasHitInTopK(qr.GoldHitRanks, primaryK)
			qr.HasGoldInPrimaryK = &hasGold
			if hasGold {
				withGoldInPrimaryK = append(withGoldInPrimaryK, row.QID)
			} else {
				withoutGoldInPrimaryK = append(withoutGoldInPrimaryK, MissedQuestion{
					QID: row.QID, Question: row.Question, Gold: row.Gold,
					GoldHitRanks: qr.GoldHitRanks, TopHitIDs: qr.TopHitIDs,
				})
			}
		case !row.Answerable:
			skippedUnanswerable = append(skippedUnanswerable, row.QID)
		default:
			skippedUnlabeled = append(skippedUnlabeled, row.QID)
		}

		if cfg.WithAnswers {
			if answer == nil {
				return Report{}, fmt.Errorf("eval: with_answers requested but no AnswerFn supplied")
			}
			result, err := answer(row.Question)
			if err != nil {
				answerErrors++
				qr.AnswerError = err.Error()
			} else {
				qr.Answer = &result
				m := EvaluateAnswerPayload(result, row.Answerable)
				qr.AnswerMetrics = &m
				answerMetricsRows = append(answerMetricsRows, m)
			}
		}

		perQuestion = append(perQuestion, qr)
	}

	retrievalAtK := make(map[string]AggregateAtK, len(cfg.Ks))
	for _, k := range cfg.Ks {
		rows := retrievalRowsByK[k]
		retrievalAtK[formatK(k)] = AggregateAtK{
			Recall: meanPtr(pluck(rows, func(m RetrievalMetrics) float64 { return m.RecallAtK })),
			MRR:    meanPtr(pluck(rows, func(m RetrievalMetrics) float64 { return m.MRRAtK })),
			NDCG:   meanPtr(pluck(rows, func(m RetrievalMetrics) float64 { return m.NDCGAtK })),
		}
	}
	primaryAgg := retrievalAtK[formatK(primaryK)]

	secondaryAtK := make(map[string]SecondaryHitRate, len(cfg.Ks))
	for _, k := range cfg.Ks {
		secondaryAtK[formatK(k)] = SecondaryHitRate{
			StrictPageOverlap: ptrOrNil(hitRateAtK(strictRankLists, k)),
			DocOnly:           ptrOrNil(hitRateAtK(docOnlyRankLists, k)),
			NearPageTolerance: ptrOrNil(hitRateAtK(nearPageRankLists, k)),
		}
	}
	primarySecondary := secondaryAtK[formatK(primaryK)]

	sort.Strings(skippedUnanswerable)
	sort.Strings(skippedUnlabeled)
	sortQIDs(withGoldInPrimaryK)
	sort.SliceStable(withoutGoldInPrimaryK, func(i, j int) bool {
		return lessQID(withoutGoldInPrimaryK[i].QID, withoutGoldInPrimaryK[j].QID)
	})

	retrieval := RetrievalSummary{
		ScoringScope:                    "answerable_with_non_empty_gold_only",
		MetricKs:                        cfg.Ks,
		PrimaryK:                        primaryK,
		NQuestions:                      len(retrievalEvalQIDs),
		SkippedUnanswerableQIDs:         orEmpty(skippedUnanswerable),
		SkippedUnlabeledAnswerableQIDs:  orEmpty(skippedUnlabeled),
		AtK:                             retrievalAtK,
		RecallAtK:                       primaryAgg.Recall,
		MRRAtK:                          primaryAgg.MRR,
		NDCGAtK:                         primaryAgg.NDCG,
		NQuestionsWithGoldInPrimaryK:    len(withGoldInPrimaryK),
		NQuestionsWithoutGoldInPrimaryK: len(withoutGoldInPrimaryK),
		QuestionsWithGoldInPrimaryKQIDs: orEmpty(withGoldInPrimaryK),
		QuestionsWithoutGoldInPrimaryK:  withoutGoldInPrimaryK,
		SecondaryDiagnostics: SecondaryDiagnostics{
			NearPageTolerance: cfg.NearPageTolerance,
			PrimaryKHitRate:   primarySecondary,
			HitRateAtK:        secondaryAtK,
		},
	}

	answerSummary := AnswerSummary{
		Enabled:        cfg.WithAnswers,
		ModelDependent: true,
		Note:           "Answer metrics are model-dependent and less stable than retrieval metrics; use retrieval metrics as primary regression signals.",
		CitationPresenceRate: meanPtr(pluck(answerMetricsRows, func(m AnswerMetrics) float64 {
			if m.CitationPresenceOK {
				return 1
			}
			return 0
		})),
		InlineCitationSentenceRate: meanPtr(pluckFiltered(answerMetricsRows, func(m AnswerMetrics) (float64, bool) {
			return m.InlineCitationSentenceRate, m.HasInlineCitationRate
		})),
		RefusalAccuracy: meanPtr(pluck(answerMetricsRows, func(m AnswerMetrics) float64 { return m.RefusalAccuracy })),
	}

	labeledAnswerable, unlabeledAnswerable := 0, 0
	answerableCount, unanswerableCount := 0, 0
	for _, q := range questions {
		if q.Answerable {
			answerableCount++
			if len(q.Gold) > 0 {
				labeledAnswerable++
			} else {
				unlabeledAnswerable++
			}
		} else {
			unanswerableCount++
		}
	}

	runID := BuildRunID(datasetPath, generatedAt)
	counts := Counts{
		TotalQuestions:                      len(questions),
		AnswerableQuestions:                 answerableCount,
		UnanswerableQuestions:               unanswerableCount,
		LabeledAnswerableQuestions:          labeledAnswerable,
		UnlabeledAnswerableQuestions:        unlabeledAnswerable,
		RetrievalEvaluatedQuestions:         len(retrievalEvalQIDs),
		RetrievalSkippedUnanswerable:        len(skippedUnanswerable),
		RetrievalSkippedUnlabeledAnswerable: len(skippedUnlabeled),
		AnswerEvaluatedQuestions:            len(answerMetricsRows),
		AnswerErrors:                        answerErrors,
	}

	sort.SliceStable(perQuestion, func(i, j int) bool {
		return lessQID(perQuestion[i].QID, perQuestion[j].QID)
	})

	summary := Summary{
		RunID:          runID,
		GeneratedAtUTC: generatedAt.UTC().Format(time.RFC3339),
		DatasetPath:    datasetPath,
		RunConfig:      cfg,
		Counts:         counts,
		Retrieval:      retrieval,
		Answer:         answerSummary,
	}

	return Report{PerQuestion: perQuestion, Summary: summary}, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func pluck[T any](rows []T, get func(T) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = get(r)
	}
	return out
}

func pluckFiltered[T any](rows []T, get func(T) (float64, bool)) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := get(r); ok {
			out = append(out, v)
		}
	}
	return out
}

func meanPtr(values []float64) *float64 {
	v, ok := SafeMean(values)
	if !ok {
		return nil
	}
	return &v
}

func ptrOrNil(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func sortQIDs(qids []string) {
	sort.SliceStable(qids, func(i, j int) bool { return lessQID(qids[i], qids[j]) })
}

var runIDSlugInvalidRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
var runIDSlugDashesRe = regexp.MustCompile(`-{2,}`)

func slugifyForFilename(text string) string {
	slug := runIDSlugInvalidRe.ReplaceAllString(strings.TrimSpace(text), "-")
	slug = runIDSlugDashesRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "._-")
	if slug == "" {
		return "eval"
	}
	return slug
}

// BuildRunID derives a deterministic run identifier from the dataset file
// stem and the generation timestamp.
func BuildRunID(datasetPath string, generatedAt time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(datasetPath), filepath.Ext(datasetPath))
	return fmt.Sprintf("%s_%s", slugifyForFilename(stem), generatedAt.UTC().Format("20060102T150405Z"))
}

// BuildArtifactPaths returns the three output file paths for a run,
// keyed by artifact name.
func BuildArtifactPaths(outDir, runID string) map[string]string {
	return map[string]string{
		"per_question": filepath.Join(outDir, runID+"_per_question.jsonl"),
		"summary_json": filepath.Join(outDir, runID+"_summary.json"),
		"summary_md":   filepath.Join(outDir, runID+"_summary.md"),
	}
}

// WriteReport writes the per_question.jsonl, summary.json, and
// summary.md artifacts for report into outDir, returning the artifact
// paths written.
func WriteReport(report Report, outDir string) (map[string]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("eval: create outdir: %w", err)
	}

	paths := BuildArtifactPaths(outDir, report.Summary.RunID)
	report.Summary.ArtifactPaths = paths

	if err := writeJSONL(paths["per_question"], report.PerQuestion); err != nil {
		return nil, err
	}

	summaryJSON, err := json.MarshalIndent(report.Summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("eval: marshal summary: %w", err)
	}
	if err := os.WriteFile(paths["summary_json"], summaryJSON, 0o644); err != nil {
		return nil, fmt.Errorf("eval: write summary json: %w", err)
	}

	md := BuildSummaryMarkdown(report.Summary)
	if err := os.WriteFile(paths["summary_md"], []byte(md), 0o644); err != nil {
		return nil, fmt.Errorf("eval: write summary md: %w", err)
	}

	return paths, nil
}

func writeJSONL(path string, rows []QuestionResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eval: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("eval: marshal row %s: %w", row.QID, err)
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func sortedKOrder(keys map[string]AggregateAtK) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return kNumeric(out[i]) < kNumeric(out[j]) })
	return out
}

func sortedSecondaryKOrder(keys map[string]SecondaryHitRate) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return kNumeric(out[i]) < kNumeric(out[j]) })
	return out
}

func kNumeric(key string) int {
	if strings.HasPrefix(key, "k") {
		if n, err := strconv.Atoi(key[1:]); err == nil {
			return n
		}
	}
	return 1 << 30
}

// BuildSummaryMarkdown renders a human-readable report from summary.
func BuildSummaryMarkdown(summary Summary) string {
	r := summary.Retrieval
	a := summary.Answer
	var b strings.Builder

	fmt.Fprintf(&b, "# Evaluation Summary\n\n")
	fmt.Fprintf(&b, "- generated_at_utc: %s\n", summary.GeneratedAtUTC)
	fmt.Fprintf(&b, "- run_id: %s\n", summary.RunID)
	fmt.Fprintf(&b, "- dataset: %s\n", summary.DatasetPath)
	fmt.Fprintf(&b, "- total_questions: %d\n", summary.Counts.TotalQuestions)
	fmt.Fprintf(&b, "- answerable_questions: %d\n", summary.Counts.AnswerableQuestions)
	fmt.Fprintf(&b, "- unanswerable_questions: %d\n", summary.Counts.UnanswerableQuestions)
	fmt.Fprintf(&b, "- labeled_answerable_questions: %d\n", summary.Counts.LabeledAnswerableQuestions)
	fmt.Fprintf(&b, "- unlabeled_answerable_questions: %d\n\n", summary.Counts.UnlabeledAnswerableQuestions)

	fmt.Fprintf(&b, "## Retrieval\n")
	fmt.Fprintf(&b, "- scoring_scope: %s\n", r.ScoringScope)
	fmt.Fprintf(&b, "- primary_k: %d\n", r.PrimaryK)
	fmt.Fprintf(&b, "- Recall@k: %s\n", fmtFloat(r.RecallAtK))
	fmt.Fprintf(&b, "- MRR@k: %s\n", fmtFloat(r.MRRAtK))
	fmt.Fprintf(&b, "- nDCG@k: %s\n\n", fmtFloat(r.NDCGAtK))

	fmt.Fprintf(&b, "### Retrieval By K\n")
	for _, key := range sortedKOrder(r.AtK) {
		row := r.AtK[key]
		fmt.Fprintf(&b, "- %s: recall=%s, mrr=%s, ndcg=%s\n", key, fmtFloat(row.Recall), fmtFloat(row.MRR), fmtFloat(row.NDCG))
	}

	if len(r.SecondaryDiagnostics.HitRateAtK) > 0 {
		fmt.Fprintf(&b, "\n### Secondary Diagnostics\n")
		fmt.Fprintf(&b, "- near_page_tolerance: %d\n", r.SecondaryDiagnostics.NearPageTolerance)
		for _, key := range sortedSecondaryKOrder(r.SecondaryDiagnostics.HitRateAtK) {
			diag := r.SecondaryDiagnostics.HitRateAtK[key]
			fmt.Fprintf(&b, "- %s: strict=%s, doc_only=%s, near_page=%s\n",
				key, fmtFloat(diag.StrictPageOverlap), fmtFloat(diag.DocOnly), fmtFloat(diag.NearPageTolerance))
		}
	}

	fmt.Fprintf(&b, "\n### Metric Definitions\n")
	fmt.Fprintf(&b, "- Retrieval By K:\n")
	fmt.Fprintf(&b, "  Recall@k = average fraction of gold spans recovered per question; MRR@k = average reciprocal first strict-hit rank; nDCG@k = rank-aware gain over unique gold spans.\n")
	fmt.Fprintf(&b, "- Secondary Diagnostics:\n")
	fmt.Fprintf(&b, "  hit-rate style metrics (per-question success rate): at least one matching hit appears in top-k.\n")
	fmt.Fprintf(&b, "- strict:\n  doc_id match + page overlap (same relevance rule as primary retrieval metrics).\n")
	fmt.Fprintf(&b, "- doc_only:\n  doc_id must match; page overlap is ignored.\n")
	fmt.Fprintf(&b, "- near_page:\n  doc_id match + page overlap with +-near_page_tolerance slack.\n")
	fmt.Fprintf(&b, "- Why numbers differ:\n  Retrieval By K is span-coverage/rank quality; Secondary Diagnostics is question-level any-hit rate, so strict can be higher when questions have multiple gold spans.\n")
	if r.SecondaryDiagnostics.NearPageTolerance == 0 {
		fmt.Fprintf(&b, "- Note: near_page_tolerance=0 makes near_page equivalent to strict.\n")
	}

	fmt.Fprintf(&b, "\n### Questions Missing Gold In Top-k\n")
	fmt.Fprintf(&b, "- count: %d\n", r.NQuestionsWithoutGoldInPrimaryK)
	if len(r.QuestionsWithoutGoldInPrimaryK) == 0 {
		fmt.Fprintf(&b, "- none\n")
	} else {
		for _, row := range r.QuestionsWithoutGoldInPrimaryK {
			fmt.Fprintf(&b, "- %s: %s | gold=%s | top_hits=%s\n",
				row.QID, row.Question, formatGoldSpans(row.Gold), formatTopHitsForMD(row.TopHitIDs, 3))
		}
	}

	fmt.Fprintf(&b, "\n## Answer\n")
	fmt.Fprintf(&b, "- enabled: %v\n", a.Enabled)
	fmt.Fprintf(&b, "- model_dependent: %v\n", a.ModelDependent)
	fmt.Fprintf(&b, "- note: %s\n", a.Note)
	fmt.Fprintf(&b, "- answer_evaluated: %d\n", summary.Counts.AnswerEvaluatedQuestions)
	fmt.Fprintf(&b, "- citation_presence_rate: %s\n", fmtFloat(a.CitationPresenceRate))
	fmt.Fprintf(&b, "- inline_citation_sentence_rate: %s\n", fmtFloat(a.InlineCitationSentenceRate))
	fmt.Fprintf(&b, "- refusal_accuracy: %s\n", fmtFloat(a.RefusalAccuracy))

	return b.String()
}

func formatGoldSpans(gold []GoldSpan) string {
	if len(gold) == 0 {
		return "[]"
	}
	parts := make([]string, len(gold))
	for i, g := range gold {
		parts[i] = fmt.Sprintf("%s:p%d-p%d", g.DocID, g.StartPage, g.EndPage)
	}
	return strings.Join(parts, ", ")
}

func formatTopHitsForMD(hits []TopHitRef, limit int) string {
	if limit > len(hits) {
		limit = len(hits)
	}
	if limit <= 0 {
		return "none"
	}
	parts := make([]string, limit)
	for i, h := range hits[:limit] {
		parts[i] = fmt.Sprintf("r%d %s %s", h.Rank, h.DocID, h.Pages)
	}
	return strings.Join(parts, "; ")
}

package eval

import (
	"math"
	"regexp"
	"strings"

	"github.com/jackzampolin/docqa/internal/types"
)

var inlineCitationRe = regexp.MustCompile(`\[c\d+\]`)

// SpansOverlap reports whether two inclusive page ranges overlap.
func SpansOverlap(startA, endA, startB, endB int) bool {
	return !(endA < startB || endB < startA)
}

// HitMatchesGold is the binary relevance contract for retrieval eval: a
// hit is relevant iff its doc_id matches gold's and the page ranges
// overlap.
func HitMatchesGold(hit types.Hit, gold GoldSpan) bool {
	if hit.DocID != gold.DocID {
		return false
	}
	return SpansOverlap(hit.StartPage, hit.EndPage, gold.StartPage, gold.EndPage)
}

// HitMatchesGoldDocOnly is a relaxed diagnostic: relevant iff the
// document ids match, ignoring page overlap.
func HitMatchesGoldDocOnly(hit types.Hit, gold GoldSpan) bool {
	return hit.DocID == gold.DocID
}

// HitMatchesGoldWithTolerance is a relaxed diagnostic: doc_id match plus
// overlap with +/- pageTolerance slack on the gold span.
func HitMatchesGoldWithTolerance(hit types.Hit, gold GoldSpan, pageTolerance int) bool {
	if hit.DocID != gold.DocID {
		return false
	}
	return SpansOverlap(hit.StartPage, hit.EndPage, gold.StartPage-pageTolerance, gold.EndPage+pageTolerance)
}

// uniqueGoldGainVector produces a binary gain vector where each gold span
// contributes at most once, keeping nDCG bounded in [0, 1] even when
// multiple hits overlap the same gold span.
func uniqueGoldGainVector(hits []types.Hit, gold []GoldSpan, k int) []int {
	if k > len(hits) {
		k = len(hits)
	}
	usedGold := make([]bool, len(gold))
	gains := make([]int, 0, k)
	for _, hit := range hits[:k] {
		gain := 0
		for i, g := range gold {
			if usedGold[i] {
				continue
			}
			if HitMatchesGold(hit, g) {
				usedGold[i] = true
				gain = 1
				break
			}
		}
		gains = append(gains, gain)
	}
	return gains
}

func clampK(hits []types.Hit, k int) []types.Hit {
	if k > len(hits) {
		k = len(hits)
	}
	if k < 0 {
		k = 0
	}
	return hits[:k]
}

// RecallAtK is the average fraction of gold spans recovered within the
// top k hits, with each gold span consumed by at most one hit.
func RecallAtK(hits []types.Hit, gold []GoldSpan, k int) float64 {
	if len(gold) == 0 {
		return 0
	}
	usedGold := make([]bool, len(gold))
	matched := 0
	for _, hit := range clampK(hits, k) {
		for i, g := range gold {
			if usedGold[i] {
				continue
			}
			if HitMatchesGold(hit, g) {
				usedGold[i] = true
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(gold))
}

// MRRAtK is the reciprocal rank of the first hit that matches any gold
// span within the top k, or 0 if none match.
func MRRAtK(hits []types.Hit, gold []GoldSpan, k int) float64 {
	if len(gold) == 0 {
		return 0
	}
	for rank, hit := range clampK(hits, k) {
		for _, g := range gold {
			if HitMatchesGold(hit, g) {
				return 1.0 / float64(rank+1)
			}
		}
	}
	return 0
}

// NDCGAtK is the rank-aware gain over unique gold spans within the top k.
func NDCGAtK(hits []types.Hit, gold []GoldSpan, k int) float64 {
	if len(gold) == 0 {
		return 0
	}
	gains := uniqueGoldGainVector(hits, gold, k)
	if len(gains) == 0 {
		return 0
	}

	var dcg float64
	for i, gain := range gains {
		if gain != 0 {
			dcg += 1.0 / math.Log2(float64(i+2))
		}
	}

	idealRelCount := len(gold)
	if idealRelCount > k {
		idealRelCount = k
	}
	var idcg float64
	for i := 1; i <= idealRelCount; i++ {
		idcg += 1.0 / math.Log2(float64(i+1))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// RetrievalMetrics bundles the three primary retrieval scores at a k.
type RetrievalMetrics struct {
	RecallAtK float64 `json:"recall_at_k"`
	MRRAtK    float64 `json:"mrr_at_k"`
	NDCGAtK   float64 `json:"ndcg_at_k"`
}

// ComputeRetrievalMetrics computes RecallAtK, MRRAtK, and NDCGAtK at k.
func ComputeRetrievalMetrics(hits []types.Hit, gold []GoldSpan, k int) RetrievalMetrics {
	return RetrievalMetrics{
		RecallAtK: RecallAtK(hits, gold, k),
		MRRAtK:    MRRAtK(hits, gold, k),
		NDCGAtK:   NDCGAtK(hits, gold, k),
	}
}

// ComputeRetrievalMetricsByKs computes retrieval metrics for every k in
// ks, keyed by "k{N}".
func ComputeRetrievalMetricsByKs(hits []types.Hit, gold []GoldSpan, ks []int) map[string]RetrievalMetrics {
	unique := make(map[int]struct{}, len(ks))
	for _, k := range ks {
		if k > 0 {
			unique[k] = struct{}{}
		}
	}
	out := make(map[string]RetrievalMetrics, len(unique))
	for k := range unique {
		out[formatK(k)] = ComputeRetrievalMetrics(hits, gold, k)
	}
	return out
}

func formatK(k int) string {
	return "k" + itoa(k)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func splitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	raw := sentenceSplitRe.Split(trimmed, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

var sentenceSplitRe = regexp.MustCompile(`(?:[.?!])\s+`)

// InlineCitationSentenceRate is the fraction of sentences in answerText
// containing an inline [cN] marker, or (0, false) if the text has no
// sentences.
func InlineCitationSentenceRate(answerText string) (float64, bool) {
	sentences := splitSentences(answerText)
	if len(sentences) == 0 {
		return 0, false
	}
	cited := 0
	for _, s := range sentences {
		if inlineCitationRe.MatchString(s) {
			cited++
		}
	}
	return float64(cited) / float64(len(sentences)), true
}

// AnswerMetrics bundles the per-question citation/refusal diagnostics
// scored against a produced answer payload.
type AnswerMetrics struct {
	IsRefusal                  bool
	CitationCount              int
	CitationPresenceOK         bool
	InlineCitationSentenceRate float64
	HasInlineCitationRate      bool
	RefusalAccuracy            float64
}

// EvaluateAnswerPayload scores one answer result against whether the
// question was labeled answerable.
func EvaluateAnswerPayload(result types.AnswerResult, answerable bool) AnswerMetrics {
	isRefusal := result.IsRefusal()
	citationCount := len(result.Citations)

	citationPresenceOK := citationCount > 0
	if isRefusal {
		citationPresenceOK = citationCount == 0
	}

	refusalAccuracy := 0.0
	if isRefusal == !answerable {
		refusalAccuracy = 1.0
	}

	m := AnswerMetrics{
		IsRefusal:          isRefusal,
		CitationCount:      citationCount,
		CitationPresenceOK: citationPresenceOK,
		RefusalAccuracy:    refusalAccuracy,
	}
	if !isRefusal {
		if rate, ok := InlineCitationSentenceRate(result.Answer); ok {
			m.InlineCitationSentenceRate = rate
			m.HasInlineCitationRate = true
		}
	}
	return m
}

// SafeMean averages values, returning (0, false) for an empty slice.
func SafeMean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Package answer assembles citation-grounded prompts from selected evidence,
// validates generator output against the inline-citation contract, and
// supplies deterministic fallbacks when the generator refuses.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackzampolin/docqa/internal/generator"
	"github.com/jackzampolin/docqa/internal/queryvariant"
	"github.com/jackzampolin/docqa/internal/types"
)

const systemRules = `You are a citation-grounded assistant. Answer ONLY using the evidence below.
Rules:
1) Every sentence MUST end with at least one inline citation marker like [c1]; multiple markers may be written as [c1][c2] or [c1, c2].
2) You may ONLY use citation markers that appear in the evidence headers.
3) If the evidence is insufficient, reply exactly: ` + types.RefusalText + `
4) Do not introduce numeric, algorithmic, or symbolic specifics that are not present in the evidence.
5) Prefer short bulleted claims.
6) Answer in 3-6 bullets, each bullet ending in at least one citation marker.`

var (
	stepMarkerRe = regexp.MustCompile(`(\d+:)`)
	forTokenRe   = regexp.MustCompile(`(for\s*\()`)
	// leadingMarkersRe matches bracketed markers at the start of a fragment.
	leadingMarkersRe = regexp.MustCompile(`^(?:\s*\[[^\]]+\])+`)
)

// splitSentences splits on sentence-ending punctuation. Go's regexp package
// has no lookbehind, so this walks runes instead of using a split regex.
// Bracketed markers that directly follow the punctuation ("... secret. [c1]")
// stay with the sentence they close.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		sentences = append(sentences, current.String())
	}
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if m := leadingMarkersRe.FindString(s); m != "" && len(out) > 0 {
			out[len(out)-1] += " " + strings.TrimSpace(m)
			s = s[len(m):]
		}
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// AssignKeys assigns citation keys c1..cN to evidence in order.
func AssignKeys(hits []types.Hit) ([]types.EvidenceItem, map[string]types.Citation) {
	items := make([]types.EvidenceItem, len(hits))
	keyToCitation := make(map[string]types.Citation, len(hits))
	for i, h := range hits {
		key := fmt.Sprintf("c%d", i+1)
		items[i] = types.EvidenceItem{Hit: h, Key: key}
		keyToCitation[key] = types.Citation{
			Key:       key,
			DocID:     h.DocID,
			StartPage: h.StartPage,
			EndPage:   h.EndPage,
			ChunkID:   h.ChunkID,
		}
	}
	return items, keyToCitation
}

// prettify injects line breaks before numbered-step markers and "for ("
// tokens, normalizing pseudocode layout in evidence text.
func prettify(text string) string {
	text = stepMarkerRe.ReplaceAllString(text, "\n$1")
	text = forTokenRe.ReplaceAllString(text, "\n$1")
	return strings.TrimSpace(text)
}

// BuildContext renders the evidence block and prompt sent to the generator.
func BuildContext(evidence []types.EvidenceItem) string {
	blocks := make([]string, 0, len(evidence))
	for _, e := range evidence {
		header := fmt.Sprintf("[%s] | %s | p%d-p%d | %s", e.Key, e.DocID, e.StartPage, e.EndPage, e.ChunkID)
		blocks = append(blocks, header+"\n"+prettify(e.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// BuildPrompt assembles the full generator prompt for question given evidence.
func BuildPrompt(question string, evidence []types.EvidenceItem) string {
	return fmt.Sprintf("%s\n\nQuestion:\n%s\n\nEvidence:\n%s\n", systemRules, question, BuildContext(evidence))
}

var (
	citeBracketRe = regexp.MustCompile(`\[[^\]]+\]`)
	citeTokenRe   = regexp.MustCompile(`(?i)c\d+`)
)

func extractKeys(bracketOrSentence string) []string {
	var keys []string
	for _, m := range citeTokenRe.FindAllString(bracketOrSentence, -1) {
		keys = append(keys, strings.ToLower(m))
	}
	return keys
}

// EnforceInlineCitations validates generator output against the citation
// contract, normalizing near-miss refusal phrasings and rejecting unknown
// citation keys or uncited sentences.
func EnforceInlineCitations(answerText string, keyToCitation map[string]types.Citation) types.AnswerResult {
	trimmed := strings.TrimSpace(answerText)
	lower := strings.ToLower(trimmed)

	if lower == types.RefusalText || lower == "not found" || lower == "not found in documents" ||
		strings.HasPrefix(lower, types.RefusalText) {
		return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
	}

	usedInBrackets := make(map[string]struct{})
	for _, bracket := range citeBracketRe.FindAllString(trimmed, -1) {
		for _, k := range extractKeys(bracket) {
			usedInBrackets[k] = struct{}{}
		}
	}
	if len(usedInBrackets) == 0 {
		return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
	}

	var unknown []string
	for k := range usedInBrackets {
		if _, ok := keyToCitation[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
	}

	for _, sentence := range splitSentences(trimmed) {
		if len(extractKeys(sentence)) == 0 {
			return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
		}
	}

	ordered := make([]string, 0, len(usedInBrackets))
	for k := range usedInBrackets {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return keyNum(ordered[i]) < keyNum(ordered[j])
	})

	citations := make([]types.Citation, 0, len(ordered))
	for _, k := range ordered {
		citations = append(citations, keyToCitation[k])
	}

	return types.AnswerResult{Answer: trimmed, Citations: citations}
}

func keyNum(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "c"))
	if err != nil {
		return 0
	}
	return n
}

// BuildCitedAnswer is the C7 orchestrator: build the prompt, invoke gen,
// validate, and fall back to deterministic Algorithm-N or Compare answers
// when the generator itself produces a refusal.
func BuildCitedAnswer(ctx context.Context, question string, evidence []types.EvidenceItem, allHits []types.Hit, gen generator.Generator) types.AnswerResult {
	if len(evidence) == 0 {
		return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
	}

	keyToCitation := make(map[string]types.Citation, len(evidence))
	for _, e := range evidence {
		keyToCitation[e.Key] = types.Citation{Key: e.Key, DocID: e.DocID, StartPage: e.StartPage, EndPage: e.EndPage, ChunkID: e.ChunkID}
	}

	prompt := BuildPrompt(question, evidence)
	res, err := gen.Generate(ctx, prompt)
	if err != nil {
		return types.AnswerResult{Answer: types.RefusalText, Citations: nil}
	}

	result := EnforceInlineCitations(res.Content, keyToCitation)
	if !result.IsRefusal() {
		return result
	}

	if n, ok := queryvariant.AlgorithmNumber(question); ok {
		if fallback, ok := AlgorithmFallback(n, evidence); ok {
			return fallback
		}
	}

	if queryvariant.IsCompareIntent(question) {
		if topicA, topicB, ok := queryvariant.ExtractCompareTopics(question); ok {
			if fallback, ok := CompareFallback(topicA, topicB, allHits); ok {
				return fallback
			}
		}
	}

	return result
}

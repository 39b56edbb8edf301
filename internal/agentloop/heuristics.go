package agentloop

import (
	"regexp"
	"strings"

	"github.com/jackzampolin/docqa/internal/queryvariant"
	"github.com/jackzampolin/docqa/internal/types"
)

var (
	anchorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bAlgorithm\s+\d+\b`),
		regexp.MustCompile(`(?i)\bTable\s+\d+\b`),
		regexp.MustCompile(`(?i)\bSection\s+\d+(?:\.\d+)*\b`),
	}
	anchorKeywords = []string{"keygen", "encaps", "decaps", "shake128", "shake256", "xof"}

	compareIntentWords = []string{"compare", "difference between", "differences between", "vs", "versus"}
)

// heuristicRoute chooses a Plan for question without calling a model,
// matching the priority order: compare intent, then algorithm/shake
// phrasing, then definition phrasing, else a general retrieve.
func heuristicRoute(question string) types.Plan {
	q := strings.TrimSpace(question)
	ql := strings.ToLower(q)

	if containsAny(ql, compareIntentWords) {
		if topicA, topicB, ok := queryvariant.ExtractCompareTopics(q); ok {
			return types.Plan{
				Action:   types.ActionCompare,
				Args:     map[string]string{"topic_a": topicA, "topic_b": topicB},
				ModeHint: types.ModeGeneral,
			}
		}
		return types.Plan{Action: types.ActionRetrieve, Query: q, ModeHint: types.ModeGeneral}
	}

	if strings.Contains(ql, "algorithm") || strings.Contains(ql, "shake") {
		return types.Plan{Action: types.ActionRetrieve, Query: q, ModeHint: types.ModeAlgorithm}
	}

	if strings.HasPrefix(ql, "what is") || strings.HasPrefix(ql, "what's") ||
		strings.HasPrefix(ql, "define") || strings.HasPrefix(ql, "explain") {
		term := lastSplitSegment(q)
		return types.Plan{Action: types.ActionResolveDefinition, Args: map[string]string{"term": term}, ModeHint: types.ModeDefinition}
	}

	return types.Plan{Action: types.ActionRetrieve, Query: q, ModeHint: types.ModeGeneral}
}

// lastSplitSegment mirrors Python's q.split(" ", 2)[-1].strip(" ?"): split
// on whitespace at most twice, keep the remainder.
func lastSplitSegment(q string) string {
	parts := strings.SplitN(q, " ", 3)
	last := parts[len(parts)-1]
	return strings.Trim(last, " ?")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractAnchorTerms finds every Algorithm/Table/Section reference and
// anchor keyword mentioned in question, in first-seen order.
func extractAnchorTerms(question string) []string {
	var terms []string
	seen := make(map[string]struct{})

	for _, re := range anchorPatterns {
		for _, m := range re.FindAllString(question, -1) {
			key := strings.ToLower(m)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, m)
		}
	}

	ql := strings.ToLower(question)
	for _, kw := range anchorKeywords {
		if strings.Contains(ql, kw) {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			terms = append(terms, kw)
		}
	}
	return terms
}

func evidenceContainsAnyAnchor(evidence []types.EvidenceItem, anchors []string) bool {
	if len(anchors) == 0 {
		return true
	}
	for _, anchor := range anchors {
		a := strings.ToLower(anchor)
		for _, e := range evidence {
			if strings.Contains(strings.ToLower(e.Text), a) {
				return true
			}
		}
	}
	return false
}

func docDiversity(evidence []types.EvidenceItem) int {
	docs := make(map[string]struct{}, len(evidence))
	for _, e := range evidence {
		docs[e.DocID] = struct{}{}
	}
	return len(docs)
}

// topicDocBiasTokens nudges a refined query toward the document that
// actually discusses topic, for the known PQC schemes.
func topicDocBiasTokens(topic string) []string {
	tl := strings.ToLower(topic)
	switch {
	case strings.Contains(tl, "ml-kem"):
		return []string{"FIPS 203", "ML-KEM"}
	case strings.Contains(tl, "ml-dsa"):
		return []string{"FIPS 204", "ML-DSA"}
	case strings.Contains(tl, "slh-dsa"):
		return []string{"FIPS 205", "SLH-DSA"}
	default:
		return nil
	}
}

func appendTerms(baseQuery string, terms []string) string {
	base := strings.TrimSpace(baseQuery)
	existing := strings.ToLower(base)
	var extras []string
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(existing, strings.ToLower(t)) {
			continue
		}
		extras = append(extras, t)
	}
	if len(extras) == 0 {
		return base
	}
	return strings.TrimSpace(base + " " + strings.Join(extras, " "))
}

// planModeHint prefers the plan's own mode_hint, else infers one from the
// fallback query text.
func planModeHint(plan types.Plan, fallbackQuery string) string {
	if plan.ModeHint != "" {
		return plan.ModeHint
	}
	ql := strings.ToLower(fallbackQuery)
	if strings.Contains(ql, "algorithm") || strings.Contains(ql, "shake") {
		return types.ModeAlgorithm
	}
	if strings.HasPrefix(ql, "define") || strings.HasPrefix(ql, "what is") ||
		strings.HasPrefix(ql, "what's") || strings.HasPrefix(ql, "explain") {
		return types.ModeDefinition
	}
	return types.ModeGeneral
}

// buildRefinedQuery picks a refinement strategy keyed off the current stop
// reason, returning the refined query and the strategy name (for tracing).
func buildRefinedQuery(state *types.AgentState) (string, string) {
	baseQuery := state.Plan.Query
	if baseQuery == "" {
		baseQuery = state.Question
	}
	reason := strings.ToLower(state.StopReason)
	anchors := extractAnchorTerms(state.Question)

	if strings.Contains(reason, "anchor_missing") && len(anchors) > 0 {
		return appendTerms(baseQuery, anchors), "anchor_token_bias"
	}

	topicA, topicB, ok := queryvariant.ExtractCompareTopics(state.Question)
	if strings.Contains(reason, "compare_doc_diversity_missing") && ok {
		terms := append([]string{topicA, topicB, "comparison", "intended use-cases"}, topicDocBiasTokens(topicA)...)
		terms = append(terms, topicDocBiasTokens(topicB)...)
		return appendTerms(baseQuery, terms), "compare_doc_bias"
	}

	if strings.Contains(reason, "insufficient_hits") {
		if state.Plan.Action == types.ActionResolveDefinition {
			term := state.Plan.Args["term"]
			if term == "" {
				term = state.Question
			}
			return "definition of " + strings.TrimSpace(term) + "; notation; section", "definition_bias"
		}
		return appendTerms(baseQuery, []string{"section", "algorithm", "definition"}), "coverage_bias"
	}

	return baseQuery, "no_change"
}

// budgetStopReasons is the set of stop_reason values budgetLimitReason can
// produce; deriveRefusalReason collapses any of these into budget_exhausted.
var budgetStopReasons = map[string]struct{}{
	"step_budget_exhausted":  {},
	"tool_budget_exhausted":  {},
	"round_budget_exhausted": {},
}

// deriveRefusalReason mirrors the priority order: insufficiency first,
// then missing draft/evidence/citations. The returned value is always one
// of the four enumerated refusal reasons; richer diagnostics (anchor_missing,
// insufficient_hits, compare_doc_diversity_missing) stay on state.StopReason
// and surface via refusalMessage instead.
func deriveRefusalReason(state *types.AgentState, sufficient bool, draft string, evidence []types.EvidenceItem, citations []types.Citation) string {
	if !sufficient {
		if _, isBudget := budgetStopReasons[state.StopReason]; isBudget {
			return "budget_exhausted"
		}
		return "insufficient_evidence"
	}
	if draft == "" {
		return "empty_draft"
	}
	if len(evidence) == 0 {
		return "insufficient_evidence"
	}
	if len(citations) == 0 {
		return "missing_citations"
	}
	return ""
}

// refusalMessage renders a human-readable explanation for the trace; the
// final answer itself always uses the literal refusal sentinel. refusalReason
// is the coarse spec-enumerated value; stopReason carries the finer-grained
// diagnostic (anchor_missing, insufficient_hits, compare_doc_diversity_missing,
// a budget reason) that produced it.
func refusalMessage(refusalReason, stopReason string) string {
	sr := strings.ToLower(stopReason)
	switch {
	case strings.Contains(sr, "anchor_missing"):
		return "could not find citable evidence for the specific algorithm/table/section anchor"
	case strings.Contains(sr, "compare_doc_diversity_missing"):
		return "could not find enough citable evidence across both topics for a reliable comparison"
	case refusalReason == "missing_citations":
		return "could not produce reliable citations for the drafted answer"
	case refusalReason == "empty_draft":
		return "could not produce a citable grounded answer"
	default:
		return "insufficient citable evidence to answer reliably"
	}
}

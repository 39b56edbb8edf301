package agentloop

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackzampolin/docqa/internal/answer"
	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/generator"
	"github.com/jackzampolin/docqa/internal/queryvariant"
	"github.com/jackzampolin/docqa/internal/retrieve"
	"github.com/jackzampolin/docqa/internal/types"
)

// Deps are the external collaborators every run shares: a retrieval
// pipeline, a chunk store for the summarize tool, a generator for the
// answer node, and the budgets bounding the run.
type Deps struct {
	Retriever       *retrieve.Pipeline
	Store           *chunkstore.Store
	Generator       generator.Generator
	RetrieveOptions retrieve.Options
	Budgets         Budgets
}

const (
	nodeRoute           = "route"
	nodeRetrieve        = "retrieve"
	nodeAssessEvidence  = "assess_evidence"
	nodeRefineQuery     = "refine_query"
	nodeAnswer          = "answer"
	nodeVerifyOrRefuse  = "verify_or_refuse"
)

func runRoute(state *types.AgentState, deps Deps) string {
	bumpStep(state, nodeRoute)

	if stepLimitHit(state, deps.Budgets) {
		state.StopReason = "step_budget_exhausted"
		setPlan(state, types.Plan{Action: types.ActionRefuse})
		addTrace(state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
		return routeEdge(state)
	}

	setPlan(state, heuristicRoute(state.Question))
	return routeEdge(state)
}

func routeEdge(state *types.AgentState) string {
	switch state.Plan.Action {
	case types.ActionRetrieve, types.ActionResolveDefinition, types.ActionCompare, types.ActionSummarize:
		return nodeRetrieve
	default:
		return nodeVerifyOrRefuse
	}
}

func runRetrieve(ctx context.Context, state *types.AgentState, deps Deps) string {
	bumpStep(state, nodeRetrieve)

	if stepLimitHit(state, deps.Budgets) {
		state.StopReason = "step_budget_exhausted"
		addTrace(state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
		return nodeAssessEvidence
	}
	if toolLimitHit(state, deps.Budgets) {
		state.StopReason = "tool_budget_exhausted"
		addTrace(state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
		return nodeAssessEvidence
	}
	if roundLimitHit(state, deps.Budgets) {
		state.StopReason = "round_budget_exhausted"
		addTrace(state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
		return nodeAssessEvidence
	}

	plan := state.Plan
	action := plan.Action
	if action == "" {
		action = types.ActionRetrieve
	}

	state.ToolCalls++
	state.RetrievalRound++
	addTrace(state, types.TraceEvent{
		Node: "retrieval_round_started",
		Extra: map[string]any{
			"round":      state.RetrievalRound,
			"action":     action,
			"tool_calls": state.ToolCalls,
		},
	})

	var result retrieve.ToolResult
	docID := plan.Args["doc_id"]

	switch action {
	case types.ActionRetrieve:
		query := plan.Query
		if query == "" {
			query = state.Question
		}
		result = deps.Retriever.RetrieveTool(ctx, query, 8, docID, deps.RetrieveOptions)
	case types.ActionResolveDefinition:
		term := plan.Args["term"]
		if term == "" {
			term = state.Question
		}
		result = deps.Retriever.ResolveDefinitionTool(ctx, term, 8, docID, deps.RetrieveOptions)
	case types.ActionCompare:
		topicA := plan.Args["topic_a"]
		topicB := plan.Args["topic_b"]
		if topicA == "" {
			topicA = state.Question
		}
		if topicB == "" {
			topicB = state.Question
		}
		result = deps.Retriever.CompareTool(ctx, topicA, topicB, 6, deps.RetrieveOptions)
	case types.ActionSummarize:
		startPage, _ := strconv.Atoi(plan.Args["start_page"])
		endPage, _ := strconv.Atoi(plan.Args["end_page"])
		k := 30
		if kStr := plan.Args["k"]; kStr != "" {
			if parsed, err := strconv.Atoi(kStr); err == nil {
				k = parsed
			}
		}
		result = retrieve.SummarizeTool(deps.Store, plan.Args["doc_id"], startPage, endPage, k)
	default:
		state.StopReason = "unsupported_action:" + action
		addTrace(state, types.TraceEvent{Node: "tool_skip", Extra: map[string]any{"reason": state.StopReason}})
		return nodeAssessEvidence
	}

	merged := mergeEvidence(state.Evidence, result.Evidence)
	setEvidence(state, merged)

	modeHint := result.ModeHint
	if modeHint == "" {
		modeHint = planModeHint(plan, state.Question)
	}
	addTrace(state, types.TraceEvent{
		Node: "retrieval_round_result",
		Extra: map[string]any{
			"round":      state.RetrievalRound,
			"action":     action,
			"new_hits":   len(result.Evidence),
			"total_hits": len(merged),
			"tool_stats": result.Stats,
			"mode_hint":  modeHint,
		},
	})
	return nodeAssessEvidence
}

// mergeEvidence dedups existing + incoming by chunk_id (first-seen wins)
// and reassigns positional citation keys over the merged, ordered list.
func mergeEvidence(existing []types.EvidenceItem, incoming []types.Hit) []types.EvidenceItem {
	combined := make([]types.Hit, 0, len(existing)+len(incoming))
	for _, e := range existing {
		combined = append(combined, e.Hit)
	}
	combined = append(combined, incoming...)

	seen := make(map[string]struct{}, len(combined))
	deduped := make([]types.Hit, 0, len(combined))
	for _, h := range combined {
		if _, ok := seen[h.ChunkID]; ok {
			continue
		}
		seen[h.ChunkID] = struct{}{}
		deduped = append(deduped, h)
	}

	items, _ := answer.AssignKeys(deduped)
	return items
}

func runAssessEvidence(state *types.AgentState, deps Deps) string {
	bumpStep(state, nodeAssessEvidence)

	evidence := state.Evidence
	anchors := extractAnchorTerms(state.Question)
	anchorMatch := evidenceContainsAnyAnchor(evidence, anchors)
	_, _, compareRequired := queryvariant.ExtractCompareTopics(state.Question)
	diversity := docDiversity(evidence)

	var reasons []string
	if len(evidence) < deps.Budgets.MinEvidenceHits {
		reasons = append(reasons, "insufficient_hits")
	}
	if len(anchors) > 0 && !anchorMatch {
		reasons = append(reasons, "anchor_missing")
	}
	if compareRequired && diversity < 2 {
		reasons = append(reasons, "compare_doc_diversity_missing")
	}

	sufficient := len(reasons) == 0
	state.EvidenceSufficient = sufficient

	budgetReason := ""
	if !sufficient {
		budgetReason = budgetLimitReason(state, deps.Budgets)
		if budgetReason != "" {
			state.StopReason = budgetReason
		} else {
			state.StopReason = reasons[0]
		}
	} else {
		state.StopReason = "sufficient_evidence"
	}

	addTrace(state, types.TraceEvent{
		Node: "assessment_decision",
		Extra: map[string]any{
			"sufficient":      sufficient,
			"reasons":         reasons,
			"budget_reason":   budgetReason,
			"evidence_hits":   len(evidence),
			"doc_diversity":   diversity,
			"anchors":         anchors,
			"anchor_match":    anchorMatch,
			"tool_calls":      state.ToolCalls,
			"steps":           state.Steps,
			"retrieval_round": state.RetrievalRound,
		},
	})

	if sufficient {
		return nodeAnswer
	}
	if budgetLimitReason(state, deps.Budgets) != "" {
		return nodeVerifyOrRefuse
	}
	return nodeRefineQuery
}

func runRefineQuery(state *types.AgentState, deps Deps) string {
	bumpStep(state, nodeRefineQuery)

	if stepLimitHit(state, deps.Budgets) {
		state.StopReason = "step_budget_exhausted"
		addTrace(state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
		return nodeVerifyOrRefuse
	}

	previousQuery := state.Plan.Query
	if previousQuery == "" {
		previousQuery = state.Question
	}
	refinedQuery, strategy := buildRefinedQuery(state)
	modeHint := planModeHint(state.Plan, refinedQuery)

	setPlan(state, types.Plan{Action: types.ActionRetrieve, Query: refinedQuery, ModeHint: modeHint})
	addTrace(state, types.TraceEvent{
		Node: "query_refined",
		Extra: map[string]any{
			"strategy":       strategy,
			"previous_query": previousQuery,
			"refined_query":  refinedQuery,
		},
	})

	if budgetLimitReason(state, deps.Budgets) != "" {
		return nodeVerifyOrRefuse
	}
	return nodeRetrieve
}

func runAnswer(ctx context.Context, state *types.AgentState, deps Deps) string {
	bumpStep(state, nodeAnswer)

	if !state.EvidenceSufficient {
		addTrace(state, types.TraceEvent{Node: "answer_skip", Extra: map[string]any{"reason": "insufficient_evidence"}})
		return nodeVerifyOrRefuse
	}
	if len(state.Evidence) == 0 {
		addTrace(state, types.TraceEvent{Node: "answer_skip", Extra: map[string]any{"reason": "no_evidence"}})
		return nodeVerifyOrRefuse
	}

	allHits := make([]types.Hit, len(state.Evidence))
	for i, e := range state.Evidence {
		allHits[i] = e.Hit
	}

	result := answer.BuildCitedAnswer(ctx, state.Question, state.Evidence, allHits, deps.Generator)
	setAnswer(state, result.Answer, result.Citations)
	return nodeVerifyOrRefuse
}

func runVerifyOrRefuse(state *types.AgentState, deps Deps) {
	bumpStep(state, nodeVerifyOrRefuse)

	evidence := state.Evidence
	citations := state.Citations
	draft := strings.TrimSpace(state.DraftAnswer)
	sufficient := state.EvidenceSufficient

	shouldRefuse := !sufficient || draft == "" || len(evidence) == 0 || len(citations) == 0
	if shouldRefuse {
		refusalReason := deriveRefusalReason(state, sufficient, draft, evidence, citations)
		state.RefusalReason = refusalReason
		state.Citations = nil
		setFinalAnswer(state, types.RefusalText)
		addTrace(state, types.TraceEvent{
			Node: "verify",
			Extra: map[string]any{
				"result":         "refuse",
				"stop_reason":    state.StopReason,
				"refusal_reason": refusalReason,
				"message":        refusalMessage(refusalReason, state.StopReason),
				"citations":      0,
			},
		})
		return
	}

	state.RefusalReason = ""
	setFinalAnswer(state, draft)
	addTrace(state, types.TraceEvent{
		Node: "verify",
		Extra: map[string]any{
			"result":         "ok",
			"stop_reason":    state.StopReason,
			"refusal_reason": "",
			"citations":      len(citations),
		},
	})
}

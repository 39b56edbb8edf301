// Package agentloop implements the bounded control loop that turns a
// question into a citation-grounded answer or an explicit refusal: route,
// retrieve, assess evidence, refine the query, answer, and verify — each
// step bounded by an explicit budget rather than an open-ended agent loop.
package agentloop

import "github.com/jackzampolin/docqa/internal/types"

// Budgets bounds one control-loop run. Zero values are invalid; use
// DefaultBudgets or a config-derived set.
type Budgets struct {
	MaxSteps           int
	MaxToolCalls       int
	MaxRetrievalRounds int
	MinEvidenceHits    int
}

// DefaultBudgets mirrors the documented defaults (8 steps, 3 tool calls, 2
// retrieval rounds, 2 minimum evidence hits).
func DefaultBudgets() Budgets {
	return Budgets{MaxSteps: 8, MaxToolCalls: 3, MaxRetrievalRounds: 2, MinEvidenceHits: 2}
}

// RecursionLimit bounds the executor's total node visits, independent of
// the step budget: max(20, MaxSteps*4).
func (b Budgets) RecursionLimit() int {
	limit := b.MaxSteps * 4
	if limit < 20 {
		limit = 20
	}
	return limit
}

func initState(question string) types.AgentState {
	return types.AgentState{Question: question}
}

func addTrace(state *types.AgentState, ev types.TraceEvent) {
	ev.AtStep = state.Steps
	state.Trace = append(state.Trace, ev)
}

func bumpStep(state *types.AgentState, node string) {
	state.Steps++
	addTrace(state, types.TraceEvent{
		Node: "step",
		Extra: map[string]any{
			"node":            node,
			"steps":           state.Steps,
			"tool_calls":      state.ToolCalls,
			"retrieval_round": state.RetrievalRound,
		},
	})
}

func setPlan(state *types.AgentState, plan types.Plan) {
	state.Plan = plan
	addTrace(state, types.TraceEvent{
		Node: "plan",
		Extra: map[string]any{
			"action":    plan.Action,
			"query":     plan.Query,
			"mode_hint": plan.ModeHint,
			"args":      plan.Args,
		},
	})
}

func setEvidence(state *types.AgentState, evidence []types.EvidenceItem) {
	state.Evidence = evidence
	addTrace(state, types.TraceEvent{Node: "evidence", Extra: map[string]any{"n": len(evidence)}})
}

func setAnswer(state *types.AgentState, answer string, citations []types.Citation) {
	state.DraftAnswer = answer
	state.Citations = citations
	addTrace(state, types.TraceEvent{Node: "answer", Extra: map[string]any{"citations": len(citations)}})
}

func setFinalAnswer(state *types.AgentState, answer string) {
	state.FinalAnswer = answer
	addTrace(state, types.TraceEvent{Node: "final_answer"})
}

func stepLimitHit(state *types.AgentState, b Budgets) bool {
	return state.Steps >= b.MaxSteps
}

func toolLimitHit(state *types.AgentState, b Budgets) bool {
	return state.ToolCalls >= b.MaxToolCalls
}

func roundLimitHit(state *types.AgentState, b Budgets) bool {
	return state.RetrievalRound >= b.MaxRetrievalRounds
}

// budgetLimitReason checks exhaustion in fixed priority order: step, then
// tool, then retrieval round.
func budgetLimitReason(state *types.AgentState, b Budgets) string {
	if stepLimitHit(state, b) {
		return "step_budget_exhausted"
	}
	if toolLimitHit(state, b) {
		return "tool_budget_exhausted"
	}
	if roundLimitHit(state, b) {
		return "round_budget_exhausted"
	}
	return ""
}

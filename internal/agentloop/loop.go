package agentloop

import (
	"context"

	"github.com/jackzampolin/docqa/internal/types"
)

// Run executes the bounded control loop for question and returns the final
// state: a citation-grounded answer, or an explicit refusal with a
// recorded reason, plus the full decision trace.
func Run(ctx context.Context, question string, deps Deps) types.AgentState {
	if deps.Budgets == (Budgets{}) {
		deps.Budgets = DefaultBudgets()
	}

	state := initState(question)
	node := nodeRoute
	limit := deps.Budgets.RecursionLimit()

	for i := 0; i < limit && node != ""; i++ {
		// A cancelled ctx sends the loop straight to verify_or_refuse.
		if ctx.Err() != nil && node != nodeVerifyOrRefuse {
			state.Cancelled = true
			state.StopReason = "cancelled"
			state.EvidenceSufficient = false
			addTrace(&state, types.TraceEvent{Node: "loop_stop", Extra: map[string]any{"reason": state.StopReason}})
			node = nodeVerifyOrRefuse
		}
		switch node {
		case nodeRoute:
			node = runRoute(&state, deps)
		case nodeRetrieve:
			node = runRetrieve(ctx, &state, deps)
		case nodeAssessEvidence:
			node = runAssessEvidence(&state, deps)
		case nodeRefineQuery:
			node = runRefineQuery(&state, deps)
		case nodeAnswer:
			node = runAnswer(ctx, &state, deps)
		case nodeVerifyOrRefuse:
			runVerifyOrRefuse(&state, deps)
			node = ""
		default:
			node = ""
		}
	}

	return state
}

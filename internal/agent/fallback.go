package agent

import "repotutor/internal/explore"

const fallbackDraft = "Ready to answer from the evidence collected so far."

// Fallback is the deterministic decision used when the planner errors or
// returns invalid output. It depends only on the phase, the question and
// the most recent search hits.
func Fallback(phase Phase, question string, hits []explore.SkeletonHit) Decision {
	d := Decision{Phase: phase, Reason: "fallback"}
	var top explore.SkeletonHit
	if len(hits) > 0 {
		top = hits[0]
	}
	switch phase {
	case PhaseOverview:
		d.Action, d.Path = ActionReadInterface, top.Path
	case PhaseDig:
		d.Action, d.Path = ActionReadImplementation, top.Path
		if len(top.Symbols) > 0 {
			d.SymbolName = top.Symbols[0]
		}
	case PhaseAnswer:
		d.Action, d.Draft = ActionAnswer, fallbackDraft
	default:
		d.Phase, d.Action, d.Query = PhaseLocate, ActionSearch, question
	}
	return d
}

package agent

// Phase is the agent's position in the locate → overview → dig → answer
// progression.
type Phase string

const (
	PhaseLocate   Phase = "LOCATE"
	PhaseOverview Phase = "OVERVIEW"
	PhaseDig      Phase = "DIG"
	PhaseAnswer   Phase = "ANSWER"
)

var Phases = []Phase{PhaseLocate, PhaseOverview, PhaseDig, PhaseAnswer}

func (p Phase) Valid() bool {
	for _, q := range Phases {
		if p == q {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionSearch             Action = "search"
	ActionReadInterface      Action = "readInterface"
	ActionReadImplementation Action = "readImplementation"
	ActionAnswer             Action = "answer"
)

var Actions = []Action{ActionSearch, ActionReadInterface, ActionReadImplementation, ActionAnswer}

func (a Action) Valid() bool {
	for _, b := range Actions {
		if a == b {
			return true
		}
	}
	return false
}

// Outcome classifies what executing an action produced.
type Outcome int

const (
	// OutcomeProgress: the action produced what its phase needs (search hits,
	// an interface view, enough implementation evidence).
	OutcomeProgress Outcome = iota
	// OutcomeShort: the action ran but found nothing (search) or evidence is
	// still thin (implementation).
	OutcomeShort
	// OutcomeInvalid: required parameters were missing or the tool failed.
	OutcomeInvalid
)

type edge struct {
	from    Phase
	action  Action
	outcome Outcome
}

// transitions is the full phase × action × outcome table. The current phase
// does not change where an action leads; it is kept in the key so every
// legal move is listed and testable.
var transitions = func() map[edge]Phase {
	byAction := map[Action]map[Outcome]Phase{
		ActionSearch: {
			OutcomeProgress: PhaseOverview,
			OutcomeShort:    PhaseLocate,
			OutcomeInvalid:  PhaseLocate,
		},
		ActionReadInterface: {
			OutcomeProgress: PhaseDig,
			OutcomeShort:    PhaseDig,
			OutcomeInvalid:  PhaseLocate,
		},
		ActionReadImplementation: {
			OutcomeProgress: PhaseAnswer,
			OutcomeShort:    PhaseDig,
			OutcomeInvalid:  PhaseLocate,
		},
		ActionAnswer: {
			OutcomeProgress: PhaseAnswer,
			OutcomeShort:    PhaseAnswer,
			OutcomeInvalid:  PhaseAnswer,
		},
	}
	t := make(map[edge]Phase, len(Phases)*len(Actions)*3)
	for _, from := range Phases {
		for a, outs := range byAction {
			for o, to := range outs {
				t[edge{from, a, o}] = to
			}
		}
	}
	return t
}()

// Next returns the phase after executing action from phase with the given
// outcome. Unknown combinations keep the current phase.
func Next(from Phase, action Action, outcome Outcome) Phase {
	if to, ok := transitions[edge{from, action, outcome}]; ok {
		return to
	}
	return from
}

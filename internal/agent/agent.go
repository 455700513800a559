// Package agent answers questions about an indexed repository by driving the
// exploration tools through a LOCATE → OVERVIEW → DIG → ANSWER state machine
// and then synthesizing an explanation from the collected evidence.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/explore"
	"repotutor/internal/llm"
	"repotutor/internal/memory"
	"repotutor/internal/metrics"
)

type Limits struct {
	DefaultSteps     int
	MinSteps         int
	MaxSteps         int
	ObservationChars int
}

func DefaultLimits() Limits {
	return Limits{DefaultSteps: 8, MinSteps: 4, MaxSteps: 10, ObservationChars: 1200}
}

type Agent struct {
	ex      *explore.Explorer
	tools   *explore.Registry
	llm     llm.Client
	mem     *memory.Memory
	limits  Limits
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New builds an agent over the explorer. A nil client behaves like an
// unavailable completion service: every step uses the fallback decision.
func New(ex *explore.Explorer, client llm.Client, limits Limits, m *metrics.Metrics, log *zap.Logger) *Agent {
	def := DefaultLimits()
	if limits.MinSteps <= 0 {
		limits.MinSteps = def.MinSteps
	}
	if limits.MaxSteps < limits.MinSteps {
		limits.MaxSteps = max(def.MaxSteps, limits.MinSteps)
	}
	if limits.DefaultSteps <= 0 {
		limits.DefaultSteps = def.DefaultSteps
	}
	if limits.ObservationChars <= 0 {
		limits.ObservationChars = def.ObservationChars
	}
	if client == nil {
		client = llm.Unavailable{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		ex:      ex,
		tools:   explore.NewExplorerRegistry(ex),
		llm:     client,
		mem:     ex.Memory(),
		limits:  limits,
		metrics: m,
		log:     log,
	}
}

// Answer is the result of one question.
type Answer struct {
	Answer            string              `json:"answer"`
	Phase             Phase               `json:"phase"`
	StepsUsed         int                 `json:"stepsUsed"`
	Evidence          []memory.Evidence   `json:"evidence"`
	ToolTrace         []memory.TraceEntry `json:"toolTrace"`
	PlannerFallbacks  int                 `json:"plannerFallbacks"`
	SynthesisFallback bool                `json:"synthesisFallback"`
}

// run is the state of one Ask call.
type run struct {
	sessionID   string
	question    string
	phase       Phase
	maxSteps    int
	observation string
	hits        []explore.SkeletonHit
	evidence    []memory.Evidence
	seen        map[string]bool
	trace       []memory.TraceEntry
	draft       string
	fallbacks   int
}

// Steps clamps a requested step budget; zero means the default.
func (a *Agent) Steps(requested int) int {
	if requested <= 0 {
		requested = a.limits.DefaultSteps
	}
	return max(a.limits.MinSteps, min(requested, a.limits.MaxSteps))
}

// Ask runs the loop for at most maxSteps steps. It fails only for invalid
// input, an index that is not READY, or a cancelled context; planner and
// synthesis failures degrade to fallbacks.
func (a *Agent) Ask(ctx context.Context, sessionID, question string, maxSteps int) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, apperr.New(apperr.KindInvalidArgument, "question is required")
	}
	if err := a.ex.Ready(ctx, sessionID); err != nil {
		return Answer{}, err
	}
	r := &run{
		sessionID: sessionID,
		question:  question,
		phase:     PhaseLocate,
		maxSteps:  a.Steps(maxSteps),
		seen:      map[string]bool{},
	}
	start := time.Now()
	steps := 0
	for steps < r.maxSteps {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}
		steps++
		d := a.plan(ctx, r, steps)
		obs, outcome, err := a.execute(ctx, r, &d)
		if err != nil {
			return Answer{}, err
		}
		a.recordStep(ctx, r, steps, d, obs)
		r.phase = Next(r.phase, d.Action, outcome)
		if d.Action == ActionAnswer || r.phase == PhaseAnswer {
			break
		}
	}

	text, fellBack := a.synthesize(ctx, sessionID, question, r.draft, r.evidence, r.trace)
	a.metrics.Answered(steps)
	a.log.Info("question answered",
		zap.String("session", sessionID),
		zap.Int("steps", steps),
		zap.String("phase", string(r.phase)),
		zap.Int("evidence", len(r.evidence)),
		zap.Int("planner_fallbacks", r.fallbacks),
		zap.Bool("synthesis_fallback", fellBack),
		zap.Duration("took", time.Since(start)))

	out := Answer{
		Answer:            text,
		Phase:             r.phase,
		StepsUsed:         steps,
		Evidence:          r.evidence,
		ToolTrace:         r.trace,
		PlannerFallbacks:  r.fallbacks,
		SynthesisFallback: fellBack,
	}
	if out.Evidence == nil {
		out.Evidence = []memory.Evidence{}
	}
	if out.ToolTrace == nil {
		out.ToolTrace = []memory.TraceEntry{}
	}
	return out, nil
}

// plan asks the planner for the next decision and falls back on any error
// or schema violation.
func (a *Agent) plan(ctx context.Context, r *run, step int) Decision {
	brief, err := a.mem.BuildMemoryBrief(ctx, r.sessionID)
	if err != nil {
		a.log.Warn("memory brief", zap.String("session", r.sessionID), zap.Error(err))
	}
	raw, err := a.llm.GenerateStructured(llm.WithPhase(ctx, "planner"), llm.Request{
		System: plannerSystem(a.tools.Specs()),
		User: plannerUser(plannerState{
			question:    r.question,
			phase:       r.phase,
			step:        step,
			maxSteps:    r.maxSteps,
			brief:       brief,
			observation: r.observation,
			hits:        r.hits,
			evidence:    len(r.evidence),
		}),
		Schema: DecisionSchema,
	})
	if err == nil {
		d, perr := ParseDecision(raw)
		if perr == nil {
			return d
		}
		err = perr
	}
	r.fallbacks++
	a.metrics.PlannerFallback()
	d := Fallback(r.phase, r.question, r.hits)
	a.log.Warn("planner fallback",
		zap.String("session", r.sessionID),
		zap.Int("step", step),
		zap.String("phase", string(r.phase)),
		zap.String("decision", d.String()),
		zap.Error(err))
	return d
}

// topHitPath is the path a read falls back to when the decision names none.
func (r *run) topHitPath() string {
	if len(r.hits) == 0 {
		return ""
	}
	return r.hits[0].Path
}

// execute runs one decision. It returns an error only when the context is
// done; tool failures become observations.
func (a *Agent) execute(ctx context.Context, r *run, d *Decision) (string, Outcome, error) {
	toolFailed := func(err error) (string, Outcome, error) {
		if cerr := ctx.Err(); cerr != nil {
			return "", OutcomeInvalid, cerr
		}
		return fmt.Sprintf("%s failed: %s", d.Action, apperr.Message(err)), OutcomeInvalid, nil
	}
	switch d.Action {
	case ActionSearch:
		if d.Query == "" {
			return "search skipped: no query given", OutcomeInvalid, nil
		}
		hits, err := a.ex.SearchSkeleton(ctx, r.sessionID, d.Query, 0)
		if err != nil {
			return toolFailed(err)
		}
		if len(hits) == 0 {
			return fmt.Sprintf("search %q found no files", d.Query), OutcomeShort, nil
		}
		r.hits = hits
		return fmt.Sprintf("search %q found %d file(s):\n%s", d.Query, len(hits), formatHits(hits)), OutcomeProgress, nil

	case ActionReadInterface:
		if d.Path == "" {
			d.Path = r.topHitPath()
		}
		if d.Path == "" {
			return "readInterface skipped: no path given and no search hit to fall back on", OutcomeInvalid, nil
		}
		view, err := a.ex.ReadInterface(ctx, r.sessionID, d.Path)
		if err != nil {
			return toolFailed(err)
		}
		a.collect(r, view.Evidence)
		return fmt.Sprintf("interface of %s (%d lines):\n%s", view.Path, view.TotalLines, view.View), OutcomeProgress, nil

	case ActionReadImplementation:
		if d.Path == "" {
			d.Path = r.topHitPath()
		}
		if d.Path == "" {
			return "readImplementation skipped: no path given and no search hit to fall back on", OutcomeInvalid, nil
		}
		if d.SymbolName == "" && d.StartLine == 0 && len(r.hits) > 0 && r.hits[0].Path == d.Path && len(r.hits[0].Symbols) > 0 {
			d.SymbolName = r.hits[0].Symbols[0]
		}
		impl, err := a.ex.ReadImplementation(ctx, explore.ImplementationRequest{
			SessionID:  r.sessionID,
			Path:       d.Path,
			SymbolName: d.SymbolName,
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
		})
		if err != nil {
			return toolFailed(err)
		}
		a.collect(r, impl.Evidence)
		obs := fmt.Sprintf("implementation of %s lines %d-%d of %d:\n%s", impl.Path, impl.StartLine, impl.EndLine, impl.TotalLines, impl.Content)
		if len(r.evidence) >= 2 {
			return obs, OutcomeProgress, nil
		}
		return obs, OutcomeShort, nil

	case ActionAnswer:
		r.draft = strings.TrimSpace(d.Draft)
		return "answering: " + r.draft, OutcomeProgress, nil
	}
	return fmt.Sprintf("unknown action %q", d.Action), OutcomeInvalid, nil
}

func (a *Agent) collect(r *run, ev memory.Evidence) {
	key := fmt.Sprintf("%s|%s|%d|%d", ev.Kind, ev.Path, ev.StartLine, ev.EndLine)
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.evidence = append(r.evidence, ev)
}

func (a *Agent) recordStep(ctx context.Context, r *run, step int, d Decision, obs string) {
	obs = clip(obs, a.limits.ObservationChars)
	r.observation = obs
	e := memory.TraceEntry{
		Step:        step,
		Phase:       string(r.phase),
		Tool:        string(d.Action),
		Input:       d.Input(),
		Observation: obs,
		At:          time.Now().UTC(),
	}
	r.trace = append(r.trace, e)
	if err := a.mem.AppendToolTrace(ctx, r.sessionID, e); err != nil {
		a.log.Warn("append tool trace", zap.String("session", r.sessionID), zap.Error(err))
	}
}

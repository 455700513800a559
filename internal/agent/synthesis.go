package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/guide"
	"repotutor/internal/llm"
	"repotutor/internal/memory"
)

const (
	synthesisSnippetChars = 2400
	synthesisEvidence     = 12
	synthesisTrace        = 20
)

// synthesize asks the completion service for the final explanation. Any
// failure is recovered with the templated answer.
func (a *Agent) synthesize(ctx context.Context, sessionID, question, draft string, evidence []memory.Evidence, trace []memory.TraceEntry) (string, bool) {
	brief, err := a.mem.BuildMemoryBrief(ctx, sessionID)
	if err != nil {
		a.log.Warn("memory brief for synthesis", zap.String("session", sessionID), zap.Error(err))
		brief = ""
	}
	picked, trace := a.synthesisInputs(ctx, sessionID, evidence, trace)
	cards := make([]memory.Evidence, len(picked))
	for i, e := range picked {
		e.Snippet = clip(e.Snippet, synthesisSnippetChars)
		cards[i] = e
	}
	txt, err := a.llm.GenerateText(llm.WithPhase(ctx, "synthesis"), llm.Request{
		System: synthesisSystem,
		User:   synthesisUser(question, brief, cards, trace, draft),
	})
	if err == nil && strings.TrimSpace(txt) != "" {
		return strings.TrimSpace(txt), false
	}
	if err == nil {
		err = llm.ErrEmptyResponse
	}
	err = apperr.Wrap(apperr.KindSynthesisFailed, err, "synthesis failed")
	a.log.Warn("synthesis fallback", zap.String("session", sessionID), zap.Error(err))
	a.metrics.SynthesisFallback()
	return TemplateAnswer(question, draft, evidence), true
}

// synthesisInputs selects the most recent session evidence and trace for
// the prompt. The run's own records stand in when memory cannot be read.
func (a *Agent) synthesisInputs(ctx context.Context, sessionID string, evidence []memory.Evidence, trace []memory.TraceEntry) ([]memory.Evidence, []memory.TraceEntry) {
	ev, err := a.mem.PickEvidence(ctx, sessionID, synthesisEvidence)
	if err != nil {
		a.log.Warn("pick evidence", zap.String("session", sessionID), zap.Error(err))
		ev = lastN(evidence, synthesisEvidence)
	}
	tr, err := a.mem.PickTrace(ctx, sessionID, synthesisTrace)
	if err != nil {
		a.log.Warn("pick trace", zap.String("session", sessionID), zap.Error(err))
		tr = lastN(trace, synthesisTrace)
	}
	return ev, tr
}

func lastN[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// TemplateAnswer builds the four-section answer directly from the evidence
// list. It is never empty.
func TemplateAnswer(question, draft string, evidence []memory.Evidence) string {
	var b strings.Builder
	b.WriteString("## Intuition\n")
	if len(evidence) == 0 {
		fmt.Fprintf(&b, "No source evidence was collected for %q. Try naming a file, symbol or feature more specifically.\n", question)
	} else {
		fmt.Fprintf(&b, "The question %q is grounded in %d source excerpt(s) listed below.\n", question, len(evidence))
	}
	if draft != "" && draft != fallbackDraft {
		b.WriteString("\n" + draft + "\n")
	}

	b.WriteString("\n## Mental model\n")
	files := distinctPaths(evidence)
	if len(files) == 0 {
		b.WriteString("No files were read yet.\n")
	} else {
		fmt.Fprintf(&b, "Read these files in order: %s.\n", strings.Join(files, ", "))
	}

	b.WriteString("\n## Core path\n")
	if len(evidence) == 0 {
		b.WriteString("1. Search the skeleton index for a more specific term.\n")
	}
	for i, e := range evidence {
		fmt.Fprintf(&b, "%d. %s of `%s` lines %d-%d ([open](%s))\n", i+1, e.Kind, e.Path, e.StartLine, e.EndLine, guide.OpenLink(e.Path, e.StartLine, e.EndLine))
	}

	b.WriteString("\n## Source anchors\n")
	if len(evidence) == 0 {
		b.WriteString("- none\n")
	}
	for _, e := range evidence {
		fmt.Fprintf(&b, "- [%s:%d-%d](%s)\n", e.Path, e.StartLine, e.EndLine, e.Permalink)
	}
	return strings.TrimRight(b.String(), "\n")
}

func distinctPaths(evidence []memory.Evidence) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range evidence {
		if !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e.Path)
		}
	}
	return out
}

// clip keeps s within n runes, marking a cut with an ellipsis.
func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

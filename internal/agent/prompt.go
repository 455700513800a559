package agent

import (
	"bytes"
	"fmt"
	"strings"

	"repotutor/internal/explore"
	"repotutor/internal/memory"
)

func writeSection(buf *bytes.Buffer, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(buf, "[%s]\n%s\n\n", title, body)
}

func formatList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
	return b.String()
}

func formatTools(specs []explore.ToolSpec) string {
	var b strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&b, "- %s: %s\n  input: %s\n", s.Name, s.Description, string(s.InputSchema))
	}
	return b.String()
}

func formatHits(hits []explore.SkeletonHit) string {
	if len(hits) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s (score %d)", h.Path, h.Score)
		if len(h.Symbols) > 0 {
			fmt.Fprintf(&b, " symbols: %s", strings.Join(h.Symbols, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func plannerSystem(specs []explore.ToolSpec) string {
	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", "You plan the next step of a code-reading agent that answers a question about one repository.")
	writeSection(&buf, "PHASES", formatList([]string{
		"LOCATE: find candidate files with search",
		"OVERVIEW: read the interface of a promising file",
		"DIG: read the implementation around the relevant symbol",
		"ANSWER: enough evidence is collected; answer",
	}))
	writeSection(&buf, "TOOLS", formatTools(specs))
	writeSection(&buf, "RULES", formatList([]string{
		"Return exactly one decision object; action is one of search, readInterface, readImplementation, answer.",
		"search needs query; readInterface needs path; readImplementation needs path and ideally symbolName.",
		"Only use paths that appeared in search hits or observations.",
		"Prefer answer once at least two evidence excerpts support it.",
	}))
	return strings.TrimSpace(buf.String())
}

type plannerState struct {
	question    string
	phase       Phase
	step        int
	maxSteps    int
	brief       string
	observation string
	hits        []explore.SkeletonHit
	evidence    int
}

func plannerUser(s plannerState) string {
	var buf bytes.Buffer
	writeSection(&buf, "QUESTION", s.question)
	writeSection(&buf, "STATE", fmt.Sprintf("phase: %s\nstep: %d of %d\nevidence collected: %d", s.phase, s.step, s.maxSteps, s.evidence))
	writeSection(&buf, "MEMORY", s.brief)
	writeSection(&buf, "LAST_OBSERVATION", s.observation)
	writeSection(&buf, "LAST_SEARCH_HITS", formatHits(s.hits))
	return strings.TrimSpace(buf.String())
}

const synthesisSystem = `You are a patient senior engineer teaching a newcomer how a codebase works.
Answer only from the evidence given. Use exactly these four markdown sections:
## Intuition
One short paragraph with the plain-language idea.
## Mental model
The moving parts and how they relate.
## Core path
A numbered walk through the code path, naming files and symbols.
## Source anchors
A bullet per evidence excerpt, linking path:lines to its permalink.
If the evidence does not answer the question, say what is missing.`

func synthesisUser(question, brief string, evidence []memory.Evidence, trace []memory.TraceEntry, draft string) string {
	var buf bytes.Buffer
	writeSection(&buf, "QUESTION", question)
	if draft != "" {
		writeSection(&buf, "PLANNER_DRAFT", draft)
	}
	writeSection(&buf, "MEMORY", brief)
	var ev strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&ev, "(%d) %s %s:%d-%d %s\n%s\n\n", i+1, e.Kind, e.Path, e.StartLine, e.EndLine, e.Permalink, e.Snippet)
	}
	writeSection(&buf, "EVIDENCE", ev.String())
	var tr strings.Builder
	for _, t := range trace {
		fmt.Fprintf(&tr, "%d. [%s] %s %v\n", t.Step, t.Phase, t.Tool, t.Input)
	}
	writeSection(&buf, "TOOL_TRACE", tr.String())
	return strings.TrimSpace(buf.String())
}

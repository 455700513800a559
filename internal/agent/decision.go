package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"repotutor/internal/apperr"
)

// Decision is the planner's next move.
type Decision struct {
	Phase      Phase  `json:"phase"`
	Action     Action `json:"action"`
	Query      string `json:"query,omitempty"`
	Path       string `json:"path,omitempty"`
	SymbolName string `json:"symbolName,omitempty"`
	StartLine  int    `json:"startLine,omitempty"`
	EndLine    int    `json:"endLine,omitempty"`
	Draft      string `json:"draft,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Input renders the action's parameters for the tool trace.
func (d Decision) Input() map[string]any {
	in := map[string]any{}
	switch d.Action {
	case ActionSearch:
		in["query"] = d.Query
	case ActionReadInterface:
		in["path"] = d.Path
	case ActionReadImplementation:
		in["path"] = d.Path
		if d.SymbolName != "" {
			in["symbolName"] = d.SymbolName
		}
		if d.StartLine > 0 {
			in["startLine"] = d.StartLine
		}
		if d.EndLine > 0 {
			in["endLine"] = d.EndLine
		}
	case ActionAnswer:
		if d.Draft != "" {
			in["draft"] = d.Draft
		}
	}
	return in
}

func enumOf[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// DecisionSchema constrains the planner's structured output.
var DecisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"phase":      {Type: genai.TypeString, Enum: enumOf(Phases), Description: "phase this step belongs to"},
		"action":     {Type: genai.TypeString, Enum: enumOf(Actions), Description: "tool to run next, or answer"},
		"query":      {Type: genai.TypeString, Description: "search keywords (search)"},
		"path":       {Type: genai.TypeString, Description: "repository-relative file path (readInterface, readImplementation)"},
		"symbolName": {Type: genai.TypeString, Description: "symbol to centre the window on (readImplementation)"},
		"startLine":  {Type: genai.TypeInteger, Description: "1-based first line (readImplementation)"},
		"endLine":    {Type: genai.TypeInteger, Description: "1-based last line (readImplementation)"},
		"draft":      {Type: genai.TypeString, Description: "short answer draft (answer)"},
		"reason":     {Type: genai.TypeString, Description: "one sentence on why this step"},
	},
	Required:         []string{"phase", "action"},
	PropertyOrdering: []string{"phase", "action", "query", "path", "symbolName", "startLine", "endLine", "draft", "reason"},
}

// ParseDecision validates raw planner output against DecisionSchema. Any
// type mismatch, unknown field or out-of-enum value is rejected; nothing is
// coerced.
func ParseDecision(raw json.RawMessage) (Decision, error) {
	invalid := func(format string, args ...any) (Decision, error) {
		return Decision{}, apperr.New(apperr.KindPlannerValidationFailed, format, args...)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return invalid("planner output is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var d Decision
	if err := dec.Decode(&d); err != nil {
		return Decision{}, apperr.Wrap(apperr.KindPlannerValidationFailed, err, "planner output does not match the decision schema")
	}
	if dec.More() {
		return invalid("planner output has trailing data")
	}
	if !d.Phase.Valid() {
		return invalid("planner phase %q is not one of %s", d.Phase, strings.Join(enumOf(Phases), ", "))
	}
	if !d.Action.Valid() {
		return invalid("planner action %q is not one of %s", d.Action, strings.Join(enumOf(Actions), ", "))
	}
	if d.StartLine < 0 || d.EndLine < 0 {
		return invalid("planner line numbers must be positive")
	}
	if d.StartLine > 0 && d.EndLine > 0 && d.EndLine < d.StartLine {
		return invalid("planner endLine %d is before startLine %d", d.EndLine, d.StartLine)
	}
	d.Query = strings.TrimSpace(d.Query)
	d.Path = strings.TrimSpace(d.Path)
	d.SymbolName = strings.TrimSpace(d.SymbolName)
	return d, nil
}

func (d Decision) String() string {
	return fmt.Sprintf("%s/%s %v", d.Phase, d.Action, d.Input())
}

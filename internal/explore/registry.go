package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"repotutor/internal/apperr"
)

// ToolSpec documents a tool's contract for planner prompts and API callers.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Tool is one session-scoped exploration operation with JSON input/output.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, sessionID string, input json.RawMessage) (json.RawMessage, error)
}

// Registry holds tool registrations and dispatches calls by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// NewExplorerRegistry registers the three exploration tools.
func NewExplorerRegistry(e *Explorer) *Registry {
	return NewRegistry(&searchTool{e}, &interfaceTool{e}, &implementationTool{e})
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	spec := t.Spec()
	if spec.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = t
}

func (r *Registry) Call(ctx context.Context, name, sessionID string, input json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "unknown tool %q", name)
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return t.Call(ctx, sessionID, input)
}

// Specs returns the registered specs ordered by name.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Spec())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func decodeInput(tool string, input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, "%s: malformed input", tool)
	}
	return nil
}

type searchTool struct{ e *Explorer }

func (t *searchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolSearchSkeleton,
		Description: "Rank indexed files by path and symbol-name matches for a query. Returns paths with matched symbols.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
	}
}

func (t *searchTool) Call(ctx context.Context, sessionID string, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeInput(ToolSearchSkeleton, input, &in); err != nil {
		return nil, err
	}
	hits, err := t.e.SearchSkeleton(ctx, sessionID, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"hits": hits})
}

type interfaceTool struct{ e *Explorer }

func (t *interfaceTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolReadInterface,
		Description: "Show a file's imports and declarations with bodies folded.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}
}

func (t *interfaceTool) Call(ctx context.Context, sessionID string, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := decodeInput(ToolReadInterface, input, &in); err != nil {
		return nil, err
	}
	out, err := t.e.ReadInterface(ctx, sessionID, in.Path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

type implementationTool struct{ e *Explorer }

func (t *implementationTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolReadImplementation,
		Description: "Read source lines of a file, centred on a symbol when symbolName is given.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"symbolName":{"type":"string"},"startLine":{"type":"integer"},"endLine":{"type":"integer"}},"required":["path"]}`),
	}
}

func (t *implementationTool) Call(ctx context.Context, sessionID string, input json.RawMessage) (json.RawMessage, error) {
	var in ImplementationRequest
	if err := decodeInput(ToolReadImplementation, input, &in); err != nil {
		return nil, err
	}
	in.SessionID = sessionID
	out, err := t.e.ReadImplementation(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ToolReadImplementation, in.Path, err)
	}
	return json.Marshal(out)
}

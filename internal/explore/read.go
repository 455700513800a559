package explore

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/memory"
	"repotutor/internal/repo"
)

type InterfaceView struct {
	Path       string          `json:"path"`
	Language   string          `json:"language"`
	View       string          `json:"view"`
	TotalLines int             `json:"totalLines"`
	Permalink  string          `json:"permalink"`
	Evidence   memory.Evidence `json:"evidence"`
}

// ReadInterface renders the declaration outline of a file and records it as
// interface evidence.
func (e *Explorer) ReadInterface(ctx context.Context, sessionID, file string) (out InterfaceView, err error) {
	defer func() { e.metrics.ToolCall(ToolReadInterface, err) }()
	w, err := e.ws.Workspace(ctx, sessionID)
	if err != nil {
		return InterfaceView{}, err
	}
	if strings.TrimSpace(file) == "" {
		return InterfaceView{}, apperr.New(apperr.KindInvalidArgument, "readInterface needs a path")
	}
	snap, err := w.Repo.ReadFile(ctx, file, repo.ReadOptions{StartLine: 1, EndLine: e.limits.InterfaceLines, MaxChars: 1 << 20})
	if err != nil {
		return InterfaceView{}, err
	}
	view := RenderInterface(snap.Language, repo.SplitLines(snap.Content))
	out = InterfaceView{
		Path:       snap.Path,
		Language:   snap.Language,
		View:       view,
		TotalLines: snap.TotalLines,
		Permalink:  snap.Permalink,
		Evidence: memory.Evidence{
			Kind:      memory.EvidenceInterface,
			Path:      snap.Path,
			StartLine: snap.StartLine,
			EndLine:   snap.EndLine,
			Permalink: snap.Permalink,
			Snippet:   capText(view, e.limits.SnippetMaxChars),
		},
	}
	e.record(ctx, sessionID, out.Evidence)
	return out, nil
}

type ImplementationRequest struct {
	SessionID  string `json:"sessionId"`
	Path       string `json:"path"`
	SymbolName string `json:"symbolName,omitempty"`
	StartLine  int    `json:"startLine,omitempty"`
	EndLine    int    `json:"endLine,omitempty"`
	// WindowSize applies to symbol-centred and open-ended windows.
	WindowSize int `json:"windowSize,omitempty"`
}

type Implementation struct {
	Path        string          `json:"path"`
	Language    string          `json:"language"`
	Content     string          `json:"content"`
	StartLine   int             `json:"startLine"`
	EndLine     int             `json:"endLine"`
	TotalLines  int             `json:"totalLines"`
	Permalink   string          `json:"permalink"`
	Symbol      string          `json:"symbol,omitempty"`
	SymbolLine  int             `json:"symbolLine,omitempty"`
	SymbolFound bool            `json:"symbolFound"`
	Evidence    memory.Evidence `json:"evidence"`
}

// ReadImplementation reads a line window of a file. With a symbol name the
// window starts SymbolLead lines above the symbol's indexed line; otherwise
// the given range is used, or a default-sized window from the top. An
// unknown symbol falls back to the range rule.
func (e *Explorer) ReadImplementation(ctx context.Context, req ImplementationRequest) (out Implementation, err error) {
	defer func() { e.metrics.ToolCall(ToolReadImplementation, err) }()
	w, err := e.ws.Workspace(ctx, req.SessionID)
	if err != nil {
		return Implementation{}, err
	}
	file, err := repo.NormalizePath(req.Path)
	if err != nil {
		return Implementation{}, err
	}
	if file == "" {
		return Implementation{}, apperr.New(apperr.KindInvalidArgument, "readImplementation needs a path")
	}

	size := e.limits.WindowDefault
	if req.WindowSize > 0 {
		size = clamp(req.WindowSize, e.limits.WindowMin, e.limits.WindowMax)
	}
	start, end := req.StartLine, req.EndLine
	out.Symbol = strings.TrimSpace(req.SymbolName)
	if out.Symbol != "" {
		if sym, ok := w.Skeleton.FindSymbol(file, out.Symbol); ok {
			out.SymbolFound, out.SymbolLine = true, sym.Line
			start = max(1, sym.Line-e.limits.SymbolLead)
			end = start + size - 1
		}
	}
	if start <= 0 {
		start = 1
	}
	if end <= 0 {
		end = start + size - 1
	}

	snap, err := w.Repo.ReadFile(ctx, file, repo.ReadOptions{StartLine: start, EndLine: end})
	if err != nil {
		return Implementation{}, err
	}
	out.Path = snap.Path
	out.Language = snap.Language
	out.Content = snap.Content
	out.StartLine = snap.StartLine
	out.EndLine = snap.EndLine
	out.TotalLines = snap.TotalLines
	out.Permalink = snap.Permalink
	out.Evidence = memory.Evidence{
		Kind:      memory.EvidenceImplementation,
		Path:      snap.Path,
		StartLine: snap.StartLine,
		EndLine:   snap.EndLine,
		Permalink: snap.Permalink,
		Snippet:   capText(snap.Content, e.limits.SnippetMaxChars),
	}
	e.record(ctx, req.SessionID, out.Evidence)
	if out.SymbolFound {
		fact := fmt.Sprintf("%s is defined at %s:%d", out.Symbol, out.Path, out.SymbolLine)
		if ferr := e.mem.RememberKeyFact(ctx, req.SessionID, fact); ferr != nil {
			e.log.Warn("remember symbol fact", zap.String("session", req.SessionID), zap.Error(ferr))
		}
	}
	return out, nil
}

// record stores the evidence card and marks the file visited. Memory
// failures are logged; the tool result is still returned.
func (e *Explorer) record(ctx context.Context, sessionID string, ev memory.Evidence) {
	if _, err := e.mem.AppendEvidence(ctx, sessionID, ev); err != nil {
		e.log.Warn("append evidence", zap.String("session", sessionID), zap.Error(err))
	}
	if err := e.mem.RememberVisitedFile(ctx, sessionID, ev.Path); err != nil {
		e.log.Warn("remember visited file", zap.String("session", sessionID), zap.Error(err))
	}
}

func capText(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + repo.TruncationMarker
}

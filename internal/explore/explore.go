// Package explore implements the three tools the agent may call:
// searchSkeleton, readInterface and readImplementation. Every tool requires
// the session's index to be READY.
package explore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"repotutor/internal/memory"
	"repotutor/internal/metrics"
	"repotutor/internal/repo"
	"repotutor/internal/session"
	"repotutor/internal/skeleton"
)

const (
	ToolSearchSkeleton     = "searchSkeleton"
	ToolReadInterface      = "readInterface"
	ToolReadImplementation = "readImplementation"
)

// Workspaces hands out READY workspaces; *session.Service implements it.
type Workspaces interface {
	Workspace(ctx context.Context, sessionID string) (*session.Workspace, error)
}

type Limits struct {
	SearchLimit     int
	MaxSearchLimit  int
	InterfaceLines  int
	SymbolLead      int
	WindowDefault   int
	WindowMin       int
	WindowMax       int
	SnippetMaxChars int
}

func DefaultLimits() Limits {
	return Limits{
		SearchLimit:     8,
		MaxSearchLimit:  50,
		InterfaceLines:  1200,
		SymbolLead:      24,
		WindowDefault:   140,
		WindowMin:       50,
		WindowMax:       260,
		SnippetMaxChars: 6000,
	}
}

type Explorer struct {
	ws      Workspaces
	mem     *memory.Memory
	limits  Limits
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(ws Workspaces, mem *memory.Memory, limits Limits, m *metrics.Metrics, log *zap.Logger) *Explorer {
	def := DefaultLimits()
	if limits.SearchLimit <= 0 {
		limits.SearchLimit = def.SearchLimit
	}
	if limits.MaxSearchLimit <= 0 {
		limits.MaxSearchLimit = def.MaxSearchLimit
	}
	if limits.InterfaceLines <= 0 {
		limits.InterfaceLines = def.InterfaceLines
	}
	if limits.SymbolLead <= 0 {
		limits.SymbolLead = def.SymbolLead
	}
	if limits.WindowMin <= 0 {
		limits.WindowMin = def.WindowMin
	}
	if limits.WindowMax < limits.WindowMin {
		limits.WindowMax = max(def.WindowMax, limits.WindowMin)
	}
	if limits.WindowDefault <= 0 {
		limits.WindowDefault = def.WindowDefault
	}
	limits.WindowDefault = clamp(limits.WindowDefault, limits.WindowMin, limits.WindowMax)
	if limits.SnippetMaxChars <= 0 {
		limits.SnippetMaxChars = def.SnippetMaxChars
	}
	if mem == nil {
		mem = memory.New(nil, memory.Caps{})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Explorer{ws: ws, mem: mem, limits: limits, metrics: m, log: log}
}

func (e *Explorer) Memory() *memory.Memory { return e.mem }

// Ready fails with IndexNotReady unless the session can serve tool calls.
func (e *Explorer) Ready(ctx context.Context, sessionID string) error {
	_, err := e.ws.Workspace(ctx, sessionID)
	return err
}

type SkeletonHit struct {
	Path     string   `json:"path"`
	Language string   `json:"language"`
	Score    int      `json:"score"`
	Symbols  []string `json:"symbols"`
}

// SearchSkeleton ranks indexed files against the query. Per token a path
// substring adds 120 and the best symbol-name match adds 90 (prefix) or 70
// (substring). Files deeper than three directories lose 8 per extra level.
// The order is deterministic for a given index and query.
func (e *Explorer) SearchSkeleton(ctx context.Context, sessionID, query string, limit int) (hits []SkeletonHit, err error) {
	defer func() { e.metrics.ToolCall(ToolSearchSkeleton, err) }()
	w, err := e.ws.Workspace(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tokens := repo.Tokenize(query)
	if len(tokens) == 0 {
		return []SkeletonHit{}, nil
	}
	if limit <= 0 {
		limit = e.limits.SearchLimit
	}
	limit = min(limit, e.limits.MaxSearchLimit)

	for _, f := range w.Skeleton.Files {
		h, ok := scoreFile(f.Path, f.Symbols, tokens)
		if !ok {
			continue
		}
		h.Language = f.Language
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []SkeletonHit{}
	}
	if len(hits) > 0 {
		if ferr := e.mem.RememberKeyFact(ctx, sessionID, searchFact(query, hits)); ferr != nil {
			e.log.Warn("remember search fact", zap.String("session", sessionID), zap.Error(ferr))
		}
	}
	return hits, nil
}

func scoreFile(p string, symbols []skeleton.Symbol, tokens []string) (SkeletonHit, bool) {
	lowerPath := strings.ToLower(p)
	score := 0
	var matched []string
	seen := map[string]bool{}
	for _, tok := range tokens {
		if strings.Contains(lowerPath, tok) {
			score += 120
		}
		best := 0
		for _, s := range symbols {
			name := strings.ToLower(s.Name)
			pts := 0
			switch {
			case strings.HasPrefix(name, tok):
				pts = 90
			case strings.Contains(name, tok):
				pts = 70
			default:
				continue
			}
			if !seen[s.Name] {
				seen[s.Name] = true
				matched = append(matched, s.Name)
			}
			best = max(best, pts)
		}
		score += best
	}
	if score == 0 {
		return SkeletonHit{}, false
	}
	if d := repo.Depth(p); d > 3 {
		score -= 8 * (d - 3)
	}
	if score < 1 {
		score = 1
	}
	if matched == nil {
		matched = []string{}
	}
	return SkeletonHit{Path: p, Score: score, Symbols: matched}, true
}

func searchFact(query string, hits []SkeletonHit) string {
	parts := make([]string, 0, 3)
	for _, h := range hits[:min(3, len(hits))] {
		if len(h.Symbols) > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s)", h.Path, strings.Join(h.Symbols[:min(3, len(h.Symbols))], ", ")))
			continue
		}
		parts = append(parts, h.Path)
	}
	return fmt.Sprintf("search %q points at %s", query, strings.Join(parts, "; "))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

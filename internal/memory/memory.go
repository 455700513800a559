// Package memory is the bounded per-session scratch memory the agent builds
// up while answering: visited files, key facts, the tool trace and evidence
// cards. Every list is FIFO-capped.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

type EvidenceKind string

const (
	EvidenceInterface      EvidenceKind = "interface"
	EvidenceImplementation EvidenceKind = "implementation"
)

type Evidence struct {
	Kind      EvidenceKind `json:"kind"`
	Path      string       `json:"path"`
	StartLine int          `json:"startLine"`
	EndLine   int          `json:"endLine"`
	Permalink string       `json:"permalink"`
	Snippet   string       `json:"snippet"`
}

func (e Evidence) dedupKey() string {
	return fmt.Sprintf("%s|%s|%d|%d", e.Kind, e.Path, e.StartLine, e.EndLine)
}

type TraceEntry struct {
	Step        int            `json:"step"`
	Phase       string         `json:"phase"`
	Tool        string         `json:"tool"`
	Input       map[string]any `json:"input,omitempty"`
	Observation string         `json:"observation"`
	At          time.Time      `json:"at"`
}

type Caps struct {
	Visited  int
	Facts    int
	Trace    int
	Evidence int
}

func DefaultCaps() Caps {
	return Caps{Visited: 80, Facts: 40, Trace: 60, Evidence: 40}
}

const briefItems = 8

type Memory struct {
	backend Backend
	caps    Caps

	// serializes check-then-push so dedup holds per process
	mu sync.Mutex
}

func New(backend Backend, caps Caps) *Memory {
	def := DefaultCaps()
	if caps.Visited <= 0 {
		caps.Visited = def.Visited
	}
	if caps.Facts <= 0 {
		caps.Facts = def.Facts
	}
	if caps.Trace <= 0 {
		caps.Trace = def.Trace
	}
	if caps.Evidence <= 0 {
		caps.Evidence = def.Evidence
	}
	if backend == nil {
		backend = NewLocal()
	}
	return &Memory{backend: backend, caps: caps}
}

func (m *Memory) Caps() Caps { return m.caps }

func (m *Memory) rememberUnique(ctx context.Context, sessionID string, list List, value string, max int) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.backend.Range(ctx, sessionID, list)
	if err != nil {
		return false, err
	}
	for _, v := range cur {
		if strings.EqualFold(v, value) {
			return false, nil
		}
	}
	return true, m.backend.Push(ctx, sessionID, list, value, max)
}

// RememberVisitedFile records a path once, case-insensitively.
func (m *Memory) RememberVisitedFile(ctx context.Context, sessionID, path string) error {
	_, err := m.rememberUnique(ctx, sessionID, ListVisited, path, m.caps.Visited)
	return err
}

// RememberKeyFact records a fact once, case-insensitively.
func (m *Memory) RememberKeyFact(ctx context.Context, sessionID, fact string) error {
	_, err := m.rememberUnique(ctx, sessionID, ListFacts, fact, m.caps.Facts)
	return err
}

func (m *Memory) AppendToolTrace(ctx context.Context, sessionID string, e TraceEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode trace entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Push(ctx, sessionID, ListTrace, string(raw), m.caps.Trace)
}

// AppendEvidence adds a card unless one with the same kind, path and line
// range is already held. It reports whether the card was added.
func (m *Memory) AppendEvidence(ctx context.Context, sessionID string, e Evidence) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.evidence(ctx, sessionID)
	if err != nil {
		return false, err
	}
	key := e.dedupKey()
	for _, c := range cur {
		if c.dedupKey() == key {
			return false, nil
		}
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("encode evidence: %w", err)
	}
	return true, m.backend.Push(ctx, sessionID, ListEvidence, string(raw), m.caps.Evidence)
}

func (m *Memory) VisitedFiles(ctx context.Context, sessionID string) ([]string, error) {
	return m.backend.Range(ctx, sessionID, ListVisited)
}

func (m *Memory) KeyFacts(ctx context.Context, sessionID string) ([]string, error) {
	return m.backend.Range(ctx, sessionID, ListFacts)
}

func (m *Memory) Trace(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	raw, err := m.backend.Range(ctx, sessionID, ListTrace)
	if err != nil {
		return nil, err
	}
	out := make([]TraceEntry, 0, len(raw))
	for _, r := range raw {
		var e TraceEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode trace entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Evidence(ctx context.Context, sessionID string) ([]Evidence, error) {
	return m.evidence(ctx, sessionID)
}

func (m *Memory) evidence(ctx context.Context, sessionID string) ([]Evidence, error) {
	raw, err := m.backend.Range(ctx, sessionID, ListEvidence)
	if err != nil {
		return nil, err
	}
	out := make([]Evidence, 0, len(raw))
	for _, r := range raw {
		var e Evidence
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// PickEvidence returns the n most recent cards, oldest first.
func (m *Memory) PickEvidence(ctx context.Context, sessionID string, n int) ([]Evidence, error) {
	all, err := m.evidence(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return tail(all, n), nil
}

// PickTrace returns the n most recent trace entries, oldest first.
func (m *Memory) PickTrace(ctx context.Context, sessionID string, n int) ([]TraceEntry, error) {
	all, err := m.Trace(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return tail(all, n), nil
}

func tail[T any](xs []T, n int) []T {
	if n <= 0 || n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}

// BuildMemoryBrief renders the latest facts and visited files for a planner
// prompt.
func (m *Memory) BuildMemoryBrief(ctx context.Context, sessionID string) (string, error) {
	facts, err := m.KeyFacts(ctx, sessionID)
	if err != nil {
		return "", err
	}
	files, err := m.VisitedFiles(ctx, sessionID)
	if err != nil {
		return "", err
	}
	facts, files = tail(facts, briefItems), tail(files, briefItems)
	if len(facts) == 0 && len(files) == 0 {
		return "(no memory yet)", nil
	}
	var b strings.Builder
	if len(facts) > 0 {
		b.WriteString("Key facts:\n")
		for _, f := range facts {
			b.WriteString("- " + f + "\n")
		}
	}
	if len(files) > 0 {
		b.WriteString("Visited files:\n")
		for _, f := range files {
			b.WriteString("- " + f + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Clear wipes all four lists of a session.
func (m *Memory) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Clear(ctx, sessionID)
}

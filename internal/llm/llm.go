// Package llm is the completion-service boundary: structured (schema
// constrained JSON) and free-text generation, each taking a system prompt
// and a user prompt. Cross-cutting concerns are layered as Middleware.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	genai "google.golang.org/genai"
)

var (
	ErrEmptyResponse = errors.New("llm: empty response from model")
	ErrInvalidJSON   = errors.New("llm: invalid JSON from model")
	ErrUnavailable   = errors.New("llm: no completion service configured")
)

// Request is one completion call. Schema is only used by GenerateStructured.
type Request struct {
	System string
	User   string
	Schema *genai.Schema
}

type Client interface {
	Name() string
	GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error)
	GenerateText(ctx context.Context, req Request) (string, error)
	Close() error
}

// PermanentError marks failures that retrying will not fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

type ctxKeyPhase struct{}

// WithPhase tags the context with the caller's phase for logging.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPhase{}).(string); ok {
		return v
	}
	return "unknown"
}

// Unavailable fails every call with ErrUnavailable. Callers that degrade
// gracefully (the agent's fallback planner) run on it when no provider is
// configured.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }
func (Unavailable) Close() error { return nil }
func (Unavailable) GenerateStructured(context.Context, Request) (json.RawMessage, error) {
	return nil, Permanent(ErrUnavailable)
}
func (Unavailable) GenerateText(context.Context, Request) (string, error) {
	return "", Permanent(ErrUnavailable)
}

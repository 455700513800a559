package llm

import (
	"context"
	"encoding/json"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client. It only
// makes the API call; rate limiting, retries and logging are middleware.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	temperature float32
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cc.APIKey = apiKey
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{cli: cli, model: model, temperature: 0.2}, nil
}

const DefaultGeminiModel = "gemini-2.5-flash"

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) config(req Request) *genai.GenerateContentConfig {
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	return cfg
}

// GenerateStructured asks for application/json constrained by req.Schema.
func (g *GeminiClient) GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	cfg := g.config(req)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = req.Schema
	txt, err := g.generate(ctx, req.User, cfg)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(txt)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(txt), nil
}

func (g *GeminiClient) GenerateText(ctx context.Context, req Request) (string, error) {
	return g.generate(ctx, req.User, g.config(req))
}

func (g *GeminiClient) generate(ctx context.Context, user string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"-"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`
	Retries  int           `yaml:"retries"`
	Timeout  time.Duration `yaml:"timeout"`
}

// New builds the configured client with the standard middleware stack.
// Without a provider or key it returns Unavailable so callers degrade to
// their fallbacks instead of failing at startup.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var base Client
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case "", "none":
		log.Info("llm disabled; agent will use fallback planning")
		return Unavailable{}, nil
	case "gemini":
		if cfg.APIKey == "" {
			log.Warn("gemini selected without an API key; agent will use fallback planning")
			return Unavailable{}, nil
		}
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		base = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	return Wrap(base,
		WithLogging(log),
		Retry(retries, 300*time.Millisecond),
		RateLimit(cfg.RPS, cfg.Burst),
		WithTimeout(cfg.Timeout),
	), nil
}

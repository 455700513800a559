// Package config loads runtime configuration from .env, an optional YAML
// file, and environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"repotutor/internal/agent"
	"repotutor/internal/explore"
	"repotutor/internal/llm"
	"repotutor/internal/manifest"
	"repotutor/internal/memory"
	"repotutor/internal/repo"
	"repotutor/internal/skeleton"
	"repotutor/internal/store"
)

type Config struct {
	Port     string       `yaml:"port"`
	Env      string       `yaml:"env"`
	LogLevel string       `yaml:"logLevel"`
	GitHub   GitHubConfig `yaml:"github"`
	LLM      llm.Config   `yaml:"llm"`
	Limits   Limits       `yaml:"limits"`
	Stores   Stores       `yaml:"stores"`
}

type GitHubConfig struct {
	APIBase string        `yaml:"apiBase"`
	WebBase string        `yaml:"webBase"`
	Token   string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

func (g GitHubConfig) Repo() repo.GitHubConfig {
	return repo.GitHubConfig{APIBase: g.APIBase, WebBase: g.WebBase, Token: g.Token, Timeout: g.Timeout}
}

// Limits collects the caps of every component. YAML keys are the lowercased
// field names of the component types, e.g. limits.explore.searchlimit.
type Limits struct {
	Repo     repo.Limits      `yaml:"repo"`
	Manifest manifest.Options `yaml:"manifest"`
	Skeleton skeleton.Options `yaml:"skeleton"`
	Explore  explore.Limits   `yaml:"explore"`
	Agent    agent.Limits     `yaml:"agent"`
	Memory   memory.Caps      `yaml:"memory"`
}

type Stores struct {
	DatabaseURL string               `yaml:"-"`
	RedisAddr   string               `yaml:"redisAddr"`
	MemoryTTL   time.Duration        `yaml:"memoryTTL"`
	CacheSize   int                  `yaml:"cacheSize"`
	Snapshot    store.SnapshotConfig `yaml:"snapshot"`
}

func Default() *Config {
	return &Config{
		Port:     ":8080",
		Env:      "local",
		LogLevel: "info",
		GitHub:   GitHubConfig{Timeout: 30 * time.Second},
		LLM:      llm.Config{Model: llm.DefaultGeminiModel, Retries: 3, RPS: 2, Burst: 2, Timeout: 90 * time.Second},
		Limits: Limits{
			Repo:     repo.DefaultLimits(),
			Manifest: manifest.DefaultOptions(),
			Skeleton: skeleton.DefaultOptions(),
			Explore:  explore.DefaultLimits(),
			Agent:    agent.DefaultLimits(),
			Memory:   memory.DefaultCaps(),
		},
		Stores: Stores{MemoryTTL: 24 * time.Hour, CacheSize: 256},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty and
// present), then environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if p := env("PORT"); p != "" {
		cfg.Port = p
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	cfg.Env = firstNonEmpty(env("APP_ENV"), cfg.Env)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(env("LOG_LEVEL"), cfg.LogLevel))

	cfg.GitHub.APIBase = firstNonEmpty(env("GITHUB_API_BASE"), cfg.GitHub.APIBase)
	cfg.GitHub.WebBase = firstNonEmpty(env("GITHUB_WEB_BASE"), cfg.GitHub.WebBase)
	cfg.GitHub.Token = firstNonEmpty(env("GITHUB_TOKEN"), cfg.GitHub.Token)

	cfg.LLM.APIKey = firstNonEmpty(env("GEMINI_API_KEY"), cfg.LLM.APIKey)
	cfg.LLM.Model = firstNonEmpty(env("LLM_MODEL"), cfg.LLM.Model)
	cfg.LLM.Provider = firstNonEmpty(env("LLM_PROVIDER"), cfg.LLM.Provider)
	if cfg.LLM.Provider == "" && cfg.LLM.APIKey != "" {
		cfg.LLM.Provider = "gemini"
	}
	if v, ok := envFloat("LLM_RPS"); ok {
		cfg.LLM.RPS = v
	}

	cfg.Stores.DatabaseURL = firstNonEmpty(env("DATABASE_URL"), cfg.Stores.DatabaseURL)
	cfg.Stores.RedisAddr = firstNonEmpty(env("REDIS_ADDR"), cfg.Stores.RedisAddr)
	s := &cfg.Stores.Snapshot
	s.Endpoint = firstNonEmpty(env("SNAPSHOT_S3_ENDPOINT"), s.Endpoint)
	s.Region = firstNonEmpty(env("SNAPSHOT_S3_REGION"), s.Region, "us-east-1")
	s.AccessKey = firstNonEmpty(env("SNAPSHOT_S3_ACCESS_KEY"), s.AccessKey, env("MINIO_ROOT_USER"))
	s.SecretKey = firstNonEmpty(env("SNAPSHOT_S3_SECRET_KEY"), s.SecretKey, env("MINIO_ROOT_PASSWORD"))
	s.Bucket = firstNonEmpty(env("SNAPSHOT_S3_BUCKET"), s.Bucket, "repotutor-snapshots")
	if v, ok := envBool("SNAPSHOT_S3_USE_SSL"); ok {
		s.UseSSL = v
	}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Limits.Agent.MaxSteps > 0 && c.Limits.Agent.MinSteps > c.Limits.Agent.MaxSteps {
		return fmt.Errorf("agent minSteps %d exceeds maxSteps %d", c.Limits.Agent.MinSteps, c.Limits.Agent.MaxSteps)
	}
	return nil
}

// Dev reports whether the environment asks for human-readable logs.
func (c *Config) Dev() bool {
	return strings.EqualFold(c.Env, "local") || strings.EqualFold(c.Env, "dev")
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envBool(key string) (bool, bool) {
	raw := env(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	return v, err == nil
}

func envFloat(key string) (float64, bool) {
	raw := env(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

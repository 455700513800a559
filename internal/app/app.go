// Package app wires configuration into the running core: stores, session
// service, exploration tools, agent, guide and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"repotutor/internal/agent"
	"repotutor/internal/api"
	"repotutor/internal/config"
	"repotutor/internal/explore"
	"repotutor/internal/guide"
	"repotutor/internal/llm"
	"repotutor/internal/manifest"
	"repotutor/internal/memory"
	"repotutor/internal/metrics"
	"repotutor/internal/repo"
	"repotutor/internal/session"
	"repotutor/internal/skeleton"
	"repotutor/internal/store"
)

type Options struct {
	// InMemory ignores the configured database, redis and object storage.
	InMemory bool
	// LLM overrides the configured completion client.
	LLM llm.Client
}

type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Sessions *session.Service
	Explorer *explore.Explorer
	Tools    *explore.Registry
	Agent    *agent.Agent
	Guide    *guide.Generator

	llm     llm.Client
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	deps := session.Deps{
		Resolver:        repo.NewResolver(cfg.GitHub.Repo(), cfg.Limits.Repo, log.Named("repo")),
		ManifestBuilder: manifest.NewBuilder(cfg.Limits.Manifest, log.Named("manifest")),
		SkeletonBuilder: skeleton.NewBuilder(cfg.Limits.Skeleton, log.Named("skeleton")),
		Metrics:         a.Metrics,
		Log:             log.Named("session"),
	}
	var memBackend memory.Backend
	if err := a.openStores(ctx, &deps, &memBackend, opts.InMemory); err != nil {
		return nil, err
	}
	mem := memory.New(memBackend, cfg.Limits.Memory)
	deps.Memory = mem
	a.Sessions = session.New(deps)
	a.closers = append(a.closers, func() error { a.Sessions.Close(); return nil })

	client := opts.LLM
	if client == nil {
		if client, err = llm.New(ctx, cfg.LLM, log.Named("llm")); err != nil {
			return nil, err
		}
	}
	a.llm = client
	a.closers = append(a.closers, client.Close)

	a.Explorer = explore.New(a.Sessions, mem, cfg.Limits.Explore, a.Metrics, log.Named("explore"))
	a.Tools = explore.NewExplorerRegistry(a.Explorer)
	a.Agent = agent.New(a.Explorer, client, cfg.Limits.Agent, a.Metrics, log.Named("agent"))
	a.Guide = guide.New(a.Sessions, cfg.Stores.CacheSize, log.Named("guide"))

	log.Info("core ready",
		zap.String("llm", client.Name()),
		zap.Bool("postgres", !opts.InMemory && cfg.Stores.DatabaseURL != ""),
		zap.Bool("redis", !opts.InMemory && cfg.Stores.RedisAddr != ""),
		zap.Bool("snapshots", !opts.InMemory && cfg.Stores.Snapshot.Enabled()))
	return a, nil
}

func (a *App) openStores(ctx context.Context, deps *session.Deps, memBackend *memory.Backend, inMemory bool) error {
	cfg := a.Config.Stores
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	var manifests store.ManifestStore = store.NewLRU[*manifest.Manifest](size, "manifest")
	var skeletons store.SkeletonStore = store.NewLRU[*skeleton.Index](size, "skeleton")
	if inMemory {
		deps.Manifests, deps.Skeletons = manifests, skeletons
		return nil
	}

	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		deps.Sessions, deps.Statuses = pg, pg
	}
	if cfg.Snapshot.Enabled() {
		bucket, err := store.NewBucket(cfg.Snapshot)
		if err != nil {
			return fmt.Errorf("open snapshot bucket: %w", err)
		}
		manifests = store.NewSnapshot(manifests, bucket, "manifests", a.Log.Named("snapshot"))
		skeletons = store.NewSnapshot(skeletons, bucket, "skeletons", a.Log.Named("snapshot"))
	}
	if cfg.RedisAddr != "" {
		r, err := memory.NewRedis(ctx, cfg.RedisAddr, cfg.MemoryTTL)
		if err != nil {
			return fmt.Errorf("open session memory: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		*memBackend = r
	}
	deps.Manifests, deps.Skeletons = manifests, skeletons
	return nil
}

// Handler is the full HTTP surface.
func (a *App) Handler() http.Handler {
	h := api.NewHandler(a.Sessions, a.Agent, a.Guide, a.Tools, a.Log.Named("api"))
	return api.NewMux(h, a.Metrics.Handler())
}

// Serve runs the HTTP server until ctx is done, then drains it.
func (a *App) Serve(ctx context.Context) error {
	srv := api.NewServer(a.Config.Port, a.Handler(), a.Log.Named("http"))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// Close releases stores and stops running jobs, in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

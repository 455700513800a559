// Package session owns the session lifecycle and the per-session indexing
// state machine CREATED -> INDEXING -> READY | FAILED.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/manifest"
	"repotutor/internal/memory"
	"repotutor/internal/metrics"
	"repotutor/internal/repo"
	"repotutor/internal/skeleton"
	"repotutor/internal/store"
)

// Indexing progress checkpoints.
const (
	ProgressStarted  = 5
	ProgressManifest = 45
	ProgressSkeleton = 85
	ProgressDone     = 100
)

type Deps struct {
	Resolver        *repo.Resolver
	Sessions        store.SessionStore
	Statuses        store.StatusStore
	Manifests       store.ManifestStore
	Skeletons       store.SkeletonStore
	Memory          *memory.Memory
	ManifestBuilder *manifest.Builder
	SkeletonBuilder *skeleton.Builder
	Metrics         *metrics.Metrics
	Log             *zap.Logger
}

type Service struct {
	resolver  *repo.Resolver
	sessions  store.SessionStore
	statuses  store.StatusStore
	manifests store.ManifestStore
	skeletons store.SkeletonStore
	memory    *memory.Memory
	mb        *manifest.Builder
	sb        *skeleton.Builder
	metrics   *metrics.Metrics
	log       *zap.Logger

	mu       sync.Mutex
	inflight map[string]*job

	// jobs outlive the request that started them; baseCtx only ends on Close
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Resolver == nil {
		d.Resolver = repo.NewResolver(repo.GitHubConfig{}, repo.Limits{}, d.Log)
	}
	if d.Sessions == nil || d.Statuses == nil {
		mem := store.NewMemory()
		if d.Sessions == nil {
			d.Sessions = mem
		}
		if d.Statuses == nil {
			d.Statuses = mem
		}
	}
	if d.Manifests == nil {
		d.Manifests = store.NewLRU[*manifest.Manifest](64, "manifest")
	}
	if d.Skeletons == nil {
		d.Skeletons = store.NewLRU[*skeleton.Index](64, "skeleton")
	}
	if d.Memory == nil {
		d.Memory = memory.New(nil, memory.Caps{})
	}
	if d.ManifestBuilder == nil {
		d.ManifestBuilder = manifest.NewBuilder(manifest.Options{}, d.Log)
	}
	if d.SkeletonBuilder == nil {
		d.SkeletonBuilder = skeleton.NewBuilder(skeleton.Options{}, d.Log)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		resolver:  d.Resolver,
		sessions:  d.Sessions,
		statuses:  d.Statuses,
		manifests: d.Manifests,
		skeletons: d.Skeletons,
		memory:    d.Memory,
		mb:        d.ManifestBuilder,
		sb:        d.SkeletonBuilder,
		metrics:   d.Metrics,
		log:       d.Log,
		inflight:  make(map[string]*job),
		baseCtx:   ctx,
		stop:      stop,
	}
}

// Close cancels running jobs and waits for them to exit.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Service) Memory() *memory.Memory { return s.memory }

// CreateSession resolves the repository and registers a new session in
// state CREATED. The session's memory starts empty.
func (s *Service) CreateSession(ctx context.Context, repoURL, branch string) (store.Session, error) {
	r, err := s.resolver.Resolve(ctx, repoURL, branch)
	if err != nil {
		return store.Session{}, err
	}
	rc := r.Context()
	now := time.Now().UTC()
	sess := store.Session{
		ID:        uuid.NewString(),
		RepoKey:   rc.Key(),
		Repo:      rc,
		State:     store.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.memory.Clear(ctx, sess.ID); err != nil {
		return store.Session{}, err
	}
	if err := s.sessions.PutSession(ctx, sess); err != nil {
		return store.Session{}, err
	}
	if err := s.statuses.PutStatus(ctx, store.IndexStatus{
		SessionID: sess.ID,
		RepoKey:   sess.RepoKey,
		State:     store.StateCreated,
		UpdatedAt: now,
	}); err != nil {
		return store.Session{}, err
	}
	s.log.Info("session created",
		zap.String("session", sess.ID),
		zap.String("repo", sess.RepoKey),
		zap.String("source", string(rc.Source)))
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	return s.sessions.GetSession(ctx, sessionID)
}

// GetStatus returns the last persisted status. It never waits on a job.
func (s *Service) GetStatus(ctx context.Context, sessionID string) (store.IndexStatus, error) {
	return s.statuses.GetStatus(ctx, sessionID)
}

// Repository opens the session's repository regardless of index state.
func (s *Service) Repository(ctx context.Context, sessionID string) (*repo.Repository, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Open(ctx, sess.Repo)
}

// Workspace is everything the exploration tools need for one READY session.
type Workspace struct {
	Session  store.Session
	Repo     *repo.Repository
	Manifest *manifest.Manifest
	Skeleton *skeleton.Index
}

// Workspace fails with IndexNotReady unless the session's index is READY and
// its artifacts are still cached.
func (s *Service) Workspace(ctx context.Context, sessionID string) (*Workspace, error) {
	st, err := s.statuses.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.State != store.StateReady {
		return nil, apperr.New(apperr.KindIndexNotReady, "session %s is %s, index is not ready", sessionID, st.State)
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sk, err := s.skeletons.Get(ctx, sess.RepoKey)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindIndexNotReady, "skeleton for %s was evicted; re-index with force", sess.RepoKey)
		}
		return nil, err
	}
	m, err := s.manifests.Get(ctx, sess.RepoKey)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}
	r, err := s.resolver.Open(ctx, sess.Repo)
	if err != nil {
		return nil, err
	}
	return &Workspace{Session: sess, Repo: r, Manifest: m, Skeleton: sk}, nil
}

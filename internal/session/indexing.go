package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/manifest"
	"repotutor/internal/repo"
	"repotutor/internal/skeleton"
	"repotutor/internal/store"
)

type job struct {
	force bool
	done  chan struct{}
}

// StartIndexing launches the indexing pipeline for a session and returns at
// once. While a job for the session is in flight a second call starts
// nothing and reports the in-progress status. READY and FAILED sessions are
// only re-indexed when force is set.
func (s *Service) StartIndexing(ctx context.Context, sessionID string, force bool) (bool, store.IndexStatus, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return false, store.IndexStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.inflight[sess.ID]; running {
		st, err := s.statuses.GetStatus(ctx, sess.ID)
		return false, st, err
	}
	cur, err := s.statuses.GetStatus(ctx, sess.ID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return false, store.IndexStatus{}, err
	}
	if cur.State.Terminal() && !force {
		return false, cur, nil
	}
	if err := s.baseCtx.Err(); err != nil {
		return false, cur, fmt.Errorf("session service closed: %w", err)
	}

	st := store.IndexStatus{
		SessionID: sess.ID,
		RepoKey:   sess.RepoKey,
		State:     store.StateIndexing,
		Progress:  ProgressStarted,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.statuses.PutStatus(ctx, st); err != nil {
		return false, store.IndexStatus{}, err
	}
	s.setSessionState(ctx, sess, store.StateIndexing, "")

	j := &job{force: force, done: make(chan struct{})}
	s.inflight[sess.ID] = j
	s.wg.Add(1)
	s.metrics.JobStarted()
	go s.run(sess, st, j)

	s.log.Info("indexing started",
		zap.String("session", sess.ID),
		zap.String("repo", sess.RepoKey),
		zap.Bool("force", force))
	return true, st, nil
}

// Wait blocks until the session has no job in flight and returns the final
// status. It is meant for CLI use and tests; request paths poll GetStatus.
func (s *Service) Wait(ctx context.Context, sessionID string) (store.IndexStatus, error) {
	s.mu.Lock()
	j := s.inflight[sessionID]
	s.mu.Unlock()
	if j != nil {
		select {
		case <-j.done:
		case <-ctx.Done():
			return store.IndexStatus{}, ctx.Err()
		}
	}
	return s.statuses.GetStatus(ctx, sessionID)
}

func (s *Service) run(sess store.Session, st store.IndexStatus, j *job) {
	start := time.Now()
	ctx := s.baseCtx
	defer func() {
		if p := recover(); p != nil {
			s.fail(ctx, sess, &st, fmt.Errorf("indexing panicked: %v", p))
		}
		s.metrics.JobFinished(string(st.State), time.Since(start))
		s.mu.Lock()
		delete(s.inflight, sess.ID)
		s.mu.Unlock()
		close(j.done)
		s.wg.Done()
	}()

	if err := s.index(ctx, sess, &st, j.force); err != nil {
		s.fail(ctx, sess, &st, err)
		return
	}
	s.log.Info("indexing finished",
		zap.String("session", sess.ID),
		zap.String("repo", sess.RepoKey),
		zap.Duration("took", time.Since(start)),
		zap.Int("files", st.Stats.TotalFiles),
		zap.Int("skeletonFiles", st.Stats.SkeletonFiles),
		zap.Int("symbols", st.Stats.SymbolCount),
		zap.Bool("truncated", st.Stats.Truncated))
}

func (s *Service) index(ctx context.Context, sess store.Session, st *store.IndexStatus, force bool) error {
	r, err := s.resolver.Open(ctx, sess.Repo)
	if err != nil {
		return err
	}
	m, err := s.manifest(ctx, r, sess.RepoKey, force)
	if err != nil {
		return err
	}
	st.Stats.TotalFiles = len(m.Files)
	st.Stats.IndexableFiles = m.IndexableCount()
	st.Stats.Truncated = m.Truncated
	if err := s.checkpoint(ctx, st, store.StateIndexing, ProgressManifest); err != nil {
		return err
	}

	ix, err := s.skeleton(ctx, r, m, sess.RepoKey, force)
	if err != nil {
		return err
	}
	st.Stats.SkeletonFiles = ix.SymbolFileCount()
	st.Stats.SymbolCount = ix.SymbolCount()
	if err := s.checkpoint(ctx, st, store.StateIndexing, ProgressSkeleton); err != nil {
		return err
	}

	if err := s.checkpoint(ctx, st, store.StateReady, ProgressDone); err != nil {
		return err
	}
	s.setSessionState(ctx, sess, store.StateReady, "")
	return nil
}

// manifest reuses the repoKey-cached manifest unless force is set. Two
// sessions building the same repoKey at once both finish; the last write wins.
func (s *Service) manifest(ctx context.Context, r *repo.Repository, key string, force bool) (*manifest.Manifest, error) {
	if !force {
		if m, err := s.manifests.Get(ctx, key); err == nil {
			return m, nil
		}
	}
	m, err := s.mb.Build(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := s.manifests.Put(ctx, key, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) skeleton(ctx context.Context, r *repo.Repository, m *manifest.Manifest, key string, force bool) (*skeleton.Index, error) {
	if !force {
		if ix, err := s.skeletons.Get(ctx, key); err == nil {
			return ix, nil
		}
	}
	ix, err := s.sb.Build(ctx, r, m)
	if err != nil {
		return nil, err
	}
	if err := s.skeletons.Put(ctx, key, ix); err != nil {
		return nil, err
	}
	return ix, nil
}

func (s *Service) checkpoint(ctx context.Context, st *store.IndexStatus, state store.IndexState, progress int) error {
	if progress < st.Progress {
		progress = st.Progress
	}
	st.State = state
	st.Progress = progress
	st.UpdatedAt = time.Now().UTC()
	return s.statuses.PutStatus(ctx, *st)
}

// fail records FAILED with a client-safe message and leaves progress at its
// last checkpoint. The full error is only logged.
func (s *Service) fail(ctx context.Context, sess store.Session, st *store.IndexStatus, err error) {
	st.State = store.StateFailed
	st.Error = failureMessage(err)
	st.UpdatedAt = time.Now().UTC()
	// the job context may already be cancelled; the failure must still land
	wctx := context.WithoutCancel(ctx)
	if perr := s.statuses.PutStatus(wctx, *st); perr != nil {
		s.log.Error("persist failed status", zap.String("session", sess.ID), zap.Error(perr))
	}
	s.setSessionState(wctx, sess, store.StateFailed, st.Error)
	s.log.Warn("indexing failed",
		zap.String("session", sess.ID),
		zap.String("repo", sess.RepoKey),
		zap.Int("progress", st.Progress),
		zap.Error(err))
}

func (s *Service) setSessionState(ctx context.Context, sess store.Session, state store.IndexState, msg string) {
	cur, err := s.sessions.GetSession(ctx, sess.ID)
	if err != nil {
		cur = sess
	}
	cur.State = state
	cur.Error = msg
	cur.UpdatedAt = time.Now().UTC()
	if err := s.sessions.PutSession(ctx, cur); err != nil {
		s.log.Error("persist session state", zap.String("session", sess.ID), zap.Error(err))
	}
}

func failureMessage(err error) string {
	var e *apperr.Error
	switch {
	case errors.As(err, &e):
		return e.Msg
	case errors.Is(err, context.Canceled):
		return "indexing cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "indexing timed out"
	}
	return "indexing failed"
}

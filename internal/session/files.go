package session

import (
	"context"
	"sort"

	"repotutor/internal/apperr"
	"repotutor/internal/repo"
)

func (s *Service) ListDirectory(ctx context.Context, sessionID, dir string) ([]repo.Entry, error) {
	r, err := s.Repository(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return r.List(ctx, dir)
}

func (s *Service) ReadFile(ctx context.Context, sessionID, file string, startLine, endLine int) (repo.FileSnapshot, error) {
	r, err := s.Repository(ctx, sessionID)
	if err != nil {
		return repo.FileSnapshot{}, err
	}
	return r.ReadFile(ctx, file, repo.ReadOptions{StartLine: startLine, EndLine: endLine})
}

// SearchFiles ranks file paths. When the session's manifest is cached the
// ranking runs over it instead of listing the repository again.
func (s *Service) SearchFiles(ctx context.Context, sessionID, keyword string, limit int) ([]repo.SearchHit, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m, err := s.manifests.Get(ctx, sess.RepoKey)
	if err != nil {
		r, err := s.resolver.Open(ctx, sess.Repo)
		if err != nil {
			return nil, err
		}
		return r.Search(ctx, keyword, limit)
	}
	tokens := repo.Tokenize(keyword)
	if len(tokens) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "search keyword %q has no usable tokens", keyword)
	}
	if limit <= 0 {
		limit = 20
	}
	var hits []repo.SearchHit
	for _, f := range m.Files {
		if sc := repo.ScorePath(f.Path, tokens); sc > 0 {
			hits = append(hits, repo.SearchHit{Path: f.Path, Score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

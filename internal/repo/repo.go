// Package repo gives uniform read/list/search access to a repository, either
// through a hosted code API or a directory on local disk.
package repo

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"repotutor/internal/apperr"
)

type Source string

const (
	SourceHosted Source = "hosted"
	SourceLocal  Source = "local"
)

// Context identifies one resolved repository. It never changes after resolution.
type Context struct {
	Owner   string `json:"owner,omitempty"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch"`
	HTMLURL string `json:"htmlUrl,omitempty"`
	Root    string `json:"root,omitempty"`
	Source  Source `json:"source"`
}

// Key is the cache key for one (repository, branch) pair.
func (c Context) Key() string {
	if c.Source == SourceLocal {
		return "local:" + c.Root + "@" + c.Branch
	}
	return c.Owner + "/" + c.Repo + "@" + c.Branch
}

type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
	Size int64     `json:"size"`
}

// Backend is the minimal surface a storage backend has to provide. Paths are
// normalized repo-relative paths; "" is the root.
type Backend interface {
	ListDir(ctx context.Context, dir string) ([]Entry, error)
	ReadRaw(ctx context.Context, file string) ([]byte, error)
	Permalink(file string, startLine, endLine int) string
}

type Limits struct {
	DefaultWindow int
	MaxChars      int
	SearchDepth   int
	SearchFiles   int
}

func DefaultLimits() Limits {
	return Limits{DefaultWindow: 220, MaxChars: 24000, SearchDepth: 6, SearchFiles: 1800}
}

// Repository is the access adapter. Everything above this layer talks to a
// Repository and never branches on the backend.
type Repository struct {
	info    Context
	backend Backend
	policy  *Policy
	limits  Limits
}

func New(info Context, backend Backend, policy *Policy, limits Limits) *Repository {
	if policy == nil {
		policy = NewPolicy(nil)
	}
	def := DefaultLimits()
	if limits.DefaultWindow <= 0 {
		limits.DefaultWindow = def.DefaultWindow
	}
	if limits.MaxChars <= 0 {
		limits.MaxChars = def.MaxChars
	}
	if limits.SearchDepth <= 0 {
		limits.SearchDepth = def.SearchDepth
	}
	if limits.SearchFiles <= 0 {
		limits.SearchFiles = def.SearchFiles
	}
	return &Repository{info: info, backend: backend, policy: policy, limits: limits}
}

func (r *Repository) Context() Context { return r.info }
func (r *Repository) Policy() *Policy  { return r.policy }

// List returns the non-ignored entries of a directory, directories first.
func (r *Repository) List(ctx context.Context, dir string) ([]Entry, error) {
	rel, err := NormalizePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := r.backend.ListDir(ctx, rel)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if r.policy.Ignore(e) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == EntryDir
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// ReadOptions selects a line window. Zero values mean "use the default".
type ReadOptions struct {
	StartLine int
	EndLine   int
	MaxChars  int
}

type FileSnapshot struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	Language   string `json:"language"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	TotalLines int    `json:"totalLines"`
	Truncated  bool   `json:"truncated"`
	Permalink  string `json:"permalink"`
}

// ReadFile reads a line window of a file.
func (r *Repository) ReadFile(ctx context.Context, file string, opts ReadOptions) (FileSnapshot, error) {
	rel, err := NormalizePath(file)
	if err != nil {
		return FileSnapshot{}, err
	}
	if rel == "" {
		return FileSnapshot{}, apperr.New(apperr.KindInvalidArgument, "file path is required")
	}
	raw, err := r.backend.ReadRaw(ctx, rel)
	if err != nil {
		return FileSnapshot{}, err
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return FileSnapshot{}, apperr.New(apperr.KindInvalidArgument, "%q looks like a binary file", rel)
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = r.limits.MaxChars
	}
	w := Window(string(raw), opts, r.limits.DefaultWindow)
	w.Path = rel
	w.Language = LanguageOf(rel)
	w.Permalink = r.backend.Permalink(rel, w.StartLine, w.EndLine)
	return w, nil
}

// Permalink builds a backend-specific link to a line range.
func (r *Repository) Permalink(file string, startLine, endLine int) string {
	return r.backend.Permalink(file, startLine, endLine)
}

type WalkOptions struct {
	MaxDepth int
	MaxFiles int
}

// Walk visits files breadth-first from the root. Ignored directories are
// pruned before they are listed. It reports truncated=true when it stops
// because MaxFiles was reached with files still remaining.
func (r *Repository) Walk(ctx context.Context, opts WalkOptions, visit func(Entry)) (bool, error) {
	type item struct {
		dir   string
		depth int
	}
	queue := []item{{dir: "", depth: 0}}
	count := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		cur := queue[0]
		queue = queue[1:]
		entries, err := r.List(ctx, cur.dir)
		if err != nil {
			if cur.dir == "" {
				return false, err
			}
			// unreadable subdirectories are skipped
			continue
		}
		for _, e := range entries {
			switch e.Type {
			case EntryDir:
				if opts.MaxDepth <= 0 || cur.depth+1 <= opts.MaxDepth {
					queue = append(queue, item{dir: e.Path, depth: cur.depth + 1})
				}
			case EntryFile:
				if opts.MaxFiles > 0 && count >= opts.MaxFiles {
					return true, nil
				}
				count++
				visit(e)
			}
		}
	}
	return false, nil
}

type SearchHit struct {
	Path  string `json:"path"`
	Score int    `json:"score"`
}

// Search ranks file paths against a keyword. A file-name prefix match scores
// highest, a file-name substring lower, a directory substring lowest; deeper
// paths are penalized. Ties are broken by path.
func (r *Repository) Search(ctx context.Context, keyword string, limit int) ([]SearchHit, error) {
	tokens := Tokenize(keyword)
	if len(tokens) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "search keyword %q has no usable tokens", keyword)
	}
	if limit <= 0 {
		limit = 20
	}
	var hits []SearchHit
	_, err := r.Walk(ctx, WalkOptions{MaxDepth: r.limits.SearchDepth, MaxFiles: r.limits.SearchFiles}, func(e Entry) {
		if s := ScorePath(e.Path, tokens); s > 0 {
			hits = append(hits, SearchHit{Path: e.Path, Score: s})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
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

// ScorePath is the token-match heuristic used by Search. It returns 0 when no
// token matches.
func ScorePath(p string, tokens []string) int {
	lower := strings.ToLower(p)
	base := path.Base(lower)
	score, matched := 0, false
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(base, tok):
			score += 100
		case strings.Contains(base, tok):
			score += 60
		case strings.Contains(lower, tok):
			score += 30
		default:
			continue
		}
		matched = true
	}
	if !matched {
		return 0
	}
	score -= 5 * Depth(p)
	if score < 1 {
		score = 1
	}
	return score
}

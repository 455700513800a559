package repo

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"repotutor/internal/apperr"
)

var reWinDrive = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// Resolver turns user input (URL or local path) into a Repository.
type Resolver struct {
	api    *GitHubAPI
	limits Limits
	log    *zap.Logger

	branches *gocache.Cache
	group    singleflight.Group
	opened   *lru.Cache[string, *Repository]
	webHost  string
}

func NewResolver(gh GitHubConfig, limits Limits, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	gh = gh.withDefaults()
	opened, _ := lru.New[string, *Repository](256)
	host := "github.com"
	if u, err := url.Parse(gh.WebBase); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	return &Resolver{
		api:      NewGitHubAPI(gh),
		limits:   limits,
		log:      log,
		branches: gocache.New(10*time.Minute, 20*time.Minute),
		opened:   opened,
		webHost:  host,
	}
}

// Resolve classifies input as a local directory or hosted URL and returns an
// opened Repository. branch overrides the branch found in the URL or on disk.
func (r *Resolver) Resolve(ctx context.Context, input, branch string) (*Repository, error) {
	input = strings.TrimSpace(input)
	branch = strings.TrimSpace(branch)
	if input == "" {
		return nil, apperr.New(apperr.KindInvalidRepository, "repository url or path is required")
	}
	if LooksLocal(input) {
		return r.resolveLocal(input, branch)
	}
	return r.resolveHosted(ctx, input, branch)
}

// LooksLocal reports whether input is an absolute path, a file:// URL or a ~ path.
func LooksLocal(input string) bool {
	return strings.HasPrefix(input, "/") ||
		strings.HasPrefix(input, "file://") ||
		strings.HasPrefix(input, "~") ||
		reWinDrive.MatchString(input)
}

func (r *Resolver) resolveLocal(input, branch string) (*Repository, error) {
	p := strings.TrimPrefix(input, "file://")
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidRepository, err, "cannot expand %q", input)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	backend, err := NewLocalBackend(p)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, apperr.Wrap(apperr.KindInvalidRepository, err, "local directory %q does not exist", input)
	}
	if err != nil {
		return nil, err
	}
	root := backend.Root()
	if branch == "" {
		branch = localBranch(root)
	}
	info := Context{
		Repo:   filepath.Base(root),
		Branch: branch,
		Root:   root,
		Source: SourceLocal,
	}
	return r.open(info, backend), nil
}

func (r *Resolver) resolveHosted(ctx context.Context, input, branch string) (*Repository, error) {
	ref, err := ParseHostedURL(input, r.webHost)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = ref.Branch
	}
	htmlURL := r.api.cfg.WebBase + "/" + ref.Owner + "/" + ref.Repo
	if branch == "" {
		def, web, err := r.defaultBranch(ctx, ref.Owner, ref.Repo)
		if err != nil {
			return nil, err
		}
		branch, htmlURL = def, web
	}
	info := Context{
		Owner:   ref.Owner,
		Repo:    ref.Repo,
		Branch:  branch,
		HTMLURL: htmlURL,
		Source:  SourceHosted,
	}
	return r.Open(ctx, info)
}

type branchInfo struct {
	branch  string
	htmlURL string
}

// defaultBranch caches lookups per owner/repo and collapses concurrent ones.
func (r *Resolver) defaultBranch(ctx context.Context, owner, repo string) (string, string, error) {
	key := strings.ToLower(owner + "/" + repo)
	if v, ok := r.branches.Get(key); ok {
		bi := v.(branchInfo)
		return bi.branch, bi.htmlURL, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		b, web, err := r.api.DefaultBranch(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
		bi := branchInfo{branch: b, htmlURL: web}
		r.branches.SetDefault(key, bi)
		r.log.Debug("default branch resolved", zap.String("repo", key), zap.String("branch", b))
		return bi, nil
	})
	if err != nil {
		return "", "", err
	}
	bi := v.(branchInfo)
	return bi.branch, bi.htmlURL, nil
}

// Open rebuilds a Repository from a stored Context without touching the
// hosting API's metadata endpoint.
func (r *Resolver) Open(ctx context.Context, info Context) (*Repository, error) {
	if cached, ok := r.opened.Get(info.Key()); ok {
		return cached, nil
	}
	switch info.Source {
	case SourceLocal:
		backend, err := NewLocalBackend(info.Root)
		if err != nil {
			return nil, err
		}
		return r.open(info, backend), nil
	case SourceHosted:
		backend := NewGitHubBackend(r.api, info.Owner, info.Repo, info.Branch)
		var lines []string
		if raw, err := backend.ReadRaw(ctx, ".gitignore"); err == nil {
			lines = strings.Split(string(raw), "\n")
		}
		repo := New(info, backend, NewPolicy(lines), r.limits)
		r.opened.Add(info.Key(), repo)
		return repo, nil
	default:
		return nil, apperr.New(apperr.KindInvalidRepository, "unknown repository source %q", info.Source)
	}
}

func (r *Resolver) open(info Context, backend *LocalBackend) *Repository {
	var lines []string
	if raw, err := os.ReadFile(filepath.Join(backend.Root(), ".gitignore")); err == nil {
		lines = strings.Split(string(raw), "\n")
	}
	repo := New(info, backend, NewPolicy(lines), r.limits)
	r.opened.Add(info.Key(), repo)
	return repo
}

// HostedRef is a parsed hosted repository URL.
type HostedRef struct {
	Owner   string
	Repo    string
	Branch  string
	SubPath string
}

// ParseHostedURL accepts https://host/owner/repo[/tree/branch/path],
// host/owner/repo, git@host:owner/repo.git and bare owner/repo.
func ParseHostedURL(raw, webHost string) (HostedRef, error) {
	raw = strings.TrimSpace(raw)
	if webHost == "" {
		webHost = "github.com"
	}
	var p string
	switch {
	case strings.HasPrefix(raw, "git@"):
		rest := strings.TrimPrefix(raw, "git@")
		host, repoPath, ok := strings.Cut(rest, ":")
		if !ok || !strings.EqualFold(host, webHost) {
			return HostedRef{}, apperr.New(apperr.KindInvalidRepository, "unsupported repository url %q", raw)
		}
		p = repoPath
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return HostedRef{}, apperr.Wrap(apperr.KindInvalidRepository, err, "invalid repository url %q", raw)
		}
		if !strings.EqualFold(u.Host, webHost) && !strings.EqualFold(u.Host, "www."+webHost) {
			return HostedRef{}, apperr.New(apperr.KindInvalidRepository, "unsupported repository host %q", u.Host)
		}
		p = u.Path
	default:
		p = raw
		if host, rest, ok := strings.Cut(raw, "/"); ok && strings.EqualFold(host, webHost) {
			p = rest
		}
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return HostedRef{}, apperr.New(apperr.KindInvalidRepository, "cannot find owner/repo in %q", raw)
	}
	ref := HostedRef{Owner: parts[0], Repo: strings.TrimSuffix(parts[1], ".git")}
	if ref.Repo == "" || strings.HasPrefix(ref.Owner, ".") || strings.ContainsAny(ref.Owner+ref.Repo, " \t?#") {
		return HostedRef{}, apperr.New(apperr.KindInvalidRepository, "invalid owner/repo in %q", raw)
	}
	if len(parts) >= 4 && (parts[2] == "tree" || parts[2] == "blob") {
		ref.Branch = parts[3]
		ref.SubPath = strings.Join(parts[4:], "/")
	}
	return ref, nil
}

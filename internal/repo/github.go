package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"repotutor/internal/apperr"
)

type GitHubConfig struct {
	APIBase string
	WebBase string
	Token   string
	Timeout time.Duration
}

func (c GitHubConfig) withDefaults() GitHubConfig {
	if strings.TrimSpace(c.APIBase) == "" {
		c.APIBase = "https://api.github.com"
	}
	if strings.TrimSpace(c.WebBase) == "" {
		c.WebBase = "https://github.com"
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	c.WebBase = strings.TrimRight(c.WebBase, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// GitHubAPI is a small client for the three REST calls the core needs:
// repository metadata (default branch), directory listing and file contents.
type GitHubAPI struct {
	cfg  GitHubConfig
	http *http.Client
}

func NewGitHubAPI(cfg GitHubConfig) *GitHubAPI {
	cfg = cfg.withDefaults()
	return &GitHubAPI{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type ghRepo struct {
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

type ghContent struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

// DefaultBranch looks up the repository's default branch and web URL.
func (g *GitHubAPI) DefaultBranch(ctx context.Context, owner, repo string) (string, string, error) {
	var out ghRepo
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.cfg.APIBase, url.PathEscape(owner), url.PathEscape(repo)), &out); err != nil {
		return "", "", err
	}
	if out.DefaultBranch == "" {
		out.DefaultBranch = "main"
	}
	if out.HTMLURL == "" {
		out.HTMLURL = fmt.Sprintf("%s/%s/%s", g.cfg.WebBase, owner, repo)
	}
	return out.DefaultBranch, out.HTMLURL, nil
}

func (g *GitHubAPI) contentsURL(owner, repo, p, ref string) string {
	segs := []string{}
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, url.PathEscape(s))
		}
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.cfg.APIBase, url.PathEscape(owner), url.PathEscape(repo), strings.Join(segs, "/"))
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	return u
}

func (g *GitHubAPI) getJSON(ctx context.Context, u string, out any) error {
	body, err := g.get(ctx, u, "application/vnd.github+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "github: malformed response")
	}
	return nil
}

func (g *GitHubAPI) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if tok := strings.TrimSpace(g.cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "github: request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "github: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(resp.StatusCode, "github: %s", http.StatusText(resp.StatusCode))
	}
	return body, nil
}

// GitHubBackend serves one owner/repo@branch.
type GitHubBackend struct {
	api    *GitHubAPI
	owner  string
	repo   string
	branch string
}

func NewGitHubBackend(api *GitHubAPI, owner, repo, branch string) *GitHubBackend {
	return &GitHubBackend{api: api, owner: owner, repo: repo, branch: branch}
}

func (b *GitHubBackend) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	body, err := b.api.get(ctx, b.api.contentsURL(b.owner, b.repo, dir, b.branch), "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, apperr.New(apperr.KindInvalidArgument, "%q is not a directory", dir)
	}
	var items []ghContent
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "github: malformed listing")
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		var t EntryType
		switch it.Type {
		case "file":
			t = EntryFile
		case "dir":
			t = EntryDir
		default:
			continue
		}
		p := it.Path
		if p == "" {
			p = path.Join(dir, it.Name)
		}
		out = append(out, Entry{Name: it.Name, Path: p, Type: t, Size: it.Size})
	}
	return out, nil
}

func (b *GitHubBackend) ReadRaw(ctx context.Context, file string) ([]byte, error) {
	body, err := b.api.get(ctx, b.api.contentsURL(b.owner, b.repo, file, b.branch), "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		return nil, apperr.New(apperr.KindInvalidArgument, "%q is a directory", file)
	}
	var c ghContent
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "github: malformed content")
	}
	if c.Type != "" && c.Type != "file" {
		return nil, apperr.New(apperr.KindInvalidArgument, "%q is not a regular file", file)
	}
	if c.Encoding == "base64" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, err, "github: bad base64 content")
		}
		return raw, nil
	}
	// large files come back without inline content
	if c.DownloadURL != "" {
		return b.api.get(ctx, c.DownloadURL, "application/octet-stream")
	}
	return []byte(c.Content), nil
}

func (b *GitHubBackend) Permalink(file string, startLine, endLine int) string {
	return fmt.Sprintf("%s/%s/%s/blob/%s/%s%s", b.api.cfg.WebBase, b.owner, b.repo, b.branch, file, lineAnchor(startLine, endLine))
}

package repo

import (
	"path"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

var ignoredDirs = map[string]struct{}{
	".git":             {},
	".hg":              {},
	".svn":             {},
	"node_modules":     {},
	"bower_components": {},
	"vendor":           {},
	"dist":             {},
	"build":            {},
	"out":              {},
	"target":           {},
	"coverage":         {},
	".next":            {},
	".nuxt":            {},
	".turbo":           {},
	".cache":           {},
	".gradle":          {},
	".idea":            {},
	".vscode":          {},
	"__pycache__":      {},
	".venv":            {},
	"venv":             {},
	".tox":             {},
	".mypy_cache":      {},
	".pytest_cache":    {},
	".ruff_cache":      {},
}

var ignoredExts = map[string]struct{}{
	// images
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {}, ".bmp": {}, ".tiff": {}, ".svg": {},
	// video / audio
	".mp4": {}, ".m4v": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".avi": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".m4a": {},
	// archives, binaries, fonts
	".pdf": {}, ".zip": {}, ".jar": {}, ".war": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	".exe": {}, ".dll": {}, ".dylib": {}, ".so": {}, ".a": {}, ".o": {}, ".obj": {}, ".class": {}, ".pyc": {}, ".wasm": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	// generated
	".lock": {}, ".map": {},
}

var ignoredFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"go.sum":            {},
	"cargo.lock":        {},
	"poetry.lock":       {},
	"gemfile.lock":      {},
	"composer.lock":     {},
	".ds_store":         {},
}

// Policy decides which entries are hidden from listing, walking and search.
// The fixed rules apply to every backend; gitignore rules are layered on top
// when the repository carries a root .gitignore.
type Policy struct {
	git *ignore.GitIgnore
}

// NewPolicy builds a policy from the lines of a root .gitignore (may be empty).
func NewPolicy(gitignoreLines []string) *Policy {
	p := &Policy{}
	var lines []string
	for _, l := range gitignoreLines {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > 0 {
		p.git = ignore.CompileIgnoreLines(lines...)
	}
	return p
}

// IgnoreDir reports whether a directory (repo-relative path) is pruned.
func (p *Policy) IgnoreDir(rel string) bool {
	if _, ok := ignoredDirs[path.Base(rel)]; ok {
		return true
	}
	if p != nil && p.git != nil {
		return p.git.MatchesPath(rel + "/")
	}
	return false
}

// IgnoreFile reports whether a file (repo-relative path) is excluded.
func (p *Policy) IgnoreFile(rel string) bool {
	base := strings.ToLower(path.Base(rel))
	if _, ok := ignoredFiles[base]; ok {
		return true
	}
	if _, ok := ignoredExts[path.Ext(base)]; ok {
		return true
	}
	for _, compound := range []string{".min.js", ".min.css"} {
		if strings.HasSuffix(base, compound) {
			return true
		}
	}
	if p != nil && p.git != nil {
		return p.git.MatchesPath(rel)
	}
	return false
}

// Ignore dispatches on entry type.
func (p *Policy) Ignore(e Entry) bool {
	if e.Type == EntryDir {
		return p.IgnoreDir(e.Path)
	}
	return p.IgnoreFile(e.Path)
}

// Package manifest builds the flat file catalogue of a repository.
package manifest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repotutor/internal/repo"
)

type File struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash"`
	Indexable bool   `json:"indexable"`
}

type Manifest struct {
	RepoKey   string    `json:"repoKey"`
	Files     []File    `json:"files"`
	Truncated bool      `json:"truncated"`
	BuiltAt   time.Time `json:"builtAt"`
}

// IndexableCount counts files marked indexable.
func (m *Manifest) IndexableCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, f := range m.Files {
		if f.Indexable {
			n++
		}
	}
	return n
}

type Options struct {
	MaxDepth     int
	MaxFiles     int
	MaxFileBytes int64
}

func DefaultOptions() Options {
	return Options{MaxDepth: 6, MaxFiles: 1800, MaxFileBytes: 320 * 1024}
}

type Builder struct {
	opts Options
	log  *zap.Logger
}

func NewBuilder(opts Options, log *zap.Logger) *Builder {
	def := DefaultOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = def.MaxFileBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{opts: opts, log: log}
}

// Build walks the repository breadth-first. Hitting the file cap sets
// Truncated and is not an error.
func (b *Builder) Build(ctx context.Context, r *repo.Repository) (*Manifest, error) {
	m := &Manifest{RepoKey: r.Context().Key()}
	truncated, err := r.Walk(ctx, repo.WalkOptions{MaxDepth: b.opts.MaxDepth, MaxFiles: b.opts.MaxFiles}, func(e repo.Entry) {
		lang := repo.LanguageOf(e.Path)
		m.Files = append(m.Files, File{
			Path:      e.Path,
			Language:  lang,
			Size:      e.Size,
			Hash:      entryHash(e),
			Indexable: lang != "" && e.Size < b.opts.MaxFileBytes,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("build manifest for %s: %w", m.RepoKey, err)
	}
	m.Truncated = truncated
	m.BuiltAt = time.Now().UTC()
	b.log.Info("manifest built",
		zap.String("repo", m.RepoKey),
		zap.Int("files", len(m.Files)),
		zap.Int("indexable", m.IndexableCount()),
		zap.Bool("truncated", truncated))
	return m, nil
}

// entryHash fingerprints a listing entry without reading its content.
func entryHash(e repo.Entry) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d", e.Path, e.Size)))
	return hex.EncodeToString(sum[:])
}

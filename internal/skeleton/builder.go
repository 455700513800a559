package skeleton

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repotutor/internal/manifest"
	"repotutor/internal/repo"
)

type Options struct {
	// MaxFiles caps how many indexable files one run reads.
	MaxFiles int
	// PrefixLines is the window read from the top of each file.
	PrefixLines int
	// Workers bounds concurrent file reads.
	Workers int
}

func DefaultOptions() Options {
	return Options{MaxFiles: 240, PrefixLines: 1200, Workers: 8}
}

type Builder struct {
	opts Options
	log  *zap.Logger
}

func NewBuilder(opts Options, log *zap.Logger) *Builder {
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.PrefixLines <= 0 {
		opts.PrefixLines = def.PrefixLines
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{opts: opts, log: log}
}

type result struct {
	file File
	err  error
}

// Build indexes the manifest's indexable files in manifest order. Per-file
// read failures are recorded in Index.Failures and do not stop the run.
// Files without symbols are kept as path-only entries so path search still
// reaches configuration and data files.
func (b *Builder) Build(ctx context.Context, r *repo.Repository, m *manifest.Manifest) (*Index, error) {
	if m == nil {
		return nil, fmt.Errorf("build skeleton: manifest is nil")
	}
	var candidates []manifest.File
	for _, f := range m.Files {
		if !f.Indexable {
			continue
		}
		candidates = append(candidates, f)
		if len(candidates) >= b.opts.MaxFiles {
			break
		}
	}

	results := make([]result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, f := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.indexFile(gctx, r, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build skeleton for %s: %w", m.RepoKey, err)
	}

	ix := &Index{RepoKey: m.RepoKey}
	for i, res := range results {
		if res.err != nil {
			ix.Failures = append(ix.Failures, Failure{Path: candidates[i].Path, Error: res.err.Error()})
			b.log.Debug("skeleton extraction failed", zap.String("path", candidates[i].Path), zap.Error(res.err))
			continue
		}
		ix.Files = append(ix.Files, res.file)
	}
	ix.BuiltAt = time.Now().UTC()
	b.log.Info("skeleton built",
		zap.String("repo", m.RepoKey),
		zap.Int("files", len(ix.Files)),
		zap.Int("symbolFiles", ix.SymbolFileCount()),
		zap.Int("symbols", ix.SymbolCount()),
		zap.Int("failures", len(ix.Failures)))
	return ix, nil
}

func (b *Builder) indexFile(ctx context.Context, r *repo.Repository, f manifest.File) (res result) {
	defer func() {
		if p := recover(); p != nil {
			res = result{err: fmt.Errorf("extract %s: panic: %v", f.Path, p)}
		}
	}()
	snap, err := r.ReadFile(ctx, f.Path, repo.ReadOptions{StartLine: 1, EndLine: b.opts.PrefixLines, MaxChars: 1 << 20})
	if err != nil {
		return result{err: err}
	}
	lang := f.Language
	if lang == "" {
		lang = snap.Language
	}
	return result{file: File{
		Path:     f.Path,
		Language: lang,
		Symbols:  Extract(lang, repo.SplitLines(snap.Content)),
	}}
}

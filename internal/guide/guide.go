// Package guide turns a session's skeleton index into a browsable guide: a
// manifest of files bucketed into topical categories and one markdown
// document per file with embedded magic links.
package guide

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/explore"
	"repotutor/internal/skeleton"
)

type DocRef struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	Language    string `json:"language"`
	SymbolCount int    `json:"symbolCount"`
}

type Category struct {
	ID    CategoryID `json:"id"`
	Title string     `json:"title"`
	Docs  []DocRef   `json:"docs"`
}

type Manifest struct {
	SessionID   string     `json:"sessionId"`
	RepoKey     string     `json:"repoKey"`
	Categories  []Category `json:"categories"`
	DocCount    int        `json:"docCount"`
	GeneratedAt time.Time  `json:"generatedAt"`

	builtAt time.Time
	byID    map[string]DocRef
	cat     map[string]CategoryID
}

type Doc struct {
	ID       string     `json:"id"`
	Path     string     `json:"path"`
	Category CategoryID `json:"category"`
	Title    string     `json:"title"`
	Markdown string     `json:"markdown"`
	Commands []Command  `json:"commands"`
}

// DocID is "doc-" plus the first 12 hex digits of sha1(path).
func DocID(p string) string {
	sum := sha1.Sum([]byte(p))
	return "doc-" + hex.EncodeToString(sum[:])[:12]
}

// Generator builds and caches guides per session. Cached entries are
// dropped when the session's skeleton is rebuilt.
type Generator struct {
	ws        explore.Workspaces
	manifests *lru.Cache[string, *Manifest]
	docs      *lru.Cache[string, *Doc]
	log       *zap.Logger
}

func New(ws explore.Workspaces, cacheSize int, log *zap.Logger) *Generator {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	if log == nil {
		log = zap.NewNop()
	}
	manifests, _ := lru.New[string, *Manifest](cacheSize)
	docs, _ := lru.New[string, *Doc](cacheSize * 16)
	return &Generator{ws: ws, manifests: manifests, docs: docs, log: log}
}

// Manifest returns the session's guide manifest, building it on first use.
func (g *Generator) Manifest(ctx context.Context, sessionID string) (*Manifest, error) {
	w, err := g.ws.Workspace(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if m, ok := g.manifests.Get(sessionID); ok {
		if m.builtAt.Equal(w.Skeleton.BuiltAt) {
			return m, nil
		}
		g.Invalidate(sessionID)
	}
	m := buildManifest(sessionID, w.Skeleton)
	g.manifests.Add(sessionID, m)
	g.log.Debug("guide manifest built",
		zap.String("session", sessionID),
		zap.Int("docs", m.DocCount))
	return m, nil
}

func buildManifest(sessionID string, ix *skeleton.Index) *Manifest {
	m := &Manifest{
		SessionID:   sessionID,
		RepoKey:     ix.RepoKey,
		GeneratedAt: time.Now().UTC(),
		builtAt:     ix.BuiltAt,
		byID:        map[string]DocRef{},
		cat:         map[string]CategoryID{},
	}
	buckets := map[CategoryID][]DocRef{}
	for _, f := range ix.Files {
		ref := DocRef{
			ID:          DocID(f.Path),
			Path:        f.Path,
			Title:       f.Path,
			Language:    f.Language,
			SymbolCount: len(f.Symbols),
		}
		id := Categorize(f.Path)
		buckets[id] = append(buckets[id], ref)
		m.byID[ref.ID] = ref
		m.cat[ref.ID] = id
	}
	for _, id := range []CategoryID{CategoryEntry, CategoryService, CategoryData, CategoryView, CategoryHooks, CategoryCore} {
		refs := buckets[id]
		if len(refs) == 0 {
			continue
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
		m.Categories = append(m.Categories, Category{ID: id, Title: CategoryTitle(id), Docs: refs})
		m.DocCount += len(refs)
	}
	if m.Categories == nil {
		m.Categories = []Category{}
	}
	return m
}

// Doc returns one generated document.
func (g *Generator) Doc(ctx context.Context, sessionID, docID string) (*Doc, error) {
	m, err := g.Manifest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ref, ok := m.byID[docID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "guide doc %q not found", docID)
	}
	key := sessionID + "/" + docID
	if d, ok := g.docs.Get(key); ok {
		return d, nil
	}
	w, err := g.ws.Workspace(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	file, _ := w.Skeleton.File(ref.Path)
	d, err := renderDoc(ctx, w, file, m.cat[docID])
	if err != nil {
		return nil, fmt.Errorf("guide doc %s: %w", ref.Path, err)
	}
	g.docs.Add(key, d)
	return d, nil
}

// Invalidate drops a session's cached manifest and documents.
func (g *Generator) Invalidate(sessionID string) {
	g.manifests.Remove(sessionID)
	for _, k := range g.docs.Keys() {
		if strings.HasPrefix(k, sessionID+"/") {
			g.docs.Remove(k)
		}
	}
}

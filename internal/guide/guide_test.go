package guide

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"repotutor/internal/apperr"
	"repotutor/internal/memory"
	"repotutor/internal/session"
	"repotutor/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newGenerator(t *testing.T, ready bool) (*Generator, string) {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	write(t, root, "cmd/api/main.go", "package main\n\nfunc main() {}\n")
	write(t, root, "internal/user/service.go", "package user\n\ntype Service struct{}\n\nfunc (s *Service) Get() {}\n")
	write(t, root, "internal/models/user.go", "package models\n\ntype User struct{}\n")
	write(t, root, "web/components/Button.tsx", "export function Button() {\n  return null;\n}\n")
	write(t, root, "web/hooks/useAuth.ts", "export function useAuth() {\n  return 1;\n}\n")
	write(t, root, "pkg/mathx/sum.go", "package mathx\n\nfunc Sum(a, b int) int {\n\treturn a + b\n}\n")
	write(t, root, "settings.json", "{\"debug\": true}\n")

	svc := session.New(session.Deps{Memory: memory.New(nil, memory.Caps{})})
	t.Cleanup(svc.Close)
	sess, err := svc.CreateSession(ctx, root, "")
	require.NoError(t, err)
	if ready {
		_, _, err = svc.StartIndexing(ctx, sess.ID, false)
		require.NoError(t, err)
		st, err := svc.Wait(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, store.StateReady, st.State)
	}
	return New(svc, 4, nil), sess.ID
}

func TestCategorize(t *testing.T) {
	cases := map[string]CategoryID{
		"cmd/api/main.go":            CategoryEntry,
		"src/index.ts":               CategoryEntry,
		"src/router.ts":              CategoryEntry,
		"internal/user/service.go":   CategoryService,
		"src/api/client.ts":          CategoryService,
		"src/userController.ts":      CategoryService,
		"internal/models/user.go":    CategoryData,
		"src/db/migrate.sql":         CategoryData,
		"src/types.ts":               CategoryData,
		"web/components/Button.tsx":  CategoryView,
		"src/pages/Home.vue":         CategoryView,
		"web/hooks/useAuth.ts":       CategoryHooks,
		"src/useFetch.ts":            CategoryHooks,
		"pkg/mathx/sum.go":           CategoryCore,
		"user.go":                    CategoryCore,
		"src/username/validation.go": CategoryCore,
	}
	for p, want := range cases {
		assert.Equal(t, want, Categorize(p), p)
	}
	assert.Equal(t, "Core overview", CategoryTitle(CategoryCore))
	assert.Equal(t, "Hooks & composables", CategoryTitle(CategoryHooks))
}

func TestDocID(t *testing.T) {
	id := DocID("a.ts")
	assert.Regexp(t, regexp.MustCompile(`^doc-[0-9a-f]{12}$`), id)
	assert.Equal(t, id, DocID("a.ts"))
	assert.NotEqual(t, id, DocID("b.ts"))
}

func TestManifestGroupsFiles(t *testing.T) {
	g, sid := newGenerator(t, true)
	m, err := g.Manifest(context.Background(), sid)
	require.NoError(t, err)

	var order []CategoryID
	paths := map[CategoryID][]string{}
	for _, c := range m.Categories {
		order = append(order, c.ID)
		assert.NotEmpty(t, c.Title)
		for _, d := range c.Docs {
			paths[c.ID] = append(paths[c.ID], d.Path)
		}
	}
	assert.Equal(t, []CategoryID{CategoryEntry, CategoryService, CategoryData, CategoryView, CategoryHooks, CategoryCore}, order)
	assert.Equal(t, []string{"cmd/api/main.go"}, paths[CategoryEntry])
	assert.Equal(t, []string{"web/hooks/useAuth.ts"}, paths[CategoryHooks])
	assert.Contains(t, paths[CategoryCore], "pkg/mathx/sum.go")

	total := 0
	for _, c := range m.Categories {
		total += len(c.Docs)
	}
	assert.Equal(t, total, m.DocCount)
	assert.Equal(t, sid, m.SessionID)
}

func TestManifestIsCachedUntilSkeletonChanges(t *testing.T) {
	g, sid := newGenerator(t, true)
	ctx := context.Background()
	m1, err := g.Manifest(ctx, sid)
	require.NoError(t, err)
	m2, err := g.Manifest(ctx, sid)
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	id := DocID("pkg/mathx/sum.go")
	d1, err := g.Doc(ctx, sid, id)
	require.NoError(t, err)

	m1.builtAt = time.Time{}
	m3, err := g.Manifest(ctx, sid)
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)

	d2, err := g.Doc(ctx, sid, id)
	require.NoError(t, err)
	assert.NotSame(t, d1, d2)
	assert.Equal(t, d1.Markdown, d2.Markdown)
}

func TestDocSections(t *testing.T) {
	g, sid := newGenerator(t, true)
	d, err := g.Doc(context.Background(), sid, DocID("pkg/mathx/sum.go"))
	require.NoError(t, err)

	assert.Equal(t, CategoryCore, d.Category)
	assert.Equal(t, "pkg/mathx/sum.go (Sum)", d.Title)
	for _, h := range []string{"# pkg/mathx/sum.go", "## Intuition", "## Mental model", "## Source links", "## Interface and implementation"} {
		assert.Contains(t, d.Markdown, h)
	}
	assert.Contains(t, d.Markdown, "func Sum(a, b int) int")

	actions := map[string]int{}
	for _, c := range d.Commands {
		actions[c.Action]++
	}
	assert.Positive(t, actions[ActionOpen])
	assert.Positive(t, actions[ActionFocus])
	assert.Equal(t, 1, actions[ActionTree])
	assert.Contains(t, d.Commands, Command{Action: ActionTree, Path: "pkg/mathx"})
	assert.Contains(t, d.Commands, Command{Action: ActionFocus, File: "pkg/mathx/sum.go", Symbol: "Sum"})
}

func TestDocWithoutSymbols(t *testing.T) {
	g, sid := newGenerator(t, true)
	d, err := g.Doc(context.Background(), sid, DocID("settings.json"))
	require.NoError(t, err)
	assert.Equal(t, "settings.json", d.Title)
	assert.Contains(t, d.Markdown, "no declarations")
	for _, c := range d.Commands {
		assert.NotEqual(t, ActionFocus, c.Action)
	}
	assert.Contains(t, d.Commands, Command{Action: ActionTree, Path: ""})
}

func TestDocErrors(t *testing.T) {
	g, sid := newGenerator(t, true)
	_, err := g.Doc(context.Background(), sid, "doc-000000000000")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	g2, sid2 := newGenerator(t, false)
	_, err = g2.Manifest(context.Background(), sid2)
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))
}

func TestInvalidate(t *testing.T) {
	g, sid := newGenerator(t, true)
	ctx := context.Background()
	_, err := g.Doc(ctx, sid, DocID("pkg/mathx/sum.go"))
	require.NoError(t, err)
	require.Equal(t, 1, g.docs.Len())

	g.Invalidate(sid)
	assert.Equal(t, 0, g.docs.Len())
	assert.Equal(t, 0, g.manifests.Len())
}

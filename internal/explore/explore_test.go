package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"repotutor/internal/apperr"
	"repotutor/internal/memory"
	"repotutor/internal/session"
	"repotutor/internal/skeleton"
	"repotutor/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

type fixture struct {
	svc *session.Service
	ex  *Explorer
	sid string
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// bigGo has 400 lines with Target declared on line 100.
func bigGo() string {
	var b strings.Builder
	b.WriteString("package big\n")
	for i := 2; i < 100; i++ {
		fmt.Fprintf(&b, "var v%d = %d\n", i, i)
	}
	b.WriteString("func Target() int {\n")
	for i := 101; i <= 400; i++ {
		fmt.Fprintf(&b, "\t_ = %d\n", i)
	}
	return b.String()
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	write(t, root, "a.ts", "export function foo() {\n  return 1;\n}\n")
	write(t, root, "src/server.go", "package src\n\nfunc Serve() {}\n")
	write(t, root, "big/big.go", bigGo())
	write(t, root, "deep/one/two/three/four/helper.go", "package four\n\nfunc Helper() {}\n")

	mem := memory.New(nil, memory.Caps{})
	svc := session.New(session.Deps{Memory: mem})
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
	return &fixture{svc: svc, ex: New(svc, mem, Limits{}, nil, nil), sid: sess.ID}
}

func TestToolsRequireReadyIndex(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.ex.SearchSkeleton(ctx, f.sid, "foo", 0)
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))
	_, err = f.ex.ReadInterface(ctx, f.sid, "a.ts")
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))
	_, err = f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "a.ts"})
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))
}

func TestSearchSkeletonFindsSymbol(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	hits, err := f.ex.SearchSkeleton(ctx, f.sid, "foo", 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a.ts", hits[0].Path)
	assert.Positive(t, hits[0].Score)
	assert.Contains(t, hits[0].Symbols, "foo")

	again, err := f.ex.SearchSkeleton(ctx, f.sid, "foo", 0)
	require.NoError(t, err)
	assert.Equal(t, hits, again)

	facts, err := f.ex.Memory().KeyFacts(ctx, f.sid)
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	assert.Contains(t, facts[0], "a.ts")
}

func TestSearchSkeletonEmptyQueryAndLimit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	hits, err := f.ex.SearchSkeleton(ctx, f.sid, " ? ", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = f.ex.SearchSkeleton(ctx, f.sid, "go", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestScoreFile(t *testing.T) {
	h, ok := scoreFile("src/server.go", nil, []string{"server"})
	require.True(t, ok)
	assert.Equal(t, 120, h.Score)
	assert.Empty(t, h.Symbols)

	h, ok = scoreFile("a.ts", symbols("foo", "food", "xfoo"), []string{"foo"})
	require.True(t, ok)
	assert.Equal(t, 90, h.Score, "only the best symbol match counts")
	assert.Equal(t, []string{"foo", "food", "xfoo"}, h.Symbols)

	h, ok = scoreFile("a/b/c/d/e/target.go", nil, []string{"target"})
	require.True(t, ok)
	assert.Equal(t, 120-8*2, h.Score)

	_, ok = scoreFile("a.ts", symbols("bar"), []string{"foo"})
	assert.False(t, ok)
}

func symbols(names ...string) []skeleton.Symbol {
	out := make([]skeleton.Symbol, len(names))
	for i, n := range names {
		out[i] = skeleton.Symbol{Kind: skeleton.KindFunction, Name: n, Line: i + 1}
	}
	return out
}

func TestReadImplementationCentresOnSymbol(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	impl, err := f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "big/big.go", SymbolName: "Target"})
	require.NoError(t, err)
	assert.True(t, impl.SymbolFound)
	assert.Equal(t, 100, impl.SymbolLine)
	assert.Equal(t, 76, impl.StartLine)
	assert.Equal(t, 76+140-1, impl.EndLine)
	assert.Equal(t, 400, impl.TotalLines)
	assert.Contains(t, impl.Content, "func Target() int {")
	assert.Contains(t, impl.Permalink, "#L76-L215")

	wide, err := f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "big/big.go", SymbolName: "Target", WindowSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 76+260-1, wide.EndLine)

	top, err := f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "a.ts", SymbolName: "foo"})
	require.NoError(t, err)
	assert.Equal(t, 1, top.StartLine)
	assert.Equal(t, 3, top.EndLine, "window is clipped to the file")

	facts, err := f.ex.Memory().KeyFacts(ctx, f.sid)
	require.NoError(t, err)
	assert.Contains(t, facts, "Target is defined at big/big.go:100")
}

func TestReadImplementationFallsBackToRange(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	impl, err := f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "big/big.go", SymbolName: "Missing", StartLine: 10, EndLine: 12})
	require.NoError(t, err)
	assert.False(t, impl.SymbolFound)
	assert.Equal(t, 10, impl.StartLine)
	assert.Equal(t, 12, impl.EndLine)

	impl, err = f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "big/big.go"})
	require.NoError(t, err)
	assert.Equal(t, 1, impl.StartLine)
	assert.Equal(t, 140, impl.EndLine)

	_, err = f.ex.ReadImplementation(ctx, ImplementationRequest{SessionID: f.sid, Path: "../etc/passwd"})
	assert.True(t, apperr.IsKind(err, apperr.KindPathEscape))
}

func TestEvidenceIsDeduplicated(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.ex.ReadInterface(ctx, f.sid, "src/server.go")
		require.NoError(t, err)
	}
	ev, err := f.ex.Memory().Evidence(ctx, f.sid)
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Equal(t, memory.EvidenceInterface, ev[0].Kind)

	visited, err := f.ex.Memory().VisitedFiles(ctx, f.sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/server.go"}, visited)
}

func TestReadInterfaceOutline(t *testing.T) {
	f := newFixture(t, true)
	view, err := f.ex.ReadInterface(context.Background(), f.sid, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, "typescript", view.Language)
	assert.Equal(t, 3, view.TotalLines)
	assert.Contains(t, view.View, "1: export function foo() { … }")
	assert.NotContains(t, view.View, "return 1")
}

func TestRenderInterfaceGo(t *testing.T) {
	src := []string{
		"package demo",
		"",
		`import "fmt"`,
		"",
		"// Greeter says hi.",
		"type Greeter struct {",
		"\tName string",
		"}",
		"",
		"// Hello greets.",
		"func (g Greeter) Hello() string {",
		`	return fmt.Sprintf("hi %s", g.Name)`,
		"}",
	}
	out := RenderInterface("go", src)
	want := strings.Join([]string{
		"1: package demo",
		"… 1 line omitted",
		`3: import "fmt"`,
		"… 1 line omitted",
		"5: // Greeter says hi.",
		"6: type Greeter struct {",
		"7: \tName string",
		"8: }",
		"… 1 line omitted",
		"10: // Hello greets.",
		"11: func (g Greeter) Hello() string { … }",
		"… 2 lines omitted",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRenderInterfaceFallsBackToHead(t *testing.T) {
	lines := make([]string, 45)
	for i := range lines {
		lines[i] = fmt.Sprintf("plain text %d", i+1)
	}
	out := RenderInterface("markdown", lines)
	assert.True(t, strings.HasPrefix(out, "1: plain text 1\n"))
	assert.Contains(t, out, "40: plain text 40")
	assert.True(t, strings.HasSuffix(out, "… 5 lines omitted"))
}

func TestRegistryDispatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	reg := NewExplorerRegistry(f.ex)

	specs := reg.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, ToolReadImplementation, specs[0].Name)
	assert.Equal(t, ToolReadInterface, specs[1].Name)
	assert.Equal(t, ToolSearchSkeleton, specs[2].Name)

	raw, err := reg.Call(ctx, ToolSearchSkeleton, f.sid, json.RawMessage(`{"query":"serve"}`))
	require.NoError(t, err)
	var out struct {
		Hits []SkeletonHit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.Hits)
	assert.Equal(t, "src/server.go", out.Hits[0].Path)

	_, err = reg.Call(ctx, "rm", f.sid, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = reg.Call(ctx, ToolReadInterface, f.sid, json.RawMessage(`{"path":`))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}

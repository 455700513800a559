package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func exerciseCaps(t *testing.T, m *Memory, sid string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		require.NoError(t, m.RememberVisitedFile(ctx, sid, fmt.Sprintf("f%03d.go", i)))
		require.NoError(t, m.RememberKeyFact(ctx, sid, fmt.Sprintf("fact %d", i)))
		require.NoError(t, m.AppendToolTrace(ctx, sid, TraceEntry{Step: i, Tool: "searchSkeleton"}))
		_, err := m.AppendEvidence(ctx, sid, Evidence{Kind: EvidenceImplementation, Path: "a.go", StartLine: i + 1, EndLine: i + 2})
		require.NoError(t, err)
	}
	caps := m.Caps()
	visited, err := m.VisitedFiles(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, visited, caps.Visited)
	assert.Equal(t, "f199.go", visited[len(visited)-1])
	assert.Equal(t, fmt.Sprintf("f%03d.go", 200-caps.Visited), visited[0])

	facts, err := m.KeyFacts(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, facts, caps.Facts)

	trace, err := m.Trace(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, trace, caps.Trace)
	assert.Equal(t, 199, trace[len(trace)-1].Step)

	ev, err := m.Evidence(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, ev, caps.Evidence)
}

func TestListsNeverExceedCaps(t *testing.T) {
	exerciseCaps(t, New(NewLocal(), Caps{}), "s1")
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Caps{})
	require.NoError(t, m.RememberVisitedFile(ctx, "s", "src/App.ts"))
	require.NoError(t, m.RememberVisitedFile(ctx, "s", "SRC/app.ts"))
	require.NoError(t, m.RememberKeyFact(ctx, "s", "Router lives in app.ts"))
	require.NoError(t, m.RememberKeyFact(ctx, "s", "router lives in APP.ts"))
	require.NoError(t, m.RememberKeyFact(ctx, "s", "   "))

	visited, _ := m.VisitedFiles(ctx, "s")
	facts, _ := m.KeyFacts(ctx, "s")
	assert.Equal(t, []string{"src/App.ts"}, visited)
	assert.Len(t, facts, 1)

	card := Evidence{Kind: EvidenceInterface, Path: "a.go", StartLine: 1, EndLine: 40, Snippet: "x"}
	added, err := m.AppendEvidence(ctx, "s", card)
	require.NoError(t, err)
	assert.True(t, added)
	card.Snippet = "different text, same range"
	added, err = m.AppendEvidence(ctx, "s", card)
	require.NoError(t, err)
	assert.False(t, added)
	card.Kind = EvidenceImplementation
	added, err = m.AppendEvidence(ctx, "s", card)
	require.NoError(t, err)
	assert.True(t, added)

	ev, _ := m.Evidence(ctx, "s")
	assert.Len(t, ev, 2)
}

func TestBriefPickAndClear(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Caps{})
	brief, err := m.BuildMemoryBrief(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "(no memory yet)", brief)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.RememberKeyFact(ctx, "s", fmt.Sprintf("fact-%d", i)))
		require.NoError(t, m.RememberVisitedFile(ctx, "s", fmt.Sprintf("file-%d.go", i)))
		require.NoError(t, m.AppendToolTrace(ctx, "s", TraceEntry{Step: i + 1, Tool: "readInterface", At: time.Unix(int64(i), 0)}))
		_, err := m.AppendEvidence(ctx, "s", Evidence{Kind: EvidenceInterface, Path: fmt.Sprintf("file-%d.go", i), StartLine: 1, EndLine: 2})
		require.NoError(t, err)
	}
	brief, err = m.BuildMemoryBrief(ctx, "s")
	require.NoError(t, err)
	assert.NotContains(t, brief, "- fact-1\n")
	assert.Contains(t, brief, "- fact-2")
	assert.Contains(t, brief, "- fact-9")
	assert.Contains(t, brief, "Visited files:")
	assert.Equal(t, 16, strings.Count(brief, "\n- "))

	ev, err := m.PickEvidence(ctx, "s", 3)
	require.NoError(t, err)
	require.Len(t, ev, 3)
	assert.Equal(t, "file-9.go", ev[2].Path)

	tr, err := m.PickTrace(ctx, "s", 2)
	require.NoError(t, err)
	require.Len(t, tr, 2)
	assert.Equal(t, 10, tr[1].Step)

	require.NoError(t, m.Clear(ctx, "s"))
	brief, _ = m.BuildMemoryBrief(ctx, "s")
	assert.Equal(t, "(no memory yet)", brief)
	ev, _ = m.Evidence(ctx, "s")
	assert.Empty(t, ev)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Caps{})
	require.NoError(t, m.RememberKeyFact(ctx, "a", "only in a"))
	facts, err := m.KeyFacts(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REPOTUTOR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REPOTUTOR_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), addr, time.Minute)
	require.NoError(t, err)
	defer r.Close()
	sid := fmt.Sprintf("test-%d", time.Now().UnixNano())
	defer func() { _ = r.Clear(context.Background(), sid) }()
	exerciseCaps(t, New(r, Caps{}), sid)
}

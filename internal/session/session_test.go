package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"repotutor/internal/apperr"
	"repotutor/internal/manifest"
	"repotutor/internal/metrics"
	"repotutor/internal/store"
)

func TestMain(m *testing.M) {
	// the go-cache janitor behind the resolver's branch cache lives until GC
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func smallRepo(t *testing.T) string {
	root := t.TempDir()
	write(t, root, "a.ts", "export function foo() {\n  return 1;\n}\n")
	write(t, root, "src/server.go", "package src\n\nfunc Serve() {}\n")
	write(t, root, "config.yaml", "port: 1\n")
	return root
}

// recordingStatuses remembers every status written per session.
type recordingStatuses struct {
	*store.Memory
	mu   sync.Mutex
	seen map[string][]store.IndexStatus
}

func (r *recordingStatuses) PutStatus(ctx context.Context, st store.IndexStatus) error {
	r.mu.Lock()
	r.seen[st.SessionID] = append(r.seen[st.SessionID], st)
	r.mu.Unlock()
	return r.Memory.PutStatus(ctx, st)
}

func (r *recordingStatuses) history(id string) []store.IndexStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.IndexStatus(nil), r.seen[id]...)
}

// gatedManifests blocks manifest lookups until released.
type gatedManifests struct {
	store.ManifestStore
	gate chan struct{}
}

func (g *gatedManifests) Get(ctx context.Context, key string) (*manifest.Manifest, error) {
	<-g.gate
	return g.ManifestStore.Get(ctx, key)
}

func newService(t *testing.T, d Deps) *Service {
	t.Helper()
	s := New(d)
	t.Cleanup(s.Close)
	return s
}

func TestCreateSessionAndIndexToReady(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := &recordingStatuses{Memory: mem, seen: map[string][]store.IndexStatus{}}
	svc := newService(t, Deps{Sessions: mem, Statuses: rec})

	sess, err := svc.CreateSession(ctx, smallRepo(t), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, store.StateCreated, sess.State)
	assert.Contains(t, sess.RepoKey, "local:")

	st, err := svc.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateCreated, st.State)
	assert.Equal(t, 0, st.Progress)

	_, err = svc.Workspace(ctx, sess.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))

	accepted, st, err := svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, store.StateIndexing, st.State)
	assert.Equal(t, ProgressStarted, st.Progress)

	final, err := svc.Wait(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, final.State)
	assert.Equal(t, ProgressDone, final.Progress)
	assert.Equal(t, 3, final.Stats.TotalFiles)
	assert.Equal(t, 3, final.Stats.IndexableFiles)
	assert.Equal(t, 2, final.Stats.SkeletonFiles)
	assert.Equal(t, 2, final.Stats.SymbolCount)

	hist := rec.history(sess.ID)
	prev := -1
	for _, h := range hist {
		assert.GreaterOrEqual(t, h.Progress, prev)
		if h.Progress == ProgressDone {
			assert.Equal(t, store.StateReady, h.State)
		}
		prev = h.Progress
	}

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, got.State)
	assert.Equal(t, sess.RepoKey, got.RepoKey)

	ws, err := svc.Workspace(ctx, sess.ID)
	require.NoError(t, err)
	_, ok := ws.Skeleton.FindSymbol("a.ts", "foo")
	assert.True(t, ok)

	accepted, st, err = svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	assert.False(t, accepted, "READY needs force")
	assert.Equal(t, store.StateReady, st.State)
}

func TestStartIndexingTwiceStartsOneJob(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	gated := &gatedManifests{ManifestStore: store.NewLRU[*manifest.Manifest](4, "manifest"), gate: make(chan struct{})}
	svc := newService(t, Deps{Manifests: gated, Metrics: m})

	sess, err := svc.CreateSession(ctx, smallRepo(t), "")
	require.NoError(t, err)

	first, _, err := svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	second, st, err := svc.StartIndexing(ctx, sess.ID, true)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, store.StateIndexing, st.State)

	close(gated.gate)
	final, err := svc.Wait(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, final.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexJobs.WithLabelValues(string(store.StateReady))))
}

func TestTruncatedManifestStillReady(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for i := 0; i < 6; i++ {
		write(t, root, fmt.Sprintf("f%d.go", i), "package x\nfunc F() {}\n")
	}
	svc := newService(t, Deps{ManifestBuilder: manifest.NewBuilder(manifest.Options{MaxFiles: 3}, nil)})
	sess, err := svc.CreateSession(ctx, root, "")
	require.NoError(t, err)
	_, _, err = svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	st, err := svc.Wait(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	assert.True(t, st.Stats.Truncated)
	assert.Equal(t, 3, st.Stats.TotalFiles)
}

func TestFailedJobHaltsAndForceRecovers(t *testing.T) {
	ctx := context.Background()
	root := smallRepo(t)
	svc := newService(t, Deps{})
	sess, err := svc.CreateSession(ctx, root, "")
	require.NoError(t, err)

	hidden := root + ".moved"
	require.NoError(t, os.Rename(root, hidden))
	_, _, err = svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	st, err := svc.Wait(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateFailed, st.State)
	assert.Equal(t, ProgressStarted, st.Progress)
	assert.NotEmpty(t, st.Error)
	assert.NotContains(t, st.Error, "no such file")

	_, err = svc.Workspace(ctx, sess.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindIndexNotReady))

	accepted, _, err := svc.StartIndexing(ctx, sess.ID, false)
	require.NoError(t, err)
	assert.False(t, accepted, "FAILED is not retried without force")

	require.NoError(t, os.Rename(hidden, root))
	accepted, _, err = svc.StartIndexing(ctx, sess.ID, true)
	require.NoError(t, err)
	assert.True(t, accepted)
	st, err = svc.Wait(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	assert.Empty(t, st.Error)
}

func TestFailureMessageHidesInternals(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"typed":     {fmt.Errorf("build manifest: %w", apperr.New(apperr.KindUpstream, "github returned 502")), "github returned 502"},
		"raw":       {errors.New("open /srv/secret/repo: permission denied"), "indexing failed"},
		"cancelled": {fmt.Errorf("walk: %w", context.Canceled), "indexing cancelled"},
		"deadline":  {context.DeadlineExceeded, "indexing timed out"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, c.want, failureMessage(c.err))
		})
	}
}

func TestSessionsShareRepoCaches(t *testing.T) {
	ctx := context.Background()
	root := smallRepo(t)
	manifests := store.NewLRU[*manifest.Manifest](4, "manifest")
	svc := newService(t, Deps{Manifests: manifests})

	a, err := svc.CreateSession(ctx, root, "")
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx, root, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.RepoKey, b.RepoKey)

	for _, id := range []string{a.ID, b.ID} {
		_, _, err := svc.StartIndexing(ctx, id, false)
		require.NoError(t, err)
		st, err := svc.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StateReady, st.State)
	}
	assert.Equal(t, 1, manifests.Len())

	hits, err := svc.SearchFiles(ctx, b.ID, "server", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "src/server.go", hits[0].Path)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, Deps{})
	_, _, err := svc.StartIndexing(ctx, "nope", false)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = svc.GetStatus(ctx, "nope")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = svc.ListDirectory(ctx, "nope", "")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	svc := newService(t, Deps{})
	_, err := svc.CreateSession(context.Background(), "", "")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRepository))
	_, err = svc.CreateSession(context.Background(), "/no/such/dir/for/repotutor", "")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRepository))
}

func TestListAndReadFile(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, Deps{})
	sess, err := svc.CreateSession(ctx, smallRepo(t), "")
	require.NoError(t, err)

	entries, err := svc.ListDirectory(ctx, sess.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "src", entries[0].Path)

	snap, err := svc.ReadFile(ctx, sess.ID, "a.ts", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "  return 1;", snap.Content)

	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	st, err := svc.Wait(wctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateCreated, st.State)
}

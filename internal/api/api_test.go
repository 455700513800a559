package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repotutor/internal/agent"
	"repotutor/internal/apperr"
	"repotutor/internal/explore"
	"repotutor/internal/guide"
	"repotutor/internal/memory"
	"repotutor/internal/metrics"
	"repotutor/internal/session"
	"repotutor/internal/store"
)

type env struct {
	srv  *httptest.Server
	root string
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	write(t, root, "a.ts", "export function foo() {\n  return 1;\n}\n")
	write(t, root, "lib/bar.ts", "export function bar() {\n  return 2;\n}\n")

	m := metrics.New()
	mem := memory.New(nil, memory.Caps{})
	svc := session.New(session.Deps{Memory: mem, Metrics: m})
	t.Cleanup(svc.Close)
	ex := explore.New(svc, mem, explore.Limits{}, m, nil)
	h := NewHandler(svc, agent.New(ex, nil, agent.Limits{}, m, nil), guide.New(svc, 8, nil), explore.NewExplorerRegistry(ex), nil)
	h.StatusPoll = 10 * time.Millisecond

	srv := httptest.NewServer(NewMux(h, m.Handler()))
	t.Cleanup(srv.Close)
	return &env{srv: srv, root: root}
}

func call[Req, Res any](t *testing.T, e *env, method string, in *Req) (*Res, error) {
	t.Helper()
	c := connect.NewClient[Req, Res](e.srv.Client(), e.srv.URL+Procedure(method), connect.WithCodec(jsonCodec{}))
	res, err := c.CallUnary(context.Background(), connect.NewRequest(in))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (e *env) readySession(t *testing.T) string {
	t.Helper()
	created, err := call[CreateSessionRequest, CreateSessionResponse](t, e, "CreateSession", &CreateSessionRequest{RepoURL: e.root})
	require.NoError(t, err)
	require.Equal(t, store.StateCreated, created.State)
	require.True(t, strings.HasPrefix(created.RepoKey, "local:"))

	started, err := call[StartIndexingRequest, StartIndexingResponse](t, e, "StartIndexing", &StartIndexingRequest{SessionID: created.SessionID})
	require.NoError(t, err)
	require.True(t, started.Accepted)

	require.Eventually(t, func() bool {
		st, err := call[SessionRequest, store.IndexStatus](t, e, "GetStatus", &SessionRequest{SessionID: created.SessionID})
		return err == nil && st.State == store.StateReady
	}, 5*time.Second, 10*time.Millisecond)
	return created.SessionID
}

func TestSessionLifecycleOverRPC(t *testing.T) {
	e := newEnv(t)
	sid := e.readySession(t)

	st, err := call[SessionRequest, store.IndexStatus](t, e, "GetStatus", &SessionRequest{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, 2, st.Stats.SkeletonFiles)

	again, err := call[StartIndexingRequest, StartIndexingResponse](t, e, "StartIndexing", &StartIndexingRequest{SessionID: sid})
	require.NoError(t, err)
	assert.False(t, again.Accepted)

	ls, err := call[ListDirectoryRequest, ListDirectoryResponse](t, e, "ListDirectory", &ListDirectoryRequest{SessionID: sid})
	require.NoError(t, err)
	require.Len(t, ls.Entries, 2)
	assert.Equal(t, "lib", ls.Entries[0].Name)

	snap, err := call[ReadFileRequest, struct {
		Content   string `json:"content"`
		Permalink string `json:"permalink"`
	}](t, e, "ReadFile", &ReadFileRequest{SessionID: sid, Path: "lib/bar.ts", StartLine: 2, EndLine: 2})
	require.NoError(t, err)
	assert.Equal(t, "  return 2;", snap.Content)
	assert.Contains(t, snap.Permalink, "#L2")

	hits, err := call[SearchFilesRequest, SearchFilesResponse](t, e, "SearchFiles", &SearchFilesRequest{SessionID: sid, Keyword: "bar"})
	require.NoError(t, err)
	require.NotEmpty(t, hits.Hits)
	assert.Equal(t, "lib/bar.ts", hits.Hits[0].Path)
}

func TestAskAndGuideOverRPC(t *testing.T) {
	e := newEnv(t)
	sid := e.readySession(t)

	ans, err := call[AskRequest, agent.Answer](t, e, "Ask", &AskRequest{SessionID: sid, Question: "where is foo defined?"})
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Answer)
	assert.NotEmpty(t, ans.ToolTrace)

	m, err := call[SessionRequest, guide.Manifest](t, e, "GetGuideManifest", &SessionRequest{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, 2, m.DocCount)

	doc, err := call[GetGuideDocRequest, guide.Doc](t, e, "GetGuideDoc", &GetGuideDocRequest{SessionID: sid, DocID: guide.DocID("a.ts")})
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "## Intuition")
	assert.NotEmpty(t, doc.Commands)
}

func TestToolsOverRPC(t *testing.T) {
	e := newEnv(t)
	sid := e.readySession(t)

	specs, err := call[ListToolsRequest, ListToolsResponse](t, e, "ListTools", &ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, specs.Tools, 3)

	out, err := call[CallToolRequest, CallToolResponse](t, e, "CallTool", &CallToolRequest{
		SessionID: sid,
		Tool:      explore.ToolSearchSkeleton,
		Input:     json.RawMessage(`{"query":"foo"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, string(out.Output), `"a.ts"`)

	_, err = call[CallToolRequest, CallToolResponse](t, e, "CallTool", &CallToolRequest{SessionID: sid, Tool: "grep"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestErrorCodes(t *testing.T) {
	e := newEnv(t)

	_, err := call[CreateSessionRequest, CreateSessionResponse](t, e, "CreateSession", &CreateSessionRequest{RepoURL: filepath.Join(e.root, "missing")})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[SessionRequest, store.IndexStatus](t, e, "GetStatus", &SessionRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[SessionRequest, store.IndexStatus](t, e, "GetStatus", &SessionRequest{SessionID: "nope"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	created, err := call[CreateSessionRequest, CreateSessionResponse](t, e, "CreateSession", &CreateSessionRequest{RepoURL: e.root})
	require.NoError(t, err)
	_, err = call[AskRequest, agent.Answer](t, e, "Ask", &AskRequest{SessionID: created.SessionID, Question: "foo"})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[ReadFileRequest, struct{}](t, e, "ReadFile", &ReadFileRequest{SessionID: created.SessionID, Path: "../etc/passwd"})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	var ce *connect.Error
	require.True(t, errors.As(err, &ce))
	assert.NotContains(t, ce.Message(), e.root)
}

func TestToConnectMapping(t *testing.T) {
	err := toConnect(apperr.Upstream(403, "rate limited"))
	assert.Equal(t, connect.CodeUnavailable, err.Code())
	assert.Equal(t, "rate limited", err.Message())
	assert.Equal(t, "403", err.Meta().Get(UpstreamStatusHeader))

	err = toConnect(fmt.Errorf("wrapped: %w", errors.New("secret /srv/path")))
	assert.Equal(t, connect.CodeInternal, err.Code())
	assert.Equal(t, "internal error", err.Message())

	err = toConnect(context.DeadlineExceeded)
	assert.Equal(t, connect.CodeDeadlineExceeded, err.Code())
}

func TestRawJSONRequest(t *testing.T) {
	e := newEnv(t)
	resp, err := e.srv.Client().Post(e.srv.URL+Procedure("CreateSession"), "application/json",
		strings.NewReader(fmt.Sprintf(`{"repoUrl":%q}`, e.root)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"sessionId"`)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightAndHealth(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodOptions, e.srv.URL+Procedure("Ask"), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = e.srv.Client().Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "repotutor_")
}

func TestStatusWebsocket(t *testing.T) {
	e := newEnv(t)
	created, err := call[CreateSessionRequest, CreateSessionResponse](t, e, "CreateSession", &CreateSessionRequest{RepoURL: e.root})
	require.NoError(t, err)

	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/status?sessionId=" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev StatusEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "status", ev.Type)
	require.NotNil(t, ev.Status)
	assert.Equal(t, store.StateCreated, ev.Status.State)

	_, err = call[StartIndexingRequest, StartIndexingResponse](t, e, "StartIndexing", &StartIndexingRequest{SessionID: created.SessionID})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var final store.IndexState
	for {
		var next StatusEvent
		if err := conn.ReadJSON(&next); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
			break
		}
		require.Equal(t, "status", next.Type)
		final = next.Status.State
	}
	assert.Equal(t, store.StateReady, final)
}

func TestStatusWebsocketUnknownSession(t *testing.T) {
	e := newEnv(t)
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/status?sessionId=nope"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev StatusEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "not_found", ev.Code)

	resp, err := e.srv.Client().Get(e.srv.URL + "/ws/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

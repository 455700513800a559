// Package api exposes the core over HTTP: connect unary procedures with a
// JSON codec, a websocket status watch, and the metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"repotutor/internal/agent"
	"repotutor/internal/apperr"
	"repotutor/internal/explore"
	"repotutor/internal/guide"
	"repotutor/internal/repo"
	"repotutor/internal/store"
)

const ServiceName = "repotutor.v1.TutorService"

// Procedure returns the HTTP path of a method.
func Procedure(method string) string { return "/" + ServiceName + "/" + method }

type Sessions interface {
	CreateSession(ctx context.Context, repoURL, branch string) (store.Session, error)
	StartIndexing(ctx context.Context, sessionID string, force bool) (bool, store.IndexStatus, error)
	GetStatus(ctx context.Context, sessionID string) (store.IndexStatus, error)
	ListDirectory(ctx context.Context, sessionID, dir string) ([]repo.Entry, error)
	ReadFile(ctx context.Context, sessionID, file string, startLine, endLine int) (repo.FileSnapshot, error)
	SearchFiles(ctx context.Context, sessionID, keyword string, limit int) ([]repo.SearchHit, error)
}

type Asker interface {
	Ask(ctx context.Context, sessionID, question string, maxSteps int) (agent.Answer, error)
}

type Guides interface {
	Manifest(ctx context.Context, sessionID string) (*guide.Manifest, error)
	Doc(ctx context.Context, sessionID, docID string) (*guide.Doc, error)
}

type Tools interface {
	Specs() []explore.ToolSpec
	Call(ctx context.Context, name, sessionID string, input json.RawMessage) (json.RawMessage, error)
}

type Handler struct {
	sessions Sessions
	agent    Asker
	guides   Guides
	tools    Tools
	log      *zap.Logger

	// StatusPoll is how often the websocket watch re-reads a status.
	StatusPoll time.Duration
}

func NewHandler(sessions Sessions, asker Asker, guides Guides, tools Tools, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, agent: asker, guides: guides, tools: tools, log: log, StatusPoll: 500 * time.Millisecond}
}

// Register mounts every procedure on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	unary(h, mux, "CreateSession", h.createSession)
	unary(h, mux, "StartIndexing", h.startIndexing)
	unary(h, mux, "GetStatus", h.getStatus)
	unary(h, mux, "Ask", h.ask)
	unary(h, mux, "ListDirectory", h.listDirectory)
	unary(h, mux, "ReadFile", h.readFile)
	unary(h, mux, "SearchFiles", h.searchFiles)
	unary(h, mux, "GetGuideManifest", h.getGuideManifest)
	unary(h, mux, "GetGuideDoc", h.getGuideDoc)
	unary(h, mux, "ListTools", h.listTools)
	unary(h, mux, "CallTool", h.callTool)
	mux.HandleFunc("/ws/status", h.HandleStatusWS)
}

func unary[Req, Res any](h *Handler, mux *http.ServeMux, method string, fn func(context.Context, *Req) (*Res, error)) {
	path := Procedure(method)
	mux.Handle(path, connect.NewUnaryHandler(path,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			start := time.Now()
			res, err := fn(ctx, req.Msg)
			if err != nil {
				h.logFailure(method, err, time.Since(start))
				return nil, toConnect(err)
			}
			h.log.Debug("rpc", zap.String("method", method), zap.Duration("took", time.Since(start)))
			return connect.NewResponse(res), nil
		},
		connect.WithCodec(jsonCodec{}),
	))
}

func (h *Handler) logFailure(method string, err error, took time.Duration) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Duration("took", took),
		zap.Error(err),
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("rpc failed", fields...)
		return
	}
	h.log.Info("rpc rejected", fields...)
}

func requireSession(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperr.New(apperr.KindInvalidArgument, "sessionId is required")
	}
	return id, nil
}

func (h *Handler) createSession(ctx context.Context, in *CreateSessionRequest) (*CreateSessionResponse, error) {
	s, err := h.sessions.CreateSession(ctx, in.RepoURL, in.Branch)
	if err != nil {
		return nil, err
	}
	return &CreateSessionResponse{SessionID: s.ID, RepoKey: s.RepoKey, State: s.State, Branch: s.Repo.Branch}, nil
}

func (h *Handler) startIndexing(ctx context.Context, in *StartIndexingRequest) (*StartIndexingResponse, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	accepted, st, err := h.sessions.StartIndexing(ctx, id, in.Force)
	if err != nil {
		return nil, err
	}
	return &StartIndexingResponse{Accepted: accepted, Status: st}, nil
}

func (h *Handler) getStatus(ctx context.Context, in *SessionRequest) (*store.IndexStatus, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	st, err := h.sessions.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (h *Handler) ask(ctx context.Context, in *AskRequest) (*agent.Answer, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	ans, err := h.agent.Ask(ctx, id, in.Question, in.MaxSteps)
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

func (h *Handler) listDirectory(ctx context.Context, in *ListDirectoryRequest) (*ListDirectoryResponse, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	entries, err := h.sessions.ListDirectory(ctx, id, in.Path)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []repo.Entry{}
	}
	return &ListDirectoryResponse{Entries: entries}, nil
}

func (h *Handler) readFile(ctx context.Context, in *ReadFileRequest) (*repo.FileSnapshot, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	snap, err := h.sessions.ReadFile(ctx, id, in.Path, in.StartLine, in.EndLine)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (h *Handler) searchFiles(ctx context.Context, in *SearchFilesRequest) (*SearchFilesResponse, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	hits, err := h.sessions.SearchFiles(ctx, id, in.Keyword, in.Limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []repo.SearchHit{}
	}
	return &SearchFilesResponse{Hits: hits}, nil
}

func (h *Handler) getGuideManifest(ctx context.Context, in *SessionRequest) (*guide.Manifest, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	return h.guides.Manifest(ctx, id)
}

func (h *Handler) getGuideDoc(ctx context.Context, in *GetGuideDocRequest) (*guide.Doc, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.DocID) == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "docId is required")
	}
	return h.guides.Doc(ctx, id, in.DocID)
}

func (h *Handler) listTools(_ context.Context, _ *ListToolsRequest) (*ListToolsResponse, error) {
	return &ListToolsResponse{Tools: h.tools.Specs()}, nil
}

func (h *Handler) callTool(ctx context.Context, in *CallToolRequest) (*CallToolResponse, error) {
	id, err := requireSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	out, err := h.tools.Call(ctx, in.Tool, id, in.Input)
	if err != nil {
		return nil, err
	}
	return &CallToolResponse{Output: out}, nil
}

package api

import (
	"encoding/json"

	"repotutor/internal/explore"
	"repotutor/internal/repo"
	"repotutor/internal/store"
)

type CreateSessionRequest struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string           `json:"sessionId"`
	RepoKey   string           `json:"repoKey"`
	State     store.IndexState `json:"state"`
	Branch    string           `json:"branch"`
}

type StartIndexingRequest struct {
	SessionID string `json:"sessionId"`
	Force     bool   `json:"force,omitempty"`
}

type StartIndexingResponse struct {
	Accepted bool              `json:"accepted"`
	Status   store.IndexStatus `json:"status"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type AskRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	MaxSteps  int    `json:"maxSteps,omitempty"`
}

type ListDirectoryRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path,omitempty"`
}

type ListDirectoryResponse struct {
	Entries []repo.Entry `json:"entries"`
}

type ReadFileRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

type SearchFilesRequest struct {
	SessionID string `json:"sessionId"`
	Keyword   string `json:"keyword"`
	Limit     int    `json:"limit,omitempty"`
}

type SearchFilesResponse struct {
	Hits []repo.SearchHit `json:"hits"`
}

type GetGuideDocRequest struct {
	SessionID string `json:"sessionId"`
	DocID     string `json:"docId"`
}

type ListToolsRequest struct{}

type ListToolsResponse struct {
	Tools []explore.ToolSpec `json:"tools"`
}

type CallToolRequest struct {
	SessionID string          `json:"sessionId"`
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type CallToolResponse struct {
	Output json.RawMessage `json:"output"`
}

// StatusEvent is pushed over the status websocket.
type StatusEvent struct {
	Type    string             `json:"type"`
	Status  *store.IndexStatus `json:"status,omitempty"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}

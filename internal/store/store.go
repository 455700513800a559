// Package store holds the persistence contracts for sessions, index statuses
// and the repoKey-keyed manifest and skeleton caches, plus their in-memory,
// postgres and object-storage implementations.
package store

import (
	"context"
	"time"

	"repotutor/internal/apperr"
	"repotutor/internal/manifest"
	"repotutor/internal/repo"
	"repotutor/internal/skeleton"
)

type IndexState string

const (
	StateCreated  IndexState = "CREATED"
	StateIndexing IndexState = "INDEXING"
	StateReady    IndexState = "READY"
	StateFailed   IndexState = "FAILED"
)

// Terminal reports whether no job is expected to move the state further.
func (s IndexState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

type Session struct {
	ID        string       `json:"sessionId"`
	RepoKey   string       `json:"repoKey"`
	Repo      repo.Context `json:"repo"`
	State     IndexState   `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type Stats struct {
	TotalFiles     int  `json:"totalFiles"`
	IndexableFiles int  `json:"indexableFiles"`
	SkeletonFiles  int  `json:"skeletonFiles"`
	SymbolCount    int  `json:"symbolCount"`
	Truncated      bool `json:"truncated"`
}

type IndexStatus struct {
	SessionID string     `json:"sessionId"`
	RepoKey   string     `json:"repoKey"`
	State     IndexState `json:"state"`
	Progress  int        `json:"progress"`
	Stats     Stats      `json:"stats"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type SessionStore interface {
	GetSession(ctx context.Context, id string) (Session, error)
	PutSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, id string) error
}

type StatusStore interface {
	GetStatus(ctx context.Context, sessionID string) (IndexStatus, error)
	PutStatus(ctx context.Context, st IndexStatus) error
	DeleteStatus(ctx context.Context, sessionID string) error
}

// KV is a keyed value store. Get returns a NotFound apperr on a miss.
type KV[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Put(ctx context.Context, key string, v V) error
	Delete(ctx context.Context, key string) error
}

// ManifestStore and SkeletonStore are keyed by repoKey so sessions on the
// same repository share completed work.
type (
	ManifestStore = KV[*manifest.Manifest]
	SkeletonStore = KV[*skeleton.Index]
)

func sessionNotFound(id string) error {
	return apperr.New(apperr.KindNotFound, "session %q not found", id)
}

func statusNotFound(id string) error {
	return apperr.New(apperr.KindNotFound, "no index status for session %q", id)
}

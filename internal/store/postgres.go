package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"repotutor/internal/apperr"
)

const (
	sessionsTable = "repotutor_sessions"
	statusesTable = "repotutor_index_statuses"
)

var (
	sessionColumns = []string{"id", "repo_key", "repo_context", "state", "error", "created_at", "updated_at"}
	statusColumns  = []string{
		"session_id", "repo_key", "state", "progress",
		"total_files", "indexable_files", "skeleton_files", "symbol_count", "truncated",
		"error", "updated_at",
	}
)

// Postgres stores sessions and index statuses in two tables. Queries are
// built with the ent SQL builder and run over the pgx stdlib driver.
type Postgres struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		_, p.schemaErr = p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+sessionsTable+` (
  id TEXT PRIMARY KEY,
  repo_key TEXT NOT NULL,
  repo_context JSONB NOT NULL,
  state TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repotutor_sessions_repo_key ON `+sessionsTable+` (repo_key);

CREATE TABLE IF NOT EXISTS `+statusesTable+` (
  session_id TEXT PRIMARY KEY,
  repo_key TEXT NOT NULL,
  state TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  total_files INTEGER NOT NULL DEFAULT 0,
  indexable_files INTEGER NOT NULL DEFAULT 0,
  skeleton_files INTEGER NOT NULL DEFAULT 0,
  symbol_count INTEGER NOT NULL DEFAULT 0,
  truncated BOOLEAN NOT NULL DEFAULT FALSE,
  error TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`)
		if p.schemaErr != nil {
			p.schemaErr = fmt.Errorf("create schema: %w", p.schemaErr)
		}
	})
	return p.schemaErr
}

func pg() *entsql.DialectBuilder { return entsql.Dialect(dialect.Postgres) }

func upsertSessionQuery(s Session) (string, []any, error) {
	rc, err := json.Marshal(s.Repo)
	if err != nil {
		return "", nil, fmt.Errorf("encode repo context: %w", err)
	}
	q, args := pg().Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(s.ID, s.RepoKey, string(rc), string(s.State), s.Error, s.CreatedAt, s.UpdatedAt).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	return q, args, nil
}

func selectSessionQuery(id string) (string, []any) {
	return pg().Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()
}

func upsertStatusQuery(st IndexStatus) (string, []any) {
	return pg().Insert(statusesTable).
		Columns(statusColumns...).
		Values(st.SessionID, st.RepoKey, string(st.State), st.Progress,
			st.Stats.TotalFiles, st.Stats.IndexableFiles, st.Stats.SkeletonFiles, st.Stats.SymbolCount, st.Stats.Truncated,
			st.Error, st.UpdatedAt).
		OnConflict(entsql.ConflictColumns("session_id"), entsql.ResolveWithNewValues()).
		Query()
}

func selectStatusQuery(sessionID string) (string, []any) {
	return pg().Select(statusColumns...).
		From(entsql.Table(statusesTable)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()
}

func deleteQuery(table, column, value string) (string, []any) {
	return pg().Delete(table).Where(entsql.EQ(column, value)).Query()
}

func (p *Postgres) GetSession(ctx context.Context, id string) (Session, error) {
	q, args := selectSessionQuery(strings.TrimSpace(id))
	var (
		s     Session
		rc    []byte
		state string
	)
	err := p.db.QueryRowContext(ctx, q, args...).Scan(&s.ID, &s.RepoKey, &rc, &state, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, sessionNotFound(id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	if err := json.Unmarshal(rc, &s.Repo); err != nil {
		return Session{}, fmt.Errorf("decode repo context of %s: %w", id, err)
	}
	s.State = IndexState(state)
	return s, nil
}

func (p *Postgres) PutSession(ctx context.Context, s Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return apperr.New(apperr.KindInvalidArgument, "session id is required")
	}
	q, args, err := upsertSessionQuery(s)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("put session %s: %w", s.ID, err)
	}
	return nil
}

func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	q, args := deleteQuery(sessionsTable, "id", strings.TrimSpace(id))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) GetStatus(ctx context.Context, sessionID string) (IndexStatus, error) {
	q, args := selectStatusQuery(strings.TrimSpace(sessionID))
	var (
		st    IndexStatus
		state string
	)
	err := p.db.QueryRowContext(ctx, q, args...).Scan(
		&st.SessionID, &st.RepoKey, &state, &st.Progress,
		&st.Stats.TotalFiles, &st.Stats.IndexableFiles, &st.Stats.SkeletonFiles, &st.Stats.SymbolCount, &st.Stats.Truncated,
		&st.Error, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexStatus{}, statusNotFound(sessionID)
	}
	if err != nil {
		return IndexStatus{}, fmt.Errorf("get status %s: %w", sessionID, err)
	}
	st.State = IndexState(state)
	return st, nil
}

func (p *Postgres) PutStatus(ctx context.Context, st IndexStatus) error {
	if strings.TrimSpace(st.SessionID) == "" {
		return apperr.New(apperr.KindInvalidArgument, "session id is required")
	}
	q, args := upsertStatusQuery(st)
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("put status %s: %w", st.SessionID, err)
	}
	return nil
}

func (p *Postgres) DeleteStatus(ctx context.Context, sessionID string) error {
	q, args := deleteQuery(statusesTable, "session_id", strings.TrimSpace(sessionID))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete status %s: %w", sessionID, err)
	}
	return nil
}

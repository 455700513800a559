package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend stores ordered string lists per session. Push appends a value and
// trims the list to its newest max entries.
type Backend interface {
	Range(ctx context.Context, sessionID string, list List) ([]string, error)
	Push(ctx context.Context, sessionID string, list List, value string, max int) error
	Clear(ctx context.Context, sessionID string) error
}

type List string

const (
	ListVisited  List = "visited"
	ListFacts    List = "facts"
	ListTrace    List = "trace"
	ListEvidence List = "evidence"
)

var allLists = []List{ListVisited, ListFacts, ListTrace, ListEvidence}

// Local keeps lists in process memory. A session's lists are created on the
// first push.
type Local struct {
	mu    sync.Mutex
	lists map[string]map[List][]string
}

func NewLocal() *Local {
	return &Local{lists: make(map[string]map[List][]string)}
}

func (l *Local) Range(_ context.Context, sessionID string, list List) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lists[sessionID][list]...), nil
}

func (l *Local) Push(_ context.Context, sessionID string, list List, value string, max int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.lists[sessionID]
	if !ok {
		s = make(map[List][]string, len(allLists))
		l.lists[sessionID] = s
	}
	items := append(s[list], value)
	if max > 0 && len(items) > max {
		items = append([]string(nil), items[len(items)-max:]...)
	}
	s[list] = items
	return nil
}

func (l *Local) Clear(_ context.Context, sessionID string) error {
	l.mu.Lock()
	delete(l.lists, sessionID)
	l.mu.Unlock()
	return nil
}

// Redis keeps each list under its own key. Push is RPUSH followed by LTRIM
// in one pipeline.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to addr (host:port or a redis:// URL). Keys expire ttl
// after the last write; zero keeps them forever.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &Redis{client: client, prefix: "repotutor:memory", ttl: ttl}, nil
}

func (r *Redis) key(sessionID string, list List) string {
	return r.prefix + ":" + sessionID + ":" + string(list)
}

func (r *Redis) Range(ctx context.Context, sessionID string, list List) ([]string, error) {
	vals, err := r.client.LRange(ctx, r.key(sessionID, list), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s of session %s: %w", list, sessionID, err)
	}
	return vals, nil
}

func (r *Redis) Push(ctx context.Context, sessionID string, list List, value string, max int) error {
	key := r.key(sessionID, list)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if max > 0 {
		pipe.LTrim(ctx, key, int64(-max), -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %s of session %s: %w", list, sessionID, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, sessionID string) error {
	keys := make([]string, 0, len(allLists))
	for _, l := range allLists {
		keys = append(keys, r.key(sessionID, l))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear memory of session %s: %w", sessionID, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

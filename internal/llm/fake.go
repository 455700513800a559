package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrNoScriptedReply = errors.New("llm: fake has no scripted reply left")

// Reply is one scripted answer. Err takes precedence over Body.
type Reply struct {
	Body string
	Err  error
}

// Fake replays scripted replies in order, separately for structured and
// text calls, and records every request. An exhausted script fails with
// ErrNoScriptedReply, so a zero Fake behaves like a broken provider.
type Fake struct {
	mu         sync.Mutex
	structured []Reply
	text       []Reply
	calls      []Request
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Name() string { return "fake" }
func (f *Fake) Close() error { return nil }

// Structured queues replies for GenerateStructured.
func (f *Fake) Structured(replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structured = append(f.structured, replies...)
	return f
}

// Text queues replies for GenerateText.
func (f *Fake) Text(replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, replies...)
	return f
}

func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *Fake) next(queue *[]Reply, req Request) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(*queue) == 0 {
		return Reply{Err: ErrNoScriptedReply}
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	return r
}

func (f *Fake) GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := f.next(&f.structured, req)
	if r.Err != nil {
		return nil, r.Err
	}
	if !json.Valid([]byte(r.Body)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(r.Body), nil
}

func (f *Fake) GenerateText(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := f.next(&f.text, req)
	if r.Err != nil {
		return "", r.Err
	}
	return r.Body, nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware decorates a Client with a cross-cutting concern.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order:
// Wrap(inner, A, B) => A(B(inner)).
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// call runs one request kind through a decorator without duplicating the
// decorator for both methods.
type call func(ctx context.Context) (json.RawMessage, string, error)

type decorated struct {
	next   Client
	around func(ctx context.Context, kind string, req Request, do call) (json.RawMessage, string, error)
}

func (d *decorated) Name() string { return d.next.Name() }
func (d *decorated) Close() error { return d.next.Close() }

func (d *decorated) GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	raw, _, err := d.around(ctx, "structured", req, func(ctx context.Context) (json.RawMessage, string, error) {
		raw, err := d.next.GenerateStructured(ctx, req)
		return raw, "", err
	})
	return raw, err
}

func (d *decorated) GenerateText(ctx context.Context, req Request) (string, error) {
	_, txt, err := d.around(ctx, "text", req, func(ctx context.Context) (json.RawMessage, string, error) {
		txt, err := d.next.GenerateText(ctx, req)
		return nil, txt, err
	})
	return txt, err
}

// WithLogging logs request sizes, latency and errors.
func WithLogging(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Client) Client {
		return &decorated{next: next, around: func(ctx context.Context, kind string, req Request, do call) (json.RawMessage, string, error) {
			start := time.Now()
			raw, txt, err := do(ctx)
			fields := []zap.Field{
				zap.String("client", next.Name()),
				zap.String("phase", PhaseFrom(ctx)),
				zap.String("kind", kind),
				zap.Int("request_bytes", len(req.System)+len(req.User)),
				zap.Duration("took", time.Since(start)),
			}
			if err != nil {
				log.Warn("llm request failed", append(fields, zap.Error(err))...)
				return raw, txt, err
			}
			log.Debug("llm request", append(fields, zap.Int("response_bytes", len(raw)+len(txt)))...)
			return raw, txt, nil
		}}
	}
}

// Retry retries up to maxAttempts with exponential backoff from baseDelay.
// Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &decorated{next: next, around: func(ctx context.Context, _ string, _ Request, do call) (json.RawMessage, string, error) {
			var last error
			for i := 0; i < maxAttempts; i++ {
				raw, txt, err := do(ctx)
				if err == nil {
					return raw, txt, nil
				}
				var pErr *PermanentError
				if errors.As(err, &pErr) {
					return nil, "", err
				}
				last = err
				if i == maxAttempts-1 {
					break
				}
				select {
				case <-ctx.Done():
					return nil, "", ctx.Err()
				case <-time.After(baseDelay * time.Duration(1<<i)):
				}
			}
			return nil, "", last
		}}
	}
}

// RateLimit throttles requests to rps with the given burst. rps <= 0
// disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return func(next Client) Client {
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		return &decorated{next: next, around: func(ctx context.Context, _ string, _ Request, do call) (json.RawMessage, string, error) {
			if err := lim.Wait(ctx); err != nil {
				return nil, "", err
			}
			return do(ctx)
		}}
	}
}

// WithTimeout bounds every call. d <= 0 disables it.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return nil
	}
	return func(next Client) Client {
		return &decorated{next: next, around: func(ctx context.Context, _ string, _ Request, do call) (json.RawMessage, string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return do(ctx)
		}}
	}
}

package keypool

import (
	"context"
	"errors"
	"sync"

	"agentcore/internal/llm"
)

// Rotating wraps a Pool and a constructor into an llm.Provider that retries
// once against the next non-cooling-down key when the underlying client
// reports a rate limit, matching the spec §7 ProviderRateLimited recovery
// policy ("rotate key, retry once; then next provider in fabric" — the
// "next provider" half of that policy is the Fabric's own failover, which
// Rotating composes under by returning the error to the Fabric on a second
// failure).
type Rotating struct {
	id    string
	pool  *Pool
	build func(apiKey string) llm.Provider

	mu         sync.Mutex
	currentKey string
	current    llm.Provider
}

// NewRotating constructs a Rotating provider. build must return a fresh
// client bound to apiKey; it is called once up front and again on each
// key rotation.
func NewRotating(id string, pool *Pool, build func(apiKey string) llm.Provider) (*Rotating, error) {
	key, ok := pool.Next(context.Background())
	if !ok {
		return nil, errors.New("keypool: no keys available")
	}
	return &Rotating{id: id, pool: pool, build: build, currentKey: key, current: build(key)}, nil
}

func (r *Rotating) ID() string { return r.id }

func (r *Rotating) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Models()
}

func (r *Rotating) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p := r.snapshot()
	resp, err := p.Chat(ctx, req)
	if !r.isRateLimited(err) {
		return resp, err
	}
	next, ok := r.rotate(ctx)
	if !ok {
		return resp, err
	}
	return next.Chat(ctx, req)
}

func (r *Rotating) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	p := r.snapshot()
	resp, err := p.ChatStream(ctx, req, h)
	if !r.isRateLimited(err) {
		return resp, err
	}
	next, ok := r.rotate(ctx)
	if !ok {
		return resp, err
	}
	return next.ChatStream(ctx, req, h)
}

func (r *Rotating) isRateLimited(err error) bool {
	var rle *llm.RateLimitError
	return errors.As(err, &rle)
}

func (r *Rotating) snapshot() llm.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// rotate marks the current key as cooling down and swaps in the next
// available one, reporting false if no other key is currently available.
func (r *Rotating) rotate(ctx context.Context) (llm.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.pool.IndexOf(r.currentKey); idx >= 0 {
		r.pool.MarkRateLimited(ctx, idx)
	}
	key, ok := r.pool.Next(ctx)
	if !ok {
		return nil, false
	}
	r.currentKey = key
	r.current = r.build(key)
	return r.current, true
}

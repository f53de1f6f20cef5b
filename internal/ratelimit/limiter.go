// Package ratelimit implements the per-key fixed-window Rate Limiter (spec
// §4.H), backed by the Durable Store by default or Redis when configured,
// grounded on the teacher's internal/skills Redis-cache wiring. Counts reset
// at each window boundary; the window does not slide, so a burst that
// straddles a boundary can be allowed up to twice limitPerWindow.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"agentcore/internal/store"
)

// Limiter checks per-bucket, per-window request counts.
type Limiter interface {
	// Check atomically increments the counter for (bucket, current window)
	// and reports whether the post-increment value is within limitPerWindow.
	Check(ctx context.Context, bucket string, limitPerWindow int, window time.Duration) (allowed bool, err error)
}

// storeLimiter is the default backend: one Durable Store record per window,
// self-cleaning via ttl.
type storeLimiter struct {
	st store.Store
}

// NewStoreLimiter constructs a Limiter backed by the Durable Store.
func NewStoreLimiter(st store.Store) Limiter {
	return &storeLimiter{st: st}
}

func (l *storeLimiter) Check(ctx context.Context, bucket string, limitPerWindow int, window time.Duration) (bool, error) {
	windowStart := time.Now().Unix() / int64(window.Seconds())
	pk := fmt.Sprintf("RATELIMIT#%s", bucket)
	sk := fmt.Sprintf("%d", windowStart)

	// Ensure the record exists with a ttl so storage self-cleans even if the
	// Increment call below creates it for the first time via upsert.
	count, err := l.st.Increment(ctx, pk, sk, "count", 1, nil)
	if err != nil {
		return false, fmt.Errorf("ratelimit increment: %w", err)
	}
	if count == 1 {
		// First writer into this window stamps the ttl so the record
		// self-cleans; later writers must not clobber the counter.
		_ = l.st.Put(ctx, pk, sk, store.WithTTL(store.Item{"count": count}, window+60*time.Second), nil)
	}

	return count <= int64(limitPerWindow), nil
}

// Package keypool implements round-robin API key rotation with cooldown on
// rate-limit errors, backed by the Durable Store so cooldowns are visible
// across process restarts (spec §4.D key-pool behavior).
package keypool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"agentcore/internal/store"
)

const cooldownTTL = 60 * time.Second

// Pool rotates through a fixed list of API keys for one provider.
type Pool struct {
	providerID string
	keys       []string
	next       atomic.Uint64
	st         store.Store
}

// New constructs a Pool over keys, self-keyed by providerID in the Durable
// Store for cooldown bookkeeping.
func New(providerID string, keys []string, st store.Store) *Pool {
	return &Pool{providerID: providerID, keys: keys, st: st}
}

// Len reports how many keys are in the pool.
func (p *Pool) Len() int { return len(p.keys) }

// Next returns the next non-cooled-down key in round-robin order, skipping
// any key still under cooldown. Returns false if every key is cooling down.
func (p *Pool) Next(ctx context.Context) (key string, ok bool) {
	n := len(p.keys)
	if n == 0 {
		return "", false
	}
	start := p.next.Add(1) - 1
	for i := 0; i < n; i++ {
		idx := int((start + uint64(i)) % uint64(n))
		k := p.keys[idx]
		if !p.isCoolingDown(ctx, idx) {
			return k, true
		}
	}
	return "", false
}

// MarkRateLimited puts the key at idx into cooldown for cooldownTTL.
func (p *Pool) MarkRateLimited(ctx context.Context, idx int) {
	if idx < 0 || idx >= len(p.keys) {
		return
	}
	item := store.WithTTL(store.Item{"cooling": true}, cooldownTTL)
	_ = p.st.Put(ctx, p.pk(), p.sk(idx), item, nil)
}

func (p *Pool) isCoolingDown(ctx context.Context, idx int) bool {
	rec, err := p.st.Get(ctx, p.pk(), p.sk(idx))
	if err != nil {
		return false
	}
	cooling, _ := rec.Item["cooling"].(bool)
	return cooling
}

func (p *Pool) pk() string        { return fmt.Sprintf("KEYPOOL#%s", p.providerID) }
func (p *Pool) sk(idx int) string { return fmt.Sprintf("%d", idx) }

// IndexOf returns the pool index of key, or -1 if not found. Used by callers
// that received a *llm.RateLimitError to mark the specific key that failed.
func (p *Pool) IndexOf(key string) int {
	for i, k := range p.keys {
		if k == key {
			return i
		}
	}
	return -1
}

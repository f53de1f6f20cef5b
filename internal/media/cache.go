package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentcore/internal/observability"
	"agentcore/internal/store"
)

const (
	skResult = "RESULT"
	ttl      = 7 * 24 * time.Hour
)

// Entry is a stored media cache row (spec §3 Media Cache Entry).
type Entry struct {
	ResultURL        string
	Provider         string
	OriginalCredits  int64
	CreatedAt        time.Time
	HitCount         int64
	RequestParamsRaw string
}

// Cache is the content-addressed media cache over a Durable Store.
type Cache struct {
	st store.Store
}

// New constructs a Cache backed by st.
func New(st store.Store) *Cache {
	return &Cache{st: st}
}

func pk(kind, hash string) string { return fmt.Sprintf("CACHE#%s#%s", kind, hash) }

// Lookup returns the cache entry for (kind, hash), if present and unexpired.
func (c *Cache) Lookup(ctx context.Context, kind, hash string) (Entry, bool) {
	rec, err := c.st.Get(ctx, pk(kind, hash), skResult)
	if err != nil {
		return Entry{}, false
	}
	return entryFromItem(rec.Item), true
}

// Store writes a new cache entry via a conditional "only if absent" put, so
// two concurrent misses on the same fingerprint race harmlessly: the loser's
// write becomes a no-op (spec §5 single-flight note on media generation).
func (c *Cache) Store(ctx context.Context, kind, hash, resultURL, provider string, originalCredits int64, paramsJSON string) error {
	item := store.Item{
		"result_url":       resultURL,
		"provider":         provider,
		"original_credits": originalCredits,
		"created_at":       time.Now().UTC().Format(time.RFC3339),
		"hit_count":        int64(0),
		"request_params":   paramsJSON,
	}
	item = store.WithTTL(item, ttl)
	err := c.st.Put(ctx, pk(kind, hash), skResult, item, &store.Condition{IfAbsent: true})
	if err != nil && !errors.Is(err, store.ErrConditionFailed) {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("kind", kind).Msg("media cache store failed")
		return err
	}
	return nil
}

// RecordHit atomically increments hit_count; it never decreases.
func (c *Cache) RecordHit(ctx context.Context, kind, hash string) error {
	_, err := c.st.Increment(ctx, pk(kind, hash), skResult, "hit_count", 1, nil)
	return err
}

func entryFromItem(item store.Item) Entry {
	e := Entry{}
	if v, ok := item["result_url"].(string); ok {
		e.ResultURL = v
	}
	if v, ok := item["provider"].(string); ok {
		e.Provider = v
	}
	switch v := item["original_credits"].(type) {
	case int64:
		e.OriginalCredits = v
	case int:
		e.OriginalCredits = int64(v)
	case float64:
		e.OriginalCredits = int64(v)
	}
	if v, ok := item["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			e.CreatedAt = t
		}
	}
	switch v := item["hit_count"].(type) {
	case int64:
		e.HitCount = v
	case int:
		e.HitCount = int64(v)
	case float64:
		e.HitCount = int64(v)
	}
	if v, ok := item["request_params"].(string); ok {
		e.RequestParamsRaw = v
	}
	return e
}

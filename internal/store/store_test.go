package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "USER#1", "PROFILE", Item{"plan": "free"}, nil))
	rec, err := s.Get(ctx, "USER#1", "PROFILE")
	require.NoError(t, err)
	assert.Equal(t, "free", rec.Item["plan"])
}

func TestMemoryStoreGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "USER#1", "PROFILE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConditionalPutIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cond := &Condition{IfAbsent: true}
	require.NoError(t, s.Put(ctx, "CACHE#tts#abc", "RESULT", Item{"hit_count": int64(0)}, cond))
	err := s.Put(ctx, "CACHE#tts#abc", "RESULT", Item{"hit_count": int64(0)}, cond)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryStoreTTLExpiryTreatedAsAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	item := Item{"foo": "bar", "ttl": time.Now().Add(-time.Second).Unix()}
	require.NoError(t, s.Put(ctx, "PK", "SK", item, nil))
	_, err := s.Get(ctx, "PK", "SK")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	v, err := s.Increment(ctx, "PROVIDER_HEALTH#openai", "COUNTER", "count", 1, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
	v, err = s.Increment(ctx, "PROVIDER_HEALTH#openai", "COUNTER", "count", 1, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestMemoryStoreIncrementConditionalMinRemaining(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "USER#1", "PROFILE", Item{"credits_remaining": int64(5)}, nil))

	cond := &Condition{MinRemaining: &FieldAtLeast{Field: "credits_remaining", Value: 5}}
	_, err := s.Increment(ctx, "USER#1", "PROFILE", "credits_remaining", -5, cond)
	require.NoError(t, err)

	cond2 := &Condition{MinRemaining: &FieldAtLeast{Field: "credits_remaining", Value: 1}}
	_, err = s.Increment(ctx, "USER#1", "PROFILE", "credits_remaining", -1, cond2)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryStoreQueryPrefixAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "MEMORY#u1", "DAILY#2026-07-29", Item{"text": "a"}, nil))
	require.NoError(t, s.Put(ctx, "MEMORY#u1", "DAILY#2026-07-30", Item{"text": "b"}, nil))
	require.NoError(t, s.Put(ctx, "MEMORY#u1", "LONG_TERM", Item{"text": "c"}, nil))

	recs, err := s.Query(ctx, "MEMORY#u1", "DAILY#", false, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "DAILY#2026-07-29", recs[0].SK)
	assert.Equal(t, "DAILY#2026-07-30", recs[1].SK)

	recs, err = s.Query(ctx, "MEMORY#u1", "DAILY#", true, 0)
	require.NoError(t, err)
	assert.Equal(t, "DAILY#2026-07-30", recs[0].SK)
}

func TestMemoryStoreSetFieldMergesRatherThanReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "USER#1", "PROFILE", Item{
		"credits_remaining": int64(42),
		"plan":              "free",
	}, nil))

	require.NoError(t, s.SetField(ctx, "USER#1", "PROFILE", "last_passive_grant", "2026-07-31"))

	rec, err := s.Get(ctx, "USER#1", "PROFILE")
	require.NoError(t, err)
	assert.EqualValues(t, 42, rec.Item["credits_remaining"])
	assert.Equal(t, "free", rec.Item["plan"])
	assert.Equal(t, "2026-07-31", rec.Item["last_passive_grant"])
}

func TestMemoryStoreSetFieldCreatesRecordWhenAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SetField(ctx, "USER#1", "PROFILE", "last_passive_grant", "2026-07-31"))
	rec, err := s.Get(ctx, "USER#1", "PROFILE")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31", rec.Item["last_passive_grant"])
}

func TestMemoryStoreDeleteIsNoopWhenAbsent(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Delete(context.Background(), "PK", "SK"))
}

package media

import (
	"context"
	"testing"

	"agentcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsPermutationInvariant(t *testing.T) {
	a := Fingerprint("tts", map[string]any{"voice": "nova", "text": "hi", "engine": "openai", "speed": 1.0})
	b := Fingerprint("tts", map[string]any{"text": "hi", "engine": "openai", "speed": 1.0, "voice": "nova"})
	assert.Equal(t, a, b)
}

func TestFingerprintNormalizesIntegerVsFloatRepresentation(t *testing.T) {
	a := Fingerprint("tts", map[string]any{"speed": 1})
	b := Fingerprint("tts", map[string]any{"speed": 1.0})
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersOnMaterialValueChange(t *testing.T) {
	a := Fingerprint("tts", map[string]any{"speed": 1.0})
	b := Fingerprint("tts", map[string]any{"speed": 1.00000001})
	assert.NotEqual(t, a, b)
}

func TestFingerprintIsPureFunction(t *testing.T) {
	params := map[string]any{"text": "hello", "voice": "nova"}
	a := Fingerprint("tts", params)
	b := Fingerprint("tts", params)
	assert.Equal(t, a, b)
}

func TestCacheLookupMissThenStoreThenHit(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore())
	hash := Fingerprint("tts", map[string]any{"text": "hello"})

	_, ok := c.Lookup(ctx, "tts", hash)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, "tts", hash, "https://cdn/x.mp3", "openai", 2, `{"text":"hello"}`))

	entry, ok := c.Lookup(ctx, "tts", hash)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/x.mp3", entry.ResultURL)
	assert.EqualValues(t, 0, entry.HitCount)

	require.NoError(t, c.RecordHit(ctx, "tts", hash))
	entry, ok = c.Lookup(ctx, "tts", hash)
	require.True(t, ok)
	assert.EqualValues(t, 1, entry.HitCount)
}

func TestCacheHitCountMonotonicallyNonDecreasing(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore())
	hash := Fingerprint("image", map[string]any{"prompt": "a cat"})
	require.NoError(t, c.Store(ctx, "image", hash, "https://cdn/y.png", "openai", 4, `{}`))

	var last int64
	for i := 0; i < 5; i++ {
		require.NoError(t, c.RecordHit(ctx, "image", hash))
		entry, ok := c.Lookup(ctx, "image", hash)
		require.True(t, ok)
		assert.GreaterOrEqual(t, entry.HitCount, last)
		last = entry.HitCount
	}
	assert.EqualValues(t, 5, last)
}

func TestCacheStoreIsNoopOnSecondWriteSameHash(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore())
	hash := Fingerprint("tts", map[string]any{"text": "dup"})
	require.NoError(t, c.Store(ctx, "tts", hash, "https://cdn/first.mp3", "openai", 2, `{}`))
	require.NoError(t, c.Store(ctx, "tts", hash, "https://cdn/second.mp3", "anthropic", 3, `{}`))

	entry, ok := c.Lookup(ctx, "tts", hash)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/first.mp3", entry.ResultURL, "conditional put must keep the first writer's result")
}

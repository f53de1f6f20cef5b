package keypool

import (
	"context"
	"testing"

	"agentcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRotatesRoundRobin(t *testing.T) {
	p := New("openai", []string{"k1", "k2", "k3"}, store.NewMemoryStore())
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		k, ok := p.Next(ctx)
		require.True(t, ok)
		seen[k] = true
	}
	assert.Len(t, seen, 3)
}

func TestMarkRateLimitedSkipsCoolingKeyUntilAllCool(t *testing.T) {
	p := New("openai", []string{"k1", "k2"}, store.NewMemoryStore())
	ctx := context.Background()

	p.MarkRateLimited(ctx, p.IndexOf("k1"))
	for i := 0; i < 4; i++ {
		k, ok := p.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, "k2", k)
	}
}

func TestNextReturnsFalseWhenAllKeysCoolingDown(t *testing.T) {
	p := New("openai", []string{"k1"}, store.NewMemoryStore())
	ctx := context.Background()
	p.MarkRateLimited(ctx, 0)
	_, ok := p.Next(ctx)
	assert.False(t, ok)
}

func TestIndexOfUnknownKeyReturnsNegativeOne(t *testing.T) {
	p := New("openai", []string{"k1"}, store.NewMemoryStore())
	assert.Equal(t, -1, p.IndexOf("missing"))
}

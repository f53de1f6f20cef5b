package ratelimit

import (
	"context"
	"testing"
	"time"

	"agentcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllowsUpToLimitThenDenies(t *testing.T) {
	l := NewStoreLimiter(store.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := l.Check(ctx, "chat:session1", 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, err := l.Check(ctx, "chat:session1", 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, allowed, "6th request must be denied at limit=5")
}

func TestCheckBucketsAreIndependent(t *testing.T) {
	l := NewStoreLimiter(store.NewMemoryStore())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "chat:a", 3, time.Hour)
		require.NoError(t, err)
	}
	allowed, err := l.Check(ctx, "chat:b", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, allowed)
}

package session

import (
	"context"
	"testing"

	"agentcore/internal/llm"
	"agentcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUnknownSessionReturnsEmpty(t *testing.T) {
	s := New(store.NewMemoryStore())
	sess, err := s.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", sess.SessionKey)
	assert.Empty(t, sess.Messages)
	assert.Zero(t, sess.SyncVersion)
}

func TestAppendThenLoadRoundTrips(t *testing.T) {
	s := New(store.NewMemoryStore())
	ctx := context.Background()

	sess, err := s.Append(ctx, "s1",
		llm.Message{Role: llm.RoleUser, Content: "hello"},
		llm.Message{Role: llm.RoleAssistant, Content: "hi there"},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.SyncVersion)
	assert.Len(t, sess.Messages, 2)

	reloaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.SyncVersion)
	require.Len(t, reloaded.Messages, 2)
	assert.Equal(t, "hello", reloaded.Messages[0].Content)
	assert.Equal(t, "hi there", reloaded.Messages[1].Content)
}

func TestAppendBumpsSyncVersionEachCall(t *testing.T) {
	s := New(store.NewMemoryStore())
	ctx := context.Background()

	_, err := s.Append(ctx, "s1", llm.Message{Role: llm.RoleUser, Content: "one"})
	require.NoError(t, err)
	sess, err := s.Append(ctx, "s1", llm.Message{Role: llm.RoleUser, Content: "two"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sess.SyncVersion)
}

func TestAppendTrimsToWindow(t *testing.T) {
	s := New(store.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < maxTurns+5; i++ {
		_, err := s.Append(ctx, "s1",
			llm.Message{Role: llm.RoleUser, Content: "q"},
			llm.Message{Role: llm.RoleAssistant, Content: "a"},
		)
		require.NoError(t, err)
	}

	sess, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, maxTurns*2)
}

func TestAppendPreservesToolCalls(t *testing.T) {
	s := New(store.NewMemoryStore())
	ctx := context.Background()

	_, err := s.Append(ctx, "s1",
		llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "calculator", Args: []byte(`{"expr":"1+1"}`)},
			},
		},
		llm.Message{Role: llm.RoleTool, ToolID: "call_1", Content: `{"result":2}`},
	)
	require.NoError(t, err)

	sess, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	require.Len(t, sess.Messages[0].ToolCalls, 1)
	assert.Equal(t, "calculator", sess.Messages[0].ToolCalls[0].Name)
	assert.Equal(t, "call_1", sess.Messages[1].ToolID)
}

package memory

import (
	"context"
	"strings"
	"testing"

	"agentcore/internal/llm"
	"agentcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatter struct {
	model    string
	response string
	calls    int
}

func (f *fakeChatter) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.calls++
	return llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: f.response}}, nil
}

func (f *fakeChatter) SmartestModel() (string, error) { return f.model, nil }

func TestAppendDailyThenReadContextIncludesTodaysLog(t *testing.T) {
	s := New(store.NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, s.AppendDaily(ctx, "u1", "user: hi"))
	require.NoError(t, s.AppendDaily(ctx, "u1", "assistant: hello"))

	text, err := s.ReadContext(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, text, "user: hi")
	assert.Contains(t, text, "assistant: hello")
}

func TestReadContextEmptyForUnknownUser(t *testing.T) {
	s := New(store.NewMemoryStore(), nil)
	text, err := s.ReadContext(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestConsolidateMergesDailyIntoLongTermAndClearsDaily(t *testing.T) {
	st := store.NewMemoryStore()
	chat := &fakeChatter{model: "gpt-4o", response: "summary v2"}
	s := New(st, chat)
	ctx := context.Background()

	require.NoError(t, s.AppendDaily(ctx, "u1", "some notes"))
	require.NoError(t, s.Consolidate(ctx, "u1"))

	rec, err := st.Get(ctx, pkUser("u1"), skLongTerm)
	require.NoError(t, err)
	assert.Equal(t, "summary v2", rec.Item["text"])

	rec, err = st.Get(ctx, pkUser("u1"), skDaily(today()))
	require.NoError(t, err)
	assert.Equal(t, "", rec.Item["text"])
	assert.Equal(t, 1, chat.calls)
}

func TestConsolidateIsNoopWithoutDailyLog(t *testing.T) {
	chat := &fakeChatter{model: "gpt-4o", response: "unused"}
	s := New(store.NewMemoryStore(), chat)
	require.NoError(t, s.Consolidate(context.Background(), "ghost"))
	assert.Equal(t, 0, chat.calls)
}

func TestConsolidateSingleFlightsConcurrentTriggers(t *testing.T) {
	st := store.NewMemoryStore()
	chat := &fakeChatter{model: "gpt-4o", response: "summary"}
	s := New(st, chat)
	ctx := context.Background()
	require.NoError(t, s.AppendDaily(ctx, "u1", "notes"))

	// Simulate a second trigger arriving while the first already holds the
	// lock: it must observe the lock and return immediately without calling chat.
	require.NoError(t, st.Put(ctx, pkLock("u1"), "LOCK", store.WithTTL(store.Item{"locked": true}, lockTTL), &store.Condition{IfAbsent: true}))
	require.NoError(t, s.Consolidate(ctx, "u1"))
	assert.Equal(t, 0, chat.calls)
}

func TestReadContextTruncatesOldestSectionFirstWhenOverBudget(t *testing.T) {
	st := store.NewMemoryStore()
	s := New(st, nil)
	ctx := context.Background()

	big := strings.Repeat("x", contextBudgetBytes)
	require.NoError(t, st.Put(ctx, pkUser("u1"), skLongTerm, store.Item{"text": "old summary"}, nil))
	require.NoError(t, st.Put(ctx, pkUser("u1"), skDaily(yesterday()), store.Item{"text": "yesterday notes", "day": yesterday()}, nil))
	require.NoError(t, st.Put(ctx, pkUser("u1"), skDaily(today()), store.Item{"text": big, "day": today()}, nil))

	text, err := s.ReadContext(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, text, "old summary")
	assert.Contains(t, text, big)
}

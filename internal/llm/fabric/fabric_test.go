package fabric

import (
	"context"
	"errors"
	"testing"

	"agentcore/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id      string
	models  []string
	err     error
	content string
}

func (f *fakeProvider) ID() string       { return f.id }
func (f *fakeProvider) Models() []string { return f.models }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: f.content}, ModelUsed: req.Model}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	if h != nil {
		h.OnDelta(f.content)
	}
	return llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: f.content}}, nil
}

func TestChatReturnsAllProvidersFailedWithNoProviders(t *testing.T) {
	f := New(map[Tier]string{})
	_, err := f.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestChatFailsOverToSecondProviderOnError(t *testing.T) {
	f := New(map[Tier]string{})
	f.Register("openai", &fakeProvider{id: "openai-1", models: []string{"gpt-4o"}, err: errors.New("boom")})
	f.Register("openai", &fakeProvider{id: "openai-2", models: []string{"gpt-4o"}, content: "ok"})

	resp, err := f.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
}

func TestChatReturnsErrorWhenNoProviderServesModel(t *testing.T) {
	f := New(map[Tier]string{})
	f.Register("openai", &fakeProvider{id: "openai-1", models: []string{"gpt-4o"}, content: "ok"})

	_, err := f.Chat(context.Background(), llm.ChatRequest{Model: "claude-3-7-sonnet-latest"})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestModelForTierResolvesConfiguredModel(t *testing.T) {
	f := New(map[Tier]string{TierSmart: "gpt-4o"})
	m, err := f.SmartestModel()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m)
}

func TestModelForTierErrorsWhenUnconfigured(t *testing.T) {
	f := New(map[Tier]string{})
	_, err := f.ModelForTier(TierCheap)
	assert.Error(t, err)
}

func TestChatRaceReturnsEveryCompletedProvider(t *testing.T) {
	f := New(map[Tier]string{})
	f.Register("openai", &fakeProvider{id: "openai-1", models: []string{"gpt-4o"}, content: "a"})
	f.Register("anthropic", &fakeProvider{id: "anthropic-1", models: []string{"gpt-4o"}, content: "b"})

	results, err := f.ChatRace(context.Background(), llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestChatStreamDeliversDeltasBeforeFailover(t *testing.T) {
	f := New(map[Tier]string{})
	f.Register("openai", &fakeProvider{id: "openai-1", models: []string{"gpt-4o"}, content: "hello"})

	var got string
	_, err := f.ChatStream(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, streamFunc(func(s string) { got += s }))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

type streamFunc func(string)

func (s streamFunc) OnDelta(content string)  { s(content) }
func (s streamFunc) OnToolCall(llm.ToolCall) {}

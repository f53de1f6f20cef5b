package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/internal/config"
	"agentcore/internal/credits"
	"agentcore/internal/llm"
	"agentcore/internal/memory"
	"agentcore/internal/ratelimit"
	"agentcore/internal/session"
	"agentcore/internal/store"
	"agentcore/internal/tools"
)

type scriptedProvider struct {
	responses []llm.ChatResponse
	errs      []error
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	i := p.calls
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], err
	}
	return llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: "done"}}, err
}

func (p *scriptedProvider) SmartestModel() (string, error) { return "gpt-test", nil }

type echoTool struct{}

func (echoTool) Name() string           { return "calculator" }
func (echoTool) Description() string    { return "adds numbers" }
func (echoTool) Permission() tools.Permission { return tools.AutoApprove }
func (echoTool) JSONSchema() map[string]any {
	return map[string]any{"name": "calculator", "parameters": map[string]any{"type": "object"}}
}
func (echoTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	return map[string]any{"result": 4}, nil
}

func newTestEngine(t *testing.T, provider ChatProvider) (*Engine, string) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	e := &Engine{
		Provider:    provider,
		Tools:       reg,
		Credits:     credits.New(st, config.DefaultPlans()),
		Sessions:    session.New(st),
		Memory:      memory.New(st, nil),
		RateLimiter: ratelimit.NewStoreLimiter(st),
		SandboxRoot: t.TempDir(),
		Plans:       config.DefaultPlans(),
	}
	require.NoError(t, st.Put(context.Background(), "USER#u1", "PROFILE", store.Item{"credits_remaining": int64(1000)}, nil))
	return e, "u1"
}

func TestRunNoToolCallsProducesContentAndDone(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.ChatResponse{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "hello there"}, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}, ModelUsed: "gpt-test"},
		},
	}
	e, userID := newTestEngine(t, provider)

	var kinds []EventKind
	res, err := e.Run(context.Background(), Request{
		SessionKey: "sess1", UserID: userID, Message: "hi", Channel: "web", Plan: "pro",
	}, func(ev Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Response)
	assert.Equal(t, int64(2), res.CreditsUsed)
	assert.Equal(t, []EventKind{EventStart, EventThinking, EventContent, EventDone}, kinds)
}

func TestRunDispatchesToolCallThenFinishes(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.ChatResponse{
			{
				Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expr":"2+2"}`)},
				}},
				Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}, ModelUsed: "gpt-test",
			},
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "the answer is 4"}, Usage: llm.Usage{PromptTokens: 8, CompletionTokens: 4}, ModelUsed: "gpt-test"},
		},
	}
	e, userID := newTestEngine(t, provider)

	var toolStarted, toolResulted bool
	res, err := e.Run(context.Background(), Request{
		SessionKey: "sess2", UserID: userID, Message: "what is 2+2", Channel: "web", Plan: "pro",
	}, func(ev Event) {
		switch ev.Kind {
		case EventToolStart:
			toolStarted = true
		case EventToolResult:
			toolResulted = true
		}
	})

	require.NoError(t, err)
	assert.True(t, toolStarted)
	assert.True(t, toolResulted)
	assert.Equal(t, "the answer is 4", res.Response)
	assert.Contains(t, res.ToolsUsed, "calculator")
}

func TestRunRejectsOversizedMessage(t *testing.T) {
	provider := &scriptedProvider{}
	e, userID := newTestEngine(t, provider)

	big := make([]byte, 32*1024+1)
	_, err := e.Run(context.Background(), Request{
		SessionKey: "sess3", UserID: userID, Message: string(big),
	}, func(Event) {})
	assert.Error(t, err)
}

func TestRunDeniesWhenCreditsExhausted(t *testing.T) {
	provider := &scriptedProvider{}
	e, userID := newTestEngine(t, provider)

	ctxBg := context.Background()
	// Drain the balance the test helper granted.
	_, err := e.Credits.Deduct(ctxBg, userID, 1000)
	require.NoError(t, err)

	var gotAction string
	_, err = e.Run(ctxBg, Request{SessionKey: "sess4", UserID: userID, Message: "hi", Plan: "pro"}, func(ev Event) {
		if ev.Kind == EventError {
			gotAction, _ = ev.Data["action"].(string)
		}
	})
	assert.Error(t, err)
	assert.Equal(t, "upgrade", gotAction)
}

func TestRunMidLoopInsufficientCreditsReportsLastSuccessfulBalance(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.ChatResponse{
			{
				Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expr":"2+2"}`)},
				}},
				Usage: llm.Usage{PromptTokens: 1}, ModelUsed: "gpt-test",
			},
			{
				Message: llm.Message{Role: llm.RoleAssistant, Content: "partial answer"},
				Usage:   llm.Usage{PromptTokens: 1001}, ModelUsed: "gpt-test",
			},
		},
	}
	e, userID := newTestEngine(t, provider)

	ctxBg := context.Background()
	// Drain the test helper's 1000-credit grant down to exactly 2: iteration
	// 1 costs 1 (leaving 1, per spec scenario), iteration 2 costs 2 and must
	// fail the MinRemaining condition without mutating the balance.
	_, err := e.Credits.Deduct(ctxBg, userID, 998)
	require.NoError(t, err)

	var gotCreditsRemaining any
	res, err := e.Run(ctxBg, Request{
		SessionKey: "sess6", UserID: userID, Message: "what is 2+2", Plan: "pro",
	}, func(ev Event) {
		if ev.Kind == EventContent {
			gotCreditsRemaining = ev.Data["credits_remaining"]
		}
	})

	assert.Error(t, err)
	assert.Equal(t, "upgrade", res.Action)
	assert.EqualValues(t, 1, res.CreditsRemaining, "remaining must reflect the last successful deduct, not zero")
	assert.EqualValues(t, 1, gotCreditsRemaining, "the content event must report the last successful deduct, not zero")
}

func TestRunRespectsMaxIterationsFreePlan(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.ChatResponse{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "only answer"}, ModelUsed: "gpt-test"},
		},
	}
	e, userID := newTestEngine(t, provider)

	res, err := e.Run(context.Background(), Request{
		SessionKey: "sess5", UserID: userID, Message: "hi", Plan: "free",
	}, func(Event) {})
	require.NoError(t, err)
	assert.Equal(t, "only answer", res.Response)
	assert.Equal(t, 1, provider.calls)
}

// Package llm defines the uniform chat interface the Provider Fabric (spec
// §4.D) composes over heterogeneous LLM endpoints: generalized from the
// teacher's single-provider Provider interface into a multi-provider,
// multi-tenant shape carrying usage accounting and tool-choice policy.
package llm

import (
	"context"
	"encoding/json"
)

// Role is the chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function call the model requested.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message is one entry in the chat transcript (spec §3 Session entity).
type Message struct {
	Role      Role
	Content   string
	ToolID    string // set when Role == RoleTool: the ToolCall.ID being answered
	ToolCalls []ToolCall
}

// ToolSchema is the JSON-schema description of one callable tool, passed to
// a provider so the model can emit structured tool calls.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoice selects the three-phase tool-choice policy (spec §4.G): forced
// on the first iteration, auto afterward, none once the iteration budget is
// exhausted.
type ToolChoice string

const (
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
)

// Usage is the token accounting a provider call returns, consumed by the
// credit accountant's Cost function.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatRequest is the uniform request shape every Provider accepts.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSchema
	Model       string
	MaxTokens   int
	Temperature float64
	ToolChoice  ToolChoice
}

// ChatResponse is the uniform response shape every Provider returns.
type ChatResponse struct {
	Message   Message
	Usage     Usage
	ModelUsed string
}

// StreamHandler receives incremental events as a provider call streams.
// Implementations must not block; the fabric serializes deltas into SSE
// frames on the caller's goroutine.
type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
}

// RateLimitError signals an upstream 429-equivalent response, letting the
// fabric's key-pool rotate-and-retry-once policy trigger (spec §4.D).
type RateLimitError struct {
	ProviderID string
}

func (e *RateLimitError) Error() string { return "llm: provider " + e.ProviderID + " rate limited" }

// Provider wraps one remote LLM endpoint family (OpenAI-compatible,
// Anthropic-native, or Google-native).
type Provider interface {
	// ID identifies the provider for health tracking and logging.
	ID() string
	// Models returns the model ids this provider can serve, in the
	// provider's own normalized form (spec §4.D model-normalization policy).
	Models() []string
	// Chat performs one non-streaming call.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream performs one streaming call, invoking h for each delta and
	// returning the final ChatResponse once the stream completes.
	ChatStream(ctx context.Context, req ChatRequest, h StreamHandler) (ChatResponse, error)
}

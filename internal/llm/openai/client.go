package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"agentcore/internal/config"
	"agentcore/internal/llm"
	"agentcore/internal/observability"
)

// Client wraps an OpenAI-compatible endpoint, also serving local/self-hosted
// servers that speak the same Chat Completions wire format.
type Client struct {
	id      string
	sdk     sdk.Client
	model   string
	baseURL string
}

// New constructs a Client for one key in cfg.Keys.
func New(id string, apiKey string, cfg config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		id:      id,
		sdk:     sdk.NewClient(opts...),
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Models() []string { return []string{c.model} }

// isThinkingModel matches the "o<int>-*" reasoning-model family, which takes
// max_completion_tokens instead of max_tokens.
func isThinkingModel(model string) bool {
	m := strings.ToLower(model)
	if !strings.HasPrefix(m, "o") {
		return false
	}
	rest := m[1:]
	i := 0
	for ; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
	}
	return i > 0 && i < len(rest) && rest[i] == '-'
}

func (c *Client) buildParams(req llm.ChatRequest) sdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: adaptMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		// tool_choice forcing is handled by the agent loop's three-phase policy
		// (it simply omits tools once the phase no longer allows calling one);
		// the OpenAI-compatible endpoint is left on its default "auto" choice.
		params.Tools = adaptSchemas(req.Tools)
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		if isThinkingModel(model) {
			params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
		} else {
			params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
		}
	}
	return params
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	log := observability.LoggerWithTrace(ctx)
	params := c.buildParams(req)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("openai_chat_error")
		return llm.ChatResponse{}, classifyErr(c.id, err)
	}

	var out llm.Message
	if len(comp.Choices) > 0 {
		msg := comp.Choices[0].Message
		out = llm.Message{Role: llm.RoleAssistant, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			if v, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
				if isEmptyArgs(v.Function.Arguments) {
					continue
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
					ID: v.ID, Name: v.Function.Name, Args: json.RawMessage(v.Function.Arguments),
				})
			}
		}
	}

	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).Msg("openai_chat_ok")

	return llm.ChatResponse{
		Message:   out,
		Usage:     llm.Usage{PromptTokens: int(comp.Usage.PromptTokens), CompletionTokens: int(comp.Usage.CompletionTokens)},
		ModelUsed: string(params.Model),
	}, nil
}

func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	log := observability.LoggerWithTrace(ctx)
	params := c.buildParams(req)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	start := time.Now()
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolCalls := map[int]*llm.ToolCall{}
	var sb strings.Builder
	var promptTokens, completionTokens int

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			if chunk.Usage.TotalTokens > 0 {
				promptTokens = int(chunk.Usage.PromptTokens)
				completionTokens = int(chunk.Usage.CompletionTokens)
			}
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			sb.WriteString(delta.Content)
			if h != nil {
				h.OnDelta(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			if toolCalls[idx] == nil {
				toolCalls[idx] = &llm.ToolCall{ID: tc.ID}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = json.RawMessage(string(toolCalls[idx].Args) + tc.Function.Arguments)
			}
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("openai_stream_error")
		return llm.ChatResponse{}, classifyErr(c.id, err)
	}

	var calls []llm.ToolCall
	for i := 0; i < len(toolCalls); i++ {
		if tc := toolCalls[i]; tc != nil && tc.Name != "" && !isEmptyArgsBytes(tc.Args) {
			calls = append(calls, *tc)
			if h != nil {
				h.OnToolCall(*tc)
			}
		}
	}

	log.Debug().Str("model", string(params.Model)).Dur("duration", time.Since(start)).
		Int("prompt_tokens", promptTokens).Int("completion_tokens", completionTokens).Msg("openai_stream_ok")

	return llm.ChatResponse{
		Message:   llm.Message{Role: llm.RoleAssistant, Content: sb.String(), ToolCalls: calls},
		Usage:     llm.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens},
		ModelUsed: string(params.Model),
	}, nil
}

func isEmptyArgs(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || t == "{}"
}

func isEmptyArgsBytes(b json.RawMessage) bool { return isEmptyArgs(string(b)) }

func classifyErr(providerID string, err error) error {
	var apiErr *sdk.Error
	if ok := asOpenAIError(err, &apiErr); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		return &llm.RateLimitError{ProviderID: providerID}
	}
	return err
}

func asOpenAIError(err error, target **sdk.Error) bool {
	ae, ok := err.(*sdk.Error)
	if ok {
		*target = ae
	}
	return ok
}

// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// interface, grounded on the teacher's internal/llm/anthropic client
// (same SDK, same streaming accumulation pattern), trimmed to the fields
// the fabric actually needs.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"agentcore/internal/config"
	"agentcore/internal/llm"
	"agentcore/internal/observability"
)

const defaultMaxTokens int64 = 4096

// Client wraps one Anthropic API key pool entry.
type Client struct {
	id        string
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// New constructs a Client for one key in cfg.Keys. id should distinguish
// this client among the fabric's provider list (e.g. "anthropic").
func New(id string, apiKey string, cfg config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		id:        id,
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Models() []string { return []string{c.model} }

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	sys, converted, err := adaptMessages(req.Messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	toolDefs, err := adaptTools(req.Tools)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(req.Model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: maxTokensOrDefault(req.MaxTokens, c.maxTokens),
	}
	applyToolChoice(&params, req.ToolChoice)

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("anthropic_chat_error")
		return llm.ChatResponse{}, classifyErr(c.id, err)
	}

	out := messageFromResponse(resp)
	promptTokens := int(resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)

	log.Debug().Str("model", string(params.Model)).Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).Dur("duration", dur).Msg("anthropic_chat_ok")

	return llm.ChatResponse{
		Message:   out,
		Usage:     llm.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens},
		ModelUsed: string(params.Model),
	}, nil
}

func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	sys, converted, err := adaptMessages(req.Messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	toolDefs, err := adaptTools(req.Tools)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(req.Model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: maxTokensOrDefault(req.MaxTokens, c.maxTokens),
	}
	applyToolChoice(&params, req.ToolChoice)

	log := observability.LoggerWithTrace(ctx)
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropic.Message
	var usage anthropic.MessageDeltaUsage
	toolBuffers := map[int]*toolBuffer{}

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			log.Debug().Err(err).Msg("anthropic_accumulate_error")
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				id := strings.TrimSpace(block.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", len(toolBuffers)+1)
				}
				tb := &toolBuffer{name: block.Name, id: id}
				tb.appendInitial(block.Input)
				toolBuffers[int(ev.Index)] = tb
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if h != nil && delta.Text != "" {
					h.OnDelta(delta.Text)
				}
			case anthropic.InputJSONDelta:
				if tb := toolBuffers[int(ev.Index)]; tb != nil {
					tb.appendPartial(delta.PartialJSON)
				}
			}
		case anthropic.MessageDeltaEvent:
			usage = ev.Usage
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("anthropic_stream_error")
		return llm.ChatResponse{}, classifyErr(c.id, err)
	}

	msg := messageFromResponse(&acc)
	if len(toolBuffers) > 0 {
		indices := make([]int, 0, len(toolBuffers))
		for i := range toolBuffers {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		msg.ToolCalls = msg.ToolCalls[:0]
		for _, idx := range indices {
			if tb := toolBuffers[idx]; tb != nil {
				tc := tb.toToolCall()
				msg.ToolCalls = append(msg.ToolCalls, tc)
				if h != nil {
					h.OnToolCall(tc)
				}
			}
		}
	}

	promptTokens := int(usage.CacheCreationInputTokens + usage.CacheReadInputTokens + usage.InputTokens)
	completionTokens := int(usage.OutputTokens)

	return llm.ChatResponse{
		Message:   msg,
		Usage:     llm.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens},
		ModelUsed: string(params.Model),
	}, nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func maxTokensOrDefault(requested int, fallback int64) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return fallback
}

func applyToolChoice(params *anthropic.MessageNewParams, choice llm.ToolChoice) {
	switch choice {
	case llm.ToolChoiceRequired:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceNone:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
}

func classifyErr(providerID string, err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		return &llm.RateLimitError{ProviderID: providerID}
	}
	return err
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if ok {
		*target = ae
	}
	return ok
}

func adaptTools(tools []llm.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic provider: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			if v, ok := req.([]string); ok {
				schema.Required = v
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		p := anthropic.ToolParam{Name: name, InputSchema: schema}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			p.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &p})
	}
	return out, nil
}

func adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	if len(msgs) == 0 {
		return nil, nil, fmt.Errorf("anthropic provider: messages required")
	}
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case llm.RoleUser:
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case llm.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case llm.RoleTool:
			id := strings.TrimSpace(m.ToolID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("anthropic provider: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

func messageFromResponse(resp *anthropic.Message) llm.Message {
	if resp == nil {
		return llm.Message{}
	}
	var sb strings.Builder
	var calls []llm.ToolCall
	callIdx := 0
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			callIdx++
			id := strings.TrimSpace(v.ID)
			if id == "" {
				id = fmt.Sprintf("call-%d", callIdx)
			}
			args := v.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			calls = append(calls, llm.ToolCall{ID: id, Name: v.Name, Args: args})
		}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: sb.String(), ToolCalls: calls}
}

// toolBuffer accumulates a streamed tool_use block's partial JSON input.
// Anthropic sends the initial content_block_start with an empty/placeholder
// input object; subsequent input_json_delta events carry the real payload
// and must replace, not append to, that placeholder.
type toolBuffer struct {
	name      string
	id        string
	buf       strings.Builder
	hasDeltas bool
}

func (tb *toolBuffer) appendInitial(raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	tb.buf.WriteString(string(raw))
}

func (tb *toolBuffer) appendPartial(partial string) {
	if partial == "" {
		return
	}
	if !tb.hasDeltas {
		tb.buf.Reset()
		tb.hasDeltas = true
	}
	tb.buf.WriteString(partial)
}

func (tb *toolBuffer) toToolCall() llm.ToolCall {
	args := strings.TrimSpace(tb.buf.String())
	if args == "" {
		args = "{}"
	}
	if !strings.HasPrefix(args, "{") {
		args = "{" + args
	}
	if !strings.HasSuffix(args, "}") {
		args += "}"
	}
	if !json.Valid([]byte(args)) {
		args = "{}"
	}
	return llm.ToolCall{ID: tb.id, Name: tb.name, Args: json.RawMessage(args)}
}

// Package google adapts the Gemini API to the llm.Provider interface,
// grounded on the teacher's internal/llm/google client (same genai SDK,
// same content/tool-declaration adaptation), trimmed to the fields the
// fabric needs and dropping multi-turn thought-signature plumbing.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"agentcore/internal/config"
	"agentcore/internal/llm"
	"agentcore/internal/observability"
)

type Client struct {
	id          string
	client      *genai.Client
	model       string
	httpOptions genai.HTTPOptions
}

func New(id string, apiKey string, cfg config.ProviderConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(apiKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{id: id, client: client, model: model, httpOptions: httpOpts}, nil
}

func (c *Client) ID() string { return c.id }

func (c *Client) Models() []string { return []string{c.model} }

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := c.pickModel(req.Model)
	log := observability.LoggerWithTrace(ctx)

	contents, err := toContents(req.Messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	toolDecls, toolCfg, err := adaptTools(req.Tools, req.ToolChoice)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, c.contentConfig(toolDecls, toolCfg))
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("google_chat_error")
		return llm.ChatResponse{}, classifyErr(c.id, err)
	}

	msg, err := messageFromResponse(resp)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	log.Debug().Str("model", model).Dur("duration", dur).Int("tool_calls", len(msg.ToolCalls)).Msg("google_chat_ok")

	return llm.ChatResponse{
		Message:   msg,
		Usage:     llm.Usage(usage),
		ModelUsed: model,
	}, nil
}

// Usage mirrors llm.Usage; kept as a distinct type only to give the
// UsageMetadata conversion above a name.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	model := c.pickModel(req.Model)
	log := observability.LoggerWithTrace(ctx)

	contents, err := toContents(req.Messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	toolDecls, toolCfg, err := adaptTools(req.Tools, req.ToolChoice)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	stream := c.client.Models.GenerateContentStream(ctx, model, contents, c.contentConfig(toolDecls, toolCfg))

	var sb strings.Builder
	var calls []llm.ToolCall
	var usage llm.Usage
	for resp, err := range stream {
		if err != nil {
			log.Error().Err(err).Str("model", model).Msg("google_stream_error")
			return llm.ChatResponse{}, classifyErr(c.id, err)
		}
		msg, skip, err := messageFromStreamResponse(resp)
		if err != nil {
			return llm.ChatResponse{}, err
		}
		if skip {
			continue
		}
		if msg.Content != "" {
			sb.WriteString(msg.Content)
			if h != nil {
				h.OnDelta(msg.Content)
			}
		}
		for _, tc := range msg.ToolCalls {
			calls = append(calls, tc)
			if h != nil {
				h.OnToolCall(tc)
			}
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	return llm.ChatResponse{
		Message:   llm.Message{Role: llm.RoleAssistant, Content: sb.String(), ToolCalls: calls},
		Usage:     usage,
		ModelUsed: model,
	}, nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) contentConfig(tools []*genai.Tool, toolCfg *genai.ToolConfig) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		HTTPOptions: &c.httpOptions,
		Tools:       tools,
		ToolConfig:  toolCfg,
	}
}

func classifyErr(providerID string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "429") || strings.Contains(strings.ToLower(err.Error()), "resource_exhausted") {
		return &llm.RateLimitError{ProviderID: providerID}
	}
	return err
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("google provider: messages required")
	}
	toolNamesByID := map[string]string{}
	var lastFuncName string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role string
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Name != "" {
					toolNamesByID[tc.ID] = tc.Name
				}
				if tc.Name != "" {
					lastFuncName = tc.Name
				}
			}
		case llm.RoleTool:
			name := toolNamesByID[m.ToolID]
			if name == "" {
				name = lastFuncName
				if name == "" {
					name = "tool_response"
				}
			}
			respMap := map[string]any{}
			if trimmed := strings.TrimSpace(m.Content); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &respMap); err != nil {
					respMap = map[string]any{"output": m.Content}
				}
			}
			part := genai.NewPartFromFunctionResponse(name, respMap)
			part.FunctionResponse.ID = m.ToolID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
			continue
		default:
			return nil, fmt.Errorf("google provider: unsupported role %q", m.Role)
		}

		text := m.Content
		if role == genai.RoleUser && m.Role == llm.RoleSystem {
			text = "[system] " + text
		}
		parts := []*genai.Part{}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		if role == genai.RoleModel {
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if len(tc.Args) > 0 {
					_ = json.Unmarshal(tc.Args, &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func messageFromStreamResponse(resp *genai.GenerateContentResponse) (llm.Message, bool, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Message{}, true, nil
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Message{}, false, fmt.Errorf("request blocked by google: %s", resp.PromptFeedback.BlockReason)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return llm.Message{}, true, nil
	}
	msg, err := extractMessage(candidate)
	if err != nil {
		return llm.Message{}, false, err
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return llm.Message{}, true, nil
	}
	return msg, false, nil
}

func messageFromResponse(resp *genai.GenerateContentResponse) (llm.Message, error) {
	if resp == nil {
		return llm.Message{}, fmt.Errorf("google provider: nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Message{}, fmt.Errorf("request blocked by google: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return llm.Message{}, fmt.Errorf("google provider: no candidates in response")
	}
	return extractMessage(resp.Candidates[0])
}

func extractMessage(candidate *genai.Candidate) (llm.Message, error) {
	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return llm.Message{}, fmt.Errorf("response blocked by safety filters")
	case genai.FinishReasonRecitation:
		return llm.Message{}, fmt.Errorf("response blocked due to recitation")
	case genai.FinishReasonMalformedFunctionCall:
		return llm.Message{}, fmt.Errorf("malformed function call generated by model")
	}
	if candidate.Content == nil {
		return llm.Message{Role: llm.RoleAssistant}, nil
	}
	var sb strings.Builder
	var calls []llm.ToolCall
	callIdx := 0
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			callIdx++
			id := part.FunctionCall.ID
			if strings.TrimSpace(id) == "" {
				id = "call-" + strconv.Itoa(callIdx)
			}
			calls = append(calls, llm.ToolCall{ID: id, Name: part.FunctionCall.Name, Args: args})
		}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: sb.String(), ToolCalls: calls}, nil
}

func adaptTools(schemas []llm.ToolSchema, choice llm.ToolChoice) ([]*genai.Tool, *genai.ToolConfig, error) {
	if len(schemas) == 0 {
		return nil, nil, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		if strings.TrimSpace(s.Name) == "" {
			return nil, nil, fmt.Errorf("google provider: tool name required")
		}
		fd = append(fd, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.Parameters,
		})
	}
	mode := genai.FunctionCallingConfigModeAuto
	if choice == llm.ToolChoiceRequired {
		mode = genai.FunctionCallingConfigModeAny
	} else if choice == llm.ToolChoiceNone {
		mode = genai.FunctionCallingConfigModeNone
	}
	cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	return []*genai.Tool{{FunctionDeclarations: fd}}, cfg, nil
}

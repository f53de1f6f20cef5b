package web

import (
	"context"
	"encoding/json"
	"time"

	"agentcore/internal/tools"
)

type fetchTool struct{}

// NewFetchTool constructs the web_fetch tool (spec §4.E concrete tools).
func NewFetchTool() tools.Tool { return &fetchTool{} }

func (t *fetchTool) Name() string { return "web_fetch" }

func (t *fetchTool) Description() string {
	return "Fetch a web URL over HTTP(S) and return best-effort Markdown (readability extraction when possible)."
}

func (t *fetchTool) Permission() tools.Permission { return tools.AutoApprove }

func (t *fetchTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":             map[string]any{"type": "string", "description": "Absolute URL (http or https)."},
				"timeout_seconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 30, "description": "Overall timeout for the request."},
				"max_bytes":       map[string]any{"type": "integer", "minimum": 1000, "maximum": 8000000, "description": "Maximum response size to read (bytes)."},
				"prefer_readable": map[string]any{"type": "boolean", "description": "Extract main article content when available (default true)."},
			},
			"required": []string{"url"},
		},
	}
}

func (t *fetchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		URL            string `json:"url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		MaxBytes       int64  `json:"max_bytes"`
		PreferReadable *bool  `json:"prefer_readable"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args.URL == "" {
		return map[string]any{"ok": false, "error": "missing url"}, nil
	}

	opts := []Option{}
	if args.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(args.TimeoutSeconds)*time.Second))
	}
	if args.MaxBytes > 0 {
		opts = append(opts, WithMaxBytes(args.MaxBytes))
	}
	preferReadable := true
	if args.PreferReadable != nil {
		preferReadable = *args.PreferReadable
	}
	opts = append(opts, WithPreferReadable(preferReadable))

	f := NewFetcher(opts...)
	res, err := f.FetchMarkdown(ctx, args.URL)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{
		"ok":            true,
		"input_url":     res.InputURL,
		"final_url":     res.FinalURL,
		"status":        res.Status,
		"content_type":  res.ContentType,
		"title":         res.Title,
		"markdown":      res.Markdown,
		"used_readable": res.UsedReadable,
	}, nil
}

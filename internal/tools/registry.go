package tools

import (
	"context"

	"agentcore/internal/llm"
)

// DispatchEvent captures one completed tool call, for callers that want to
// observe every dispatch (e.g. the agent loop's tool_result event emission).
type DispatchEvent struct {
	Call   Call
	Result CallResult
}

type recordingRegistry struct {
	base Registry
	on   func(DispatchEvent)
}

// NewRecordingRegistry wraps an existing Registry and calls on for every
// call completed by ExecuteParallel.
func NewRecordingRegistry(base Registry, on func(DispatchEvent)) Registry {
	if base == nil {
		base = NewRegistry()
	}
	return &recordingRegistry{base: base, on: on}
}

func (r *recordingRegistry) Register(t Tool)                        { r.base.Register(t) }
func (r *recordingRegistry) Schemas() []llm.ToolSchema               { return r.base.Schemas() }
func (r *recordingRegistry) Get(name string) (Tool, bool)            { return r.base.Get(name) }
func (r *recordingRegistry) List(f func(ToolDescriptor) bool) []ToolDescriptor {
	return r.base.List(f)
}

func (r *recordingRegistry) ExecuteParallel(ctx context.Context, calls []Call, ectx ExecContext) []CallResult {
	results := r.base.ExecuteParallel(ctx, calls, ectx)
	if r.on != nil {
		for i, res := range results {
			r.on(DispatchEvent{Call: calls[i], Result: res})
		}
	}
	return results
}

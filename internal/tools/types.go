// Package tools implements the Tool Registry (spec §4.E): named capabilities
// the Agentic Loop can dispatch to, each carrying a JSON schema, a
// permission level, and a synchronous executor. Grounded on the teacher's
// internal/tools/types.go Tool/Registry shape, extended with permission
// levels and a bounded-parallel dispatcher.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agentcore/internal/llm"
	"agentcore/internal/sandbox"
)

// Permission gates how a tool call is allowed to proceed.
type Permission string

const (
	AutoApprove         Permission = "auto_approve"
	RequireConfirmation Permission = "require_confirmation"
	RequireAdmin        Permission = "require_admin"
)

// Tool is an executable capability the agent can call.
type Tool interface {
	Name() string
	Description() string
	Permission() Permission
	JSONSchema() map[string]any
	Call(ctx context.Context, raw json.RawMessage) (any, error)
}

// ToolDescriptor is the read-only summary Registry.List returns.
type ToolDescriptor struct {
	Name        string
	Description string
	Permission  Permission
	Schema      llm.ToolSchema
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// CallResult is the outcome of one dispatched Call.
type CallResult struct {
	ID         string
	Name       string
	Result     string
	IsError    bool
	DurationMS int64
}

// ApprovalFunc resolves a require_confirmation call to an allow/deny
// decision. nil means the calling transport has no channel to solicit one
// (see ExecContext.Approve).
type ApprovalFunc func(ctx context.Context, callID string) (bool, error)

// ExecContext carries per-request state the registry needs to evaluate
// permissions and sandbox a tool's filesystem access.
type ExecContext struct {
	SessionKey string
	UserID     string
	WorkDir    string
	IsAdmin    bool
	// Approve resolves require_confirmation calls. When nil, the sync,
	// non-SSE transport has no way to ever solicit an operator decision,
	// so the call is denied immediately rather than blocking for the full
	// 60s confirmation timeout with nothing that could ever answer it.
	Approve ApprovalFunc
}

const (
	maxParallel     = 5
	perCallDeadline = 25 * time.Second
	approvalTimeout = 60 * time.Second
)

// Registry keeps track of tools and dispatches calls by name.
type Registry interface {
	List(filter func(ToolDescriptor) bool) []ToolDescriptor
	Get(name string) (Tool, bool)
	Register(t Tool)
	Schemas() []llm.ToolSchema
	// ExecuteParallel dispatches calls concurrently (bounded to
	// maxParallel), honoring each tool's permission level, and returns
	// results in the same order as calls.
	ExecuteParallel(ctx context.Context, calls []Call, ectx ExecContext) []CallResult
}

type defaultRegistry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

// NewRegistry returns a basic in-memory registry.
func NewRegistry() Registry {
	return &defaultRegistry{byName: make(map[string]Tool)}
}

func (r *defaultRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[t.Name()] = t
}

func (r *defaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *defaultRegistry) List(filter func(ToolDescriptor) bool) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.byName))
	for _, t := range r.byName {
		d := ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Permission:  t.Permission(),
			Schema: llm.ToolSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  paramsFrom(t.JSONSchema()),
			},
		}
		if filter == nil || filter(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *defaultRegistry) Schemas() []llm.ToolSchema {
	descs := r.List(nil)
	out := make([]llm.ToolSchema, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Schema)
	}
	return out
}

func paramsFrom(schema map[string]any) map[string]any {
	if p, ok := schema["parameters"].(map[string]any); ok {
		return p
	}
	return schema
}

// ExecuteParallel runs calls with at most maxParallel in flight, each bound
// by perCallDeadline, while preserving the input order in the returned
// slice (spec §4.E execute_parallel).
func (r *defaultRegistry) ExecuteParallel(ctx context.Context, calls []Call, ectx ExecContext) []CallResult {
	results := make([]CallResult, len(calls))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, c := range calls {
		i, c := i, c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.executeOne(ctx, c, ectx)
		}()
	}
	wg.Wait()
	return results
}

func (r *defaultRegistry) executeOne(ctx context.Context, c Call, ectx ExecContext) CallResult {
	start := time.Now()
	fail := func(msg string) CallResult {
		return CallResult{ID: c.ID, Name: c.Name, Result: msg, IsError: true, DurationMS: time.Since(start).Milliseconds()}
	}

	t, ok := r.Get(c.Name)
	if !ok {
		return fail(fmt.Sprintf("tool %q not found", c.Name))
	}

	switch t.Permission() {
	case RequireAdmin:
		if !ectx.IsAdmin {
			return fail(fmt.Sprintf("tool %q requires admin session", c.Name))
		}
	case RequireConfirmation:
		allowed, err := resolveApproval(ctx, ectx.Approve, c.ID)
		if err != nil {
			return fail(fmt.Sprintf("approval error: %v", err))
		}
		if !allowed {
			return fail(fmt.Sprintf("tool %q denied (no confirmation)", c.Name))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, perCallDeadline)
	defer cancel()

	if ectx.WorkDir != "" {
		callCtx = sandbox.WithBaseDir(callCtx, ectx.WorkDir)
	}

	val, err := t.Call(callCtx, c.Args)
	if err != nil {
		if callCtx.Err() != nil {
			return fail(fmt.Sprintf("tool %q timed out: %v", c.Name, callCtx.Err()))
		}
		return fail(err.Error())
	}
	b, merr := json.Marshal(val)
	if merr != nil {
		return fail(merr.Error())
	}
	return CallResult{ID: c.ID, Name: c.Name, Result: string(b), DurationMS: time.Since(start).Milliseconds()}
}

func resolveApproval(ctx context.Context, approve ApprovalFunc, callID string) (bool, error) {
	if approve == nil {
		return false, nil
	}
	actx, cancel := context.WithTimeout(ctx, approvalTimeout)
	defer cancel()
	return approve(actx, callID)
}

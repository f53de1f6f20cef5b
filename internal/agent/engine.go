package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"agentcore/internal/agent/prompts"
	"agentcore/internal/config"
	"agentcore/internal/coreerr"
	"agentcore/internal/credits"
	"agentcore/internal/llm"
	"agentcore/internal/memory"
	"agentcore/internal/observability"
	"agentcore/internal/ratelimit"
	"agentcore/internal/session"
	"agentcore/internal/tools"
)

const (
	overallDeadline      = 12 * time.Second
	providerCallDeadline = 60 * time.Second
	rateLimitWindow      = time.Hour
	rateLimitPerHour     = 60
	toolArgsPreviewLen   = 200
	toolResultPreviewLen = 500
)

// ChatProvider is the subset of the Provider Fabric the loop needs: a
// single-call chat plus the default-model resolution used when the caller
// doesn't pin a model. Declared locally (matching internal/memory.Chatter)
// so this package does not import the fabric package directly.
type ChatProvider interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	SmartestModel() (string, error)
}

// Engine drives the agentic loop state machine over its collaborators.
type Engine struct {
	Provider    ChatProvider
	Tools       tools.Registry
	Credits     *credits.Accountant
	Sessions    *session.Store
	Memory      *memory.Store
	RateLimiter ratelimit.Limiter
	SandboxRoot string
	Plans       map[string]config.PlanLimits
}

func (e *Engine) plan(name string) config.PlanLimits {
	if limits, ok := e.Plans[name]; ok {
		return limits
	}
	if limits, ok := e.Plans["free"]; ok {
		return limits
	}
	return config.PlanLimits{MaxIterations: 1, DailyStipend: 0}
}

func sandboxDir(root, sessionKey string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sessionKey)
	return filepath.Join(root, safe)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Run executes one full request through the state machine, emitting events
// via emit in strict order, and returns the synchronous-endpoint Result.
func (e *Engine) Run(ctx context.Context, req Request, emit EmitFunc) (Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	emit(Event{Kind: EventStart, Data: map[string]any{"session_id": req.SessionKey}})

	// --- Preflight -----------------------------------------------------
	if len(req.Message) > 32*1024 {
		err := coreerr.Wrap(coreerr.KindInsufficient, fmt.Errorf("message exceeds 32KiB limit"))
		emit(Event{Kind: EventError, Data: map[string]any{"content": "", "error": "message too long"}})
		return Result{}, err
	}
	if strings.TrimSpace(req.SessionKey) == "" {
		return Result{}, fmt.Errorf("agent: session key is required")
	}

	allowed, err := e.RateLimiter.Check(ctx, "chat:"+req.SessionKey, rateLimitPerHour, rateLimitWindow)
	if err != nil {
		// Fail closed: rate limiting is a critical path (spec §7).
		werr := coreerr.Wrap(coreerr.KindPersistenceUnavailable, err)
		emit(Event{Kind: EventError, Data: map[string]any{"content": "", "error": "rate limiter unavailable"}})
		return Result{}, werr
	}
	if !allowed {
		emit(Event{Kind: EventError, Data: map[string]any{"content": "", "error": "rate limit exceeded", "action": coreerr.Action(coreerr.KindThrottled)}})
		return Result{}, coreerr.Wrap(coreerr.KindThrottled, fmt.Errorf("chat rate limit exceeded for %q", req.SessionKey))
	}

	limits := e.plan(req.Plan)

	if err := e.Credits.PassiveGrant(ctx, req.UserID, req.Plan); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("passive grant failed")
	}

	remaining, err := e.Credits.Remaining(ctx, req.UserID)
	if err != nil {
		emit(Event{Kind: EventError, Data: map[string]any{"content": "", "error": "credit lookup unavailable"}})
		return Result{}, err
	}
	if remaining <= 0 {
		emit(Event{Kind: EventError, Data: map[string]any{"content": "", "error": "insufficient credits", "action": coreerr.Action(coreerr.KindInsufficient)}})
		return Result{}, coreerr.Wrap(coreerr.KindInsufficient, credits.ErrInsufficient)
	}

	// --- Assemble --------------------------------------------------------
	workdir := sandboxDir(e.SandboxRoot, req.SessionKey)

	memCtx, err := e.Memory.ReadContext(ctx, req.UserID)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("memory read_context failed, continuing without it")
	}

	sess, err := e.Sessions.Load(ctx, req.SessionKey)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("session load failed, starting fresh")
		sess = &session.Session{SessionKey: req.SessionKey}
	}

	systemPrompt := prompts.Compose(req.Channel, workdir)
	if strings.TrimSpace(memCtx) != "" {
		systemPrompt += "\n\nUser context:\n" + memCtx
	}

	messages := make([]llm.Message, 0, len(sess.Messages)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, sess.Messages...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	turnMessages := []llm.Message{{Role: llm.RoleUser, Content: req.Message}}

	ectx := tools.ExecContext{
		SessionKey: req.SessionKey,
		UserID:     req.UserID,
		WorkDir:    workdir,
		IsAdmin:    req.IsAdmin,
	}
	if req.Approve != nil {
		ectx.Approve = func(ctx context.Context, callID string) (bool, error) {
			return req.Approve(callID)
		}
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	model := req.Model
	if model == "" {
		if m, err := e.Provider.SmartestModel(); err == nil {
			model = m
		}
	}

	var (
		finalContent     string
		modelUsed        string
		toolsUsedOrdered []string
		toolsUsedSeen    = map[string]struct{}{}
		totalInputTok    int
		totalOutputTok   int
		creditsUsed      int64
		loopErr          error
	)

iterate:
	for iter := 1; iter <= limits.MaxIterations; iter++ {
		if deadlineCtx.Err() != nil {
			break iterate
		}

		available := e.Tools.Schemas()
		emit(Event{Kind: EventThinking, Data: map[string]any{
			"iteration": iter, "max_iter": limits.MaxIterations, "tool_count": len(available),
		}})

		var toolChoice llm.ToolChoice
		var toolSchemas []llm.ToolSchema
		switch {
		case iter == limits.MaxIterations:
			toolChoice, toolSchemas = "", nil
		case iter == 1 && len(available) > 0:
			toolChoice, toolSchemas = llm.ToolChoiceRequired, available
		default:
			toolChoice, toolSchemas = llm.ToolChoiceAuto, available
		}

		provCtx, provCancel := context.WithTimeout(deadlineCtx, providerCallDeadline)
		resp, err := e.Provider.Chat(provCtx, llm.ChatRequest{
			Messages:    messages,
			Tools:       toolSchemas,
			Model:       model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			ToolChoice:  toolChoice,
		})
		provCancel()
		if err != nil {
			kind := coreerr.ClassifyKind(err)
			if kind == coreerr.KindUnknown {
				var rle *llm.RateLimitError
				if errors.As(err, &rle) {
					kind = coreerr.KindProviderRateLimited
				} else {
					kind = coreerr.KindProviderError
				}
			}
			loopErr = coreerr.Wrap(kind, err)
			emit(Event{Kind: EventError, Data: map[string]any{
				"content": finalContent, "error": err.Error(), "action": coreerr.Action(kind),
			}})
			break iterate
		}

		modelUsed = resp.ModelUsed
		if modelUsed == "" {
			modelUsed = model
		}
		totalInputTok += resp.Usage.PromptTokens
		totalOutputTok += resp.Usage.CompletionTokens

		cost := e.Credits.Cost(modelUsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		newRemaining, derr := e.Credits.Deduct(ctx, req.UserID, cost)
		if derr != nil {
			// Insufficient partway: keep whatever assistant text this call
			// produced and stop iterating (spec §4.G Iterate step c).
			finalContent = resp.Message.Content
			// Deduct is atomic-conditional and did not mutate the balance on
			// failure, so remaining still holds the last successful
			// deduct's value rather than zero.
			loopErr = derr
			break iterate
		}
		creditsUsed += cost
		remaining = newRemaining

		assistantMsg := resp.Message
		messages = append(messages, assistantMsg)
		turnMessages = append(turnMessages, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			finalContent = assistantMsg.Content
			break iterate
		}

		for _, tc := range assistantMsg.ToolCalls {
			emit(Event{Kind: EventToolStart, Data: map[string]any{
				"tool": tc.Name, "iteration": iter, "args_preview": preview(string(tc.Args), toolArgsPreviewLen),
			}})
			if _, seen := toolsUsedSeen[tc.Name]; !seen {
				toolsUsedSeen[tc.Name] = struct{}{}
				toolsUsedOrdered = append(toolsUsedOrdered, tc.Name)
			}
			if req.Approve != nil {
				if t, ok := e.Tools.Get(tc.Name); ok && t.Permission() == tools.RequireConfirmation {
					emit(Event{Kind: EventApprovalRequired, Data: map[string]any{
						"tool_call_id": tc.ID, "tool": tc.Name, "message": "confirmation required", "arguments": string(tc.Args),
					}})
				}
			}
		}

		calls := make([]tools.Call, len(assistantMsg.ToolCalls))
		for i, tc := range assistantMsg.ToolCalls {
			calls[i] = tools.Call{ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}

		results := e.Tools.ExecuteParallel(deadlineCtx, calls, ectx)
		for _, r := range results {
			emit(Event{Kind: EventToolResult, Data: map[string]any{
				"tool": r.Name, "result": preview(r.Result, toolResultPreviewLen),
				"iteration": iter, "duration_ms": r.DurationMS, "is_error": r.IsError,
			}})
			toolMsg := llm.Message{Role: llm.RoleTool, ToolID: r.ID, Content: r.Result}
			messages = append(messages, toolMsg)
			turnMessages = append(turnMessages, toolMsg)
		}
	}

	// After a successful chat, re-run the idempotent daily grant (a no-op when
	// the preflight grant above already recorded today) and refresh remaining.
	if loopErr == nil {
		if err := e.Credits.PassiveGrant(ctx, req.UserID, req.Plan); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("passive grant failed")
		} else if r, err := e.Credits.Remaining(ctx, req.UserID); err == nil {
			remaining = r
		}
	}

	// --- Finalize ----------------------------------------------------
	action := ""
	if loopErr != nil {
		action = coreerr.Action(coreerr.ClassifyKind(loopErr))
	}
	emit(Event{Kind: EventContent, Data: map[string]any{
		"content": finalContent, "model_used": modelUsed, "tools_used": toolsUsedOrdered,
		"credits_used": creditsUsed, "credits_remaining": remaining,
	}})
	emit(Event{Kind: EventDone, Data: map[string]any{}})

	// --- Persist (fire-and-forget) --------------------------------------
	if finalContent != "" || len(turnMessages) > 1 {
		assistantTurn := llm.Message{Role: llm.RoleAssistant, Content: finalContent}
		persistMessages := append(append([]llm.Message{}, turnMessages...), assistantTurn)
		userID, sessionKey := req.UserID, req.SessionKey
		userMsg, assistantText := req.Message, finalContent
		go func() {
			bgCtx := context.WithoutCancel(ctx)
			if _, err := e.Sessions.Append(bgCtx, sessionKey, persistMessages...); err != nil {
				observability.LoggerWithTrace(bgCtx).Warn().Err(err).Msg("session append failed")
			}
			turn := fmt.Sprintf("user: %s\nassistant: %s", userMsg, assistantText)
			if err := e.Memory.AppendDaily(bgCtx, userID, turn); err != nil {
				observability.LoggerWithTrace(bgCtx).Warn().Err(err).Msg("memory append_daily failed")
			}
		}()
	}

	result := Result{
		Response:         finalContent,
		SessionID:        req.SessionKey,
		CreditsUsed:      creditsUsed,
		CreditsRemaining: remaining,
		ModelUsed:        modelUsed,
		ToolsUsed:        toolsUsedOrdered,
		InputTokens:      totalInputTok,
		OutputTokens:     totalOutputTok,
		Action:           action,
	}
	return result, loopErr
}

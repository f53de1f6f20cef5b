package gateway

import (
	"context"

	"agentcore/internal/agent"
)

// RunOneShot drives req through the wired Agentic Loop without any SSE
// transport, used by the `chat` CLI subcommand for local smoke testing.
func RunOneShot(ctx context.Context, a *App, req agent.Request) (agent.Result, error) {
	return a.engine.Run(ctx, req, func(agent.Event) {})
}

// Package prompts composes the agentic loop's system prompt (spec §4.G
// Assemble step: "compose the system prompt (channel-specific: web = verbose,
// others = length-capped)"). Grounded on the teacher's
// internal/agent/prompts.DefaultSystemPrompt, trimmed to the tools this
// repository actually registers and generalized across channels instead of
// hard-coding the run_cli/web_search tool names the teacher named directly.
package prompts

import (
	"fmt"
	"strings"
)

// webCapBytes bounds non-web channels (SMS, voice-transcript relays, chat
// widgets embedded in narrow surfaces) to a terser system prompt; the web
// channel gets the full verbose instructions.
const webCapBytes = 600

// Compose returns the system prompt for channel, describing the sandboxed
// working directory every file/shell tool call is confined to.
func Compose(channel, workdir string) string {
	base := fmt.Sprintf(`You are a helpful assistant with access to tools: calculator, file_read, file_write, web_fetch, and (admin sessions only) shell.

Rules:
- Treat any path argument to file_read, file_write, or shell as relative to the sandboxed working directory: %s
- Never attempt to reference an absolute path or escape the working directory; such attempts are rejected.
- shell runs a single command with explicit arguments; there is no pipe, redirect, or shell expansion.
- web_fetch returns best-effort Markdown for a single URL; prefer it over guessing at page content.
- Destructive actions (file_write, shell) require confirmation; explain what you are about to do before relying on the result.
- Use tools only when the answer requires information or action you don't already have; otherwise answer directly.`, workdir)

	if strings.EqualFold(channel, "web") {
		return base + "\n\nYou may give longer, more thorough answers on this channel, including multi-step explanations and formatted output."
	}

	capped := base
	if len(capped) > webCapBytes {
		capped = capped[:webCapBytes]
	}
	return capped + "\n\nKeep answers concise; this channel has limited display space."
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeModelIDOpenAIStripsPrefix(t *testing.T) {
	assert.Equal(t, "gpt-4o", NormalizeModelID("openai", "openai/gpt-4o"))
	assert.Equal(t, "gpt-4o", NormalizeModelID("openai", "gpt-4o"))
}

func TestNormalizeModelIDAnthropicStripsPrefix(t *testing.T) {
	assert.Equal(t, "claude-3-7-sonnet-latest", NormalizeModelID("anthropic", "anthropic/claude-3-7-sonnet-latest"))
	assert.Equal(t, "claude-3-7-sonnet-latest", NormalizeModelID("anthropic", "claude-3-7-sonnet-latest"))
}

func TestNormalizeModelIDGooglePreservesPrefix(t *testing.T) {
	assert.Equal(t, "google/gemini-2.0-flash", NormalizeModelID("google", "gemini-2.0-flash"))
	assert.Equal(t, "google/gemini-2.0-flash", NormalizeModelID("google", "google/gemini-2.0-flash"))
	assert.Equal(t, "google/gemini-2.0-flash", NormalizeModelID("google", "openai/gemini-2.0-flash"))
}

func TestNormalizeModelIDTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "gpt-4o", NormalizeModelID("openai", "  openai/gpt-4o  "))
}

package shelltool

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/internal/sandbox"
)

func TestRunEchoSucceeds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a posix shell environment")
	}
	tool := New(DefaultConfig())
	ctx := sandbox.WithBaseDir(context.Background(), t.TempDir())
	raw, _ := json.Marshal(map[string]any{"command": "echo", "args": []string{"hi"}})
	v, err := tool.Call(ctx, raw)
	require.NoError(t, err)
	res := v.(map[string]any)
	assert.True(t, res["ok"].(bool))
	assert.Contains(t, res["stdout"], "hi")
}

func TestRunBlockedBinaryErrors(t *testing.T) {
	tool := New(DefaultConfig())
	ctx := sandbox.WithBaseDir(context.Background(), t.TempDir())
	raw, _ := json.Marshal(map[string]any{"command": "rm", "args": []string{"-rf", "x"}})
	_, err := tool.Call(ctx, raw)
	assert.Error(t, err)
}

func TestRunWithoutSandboxContextErrors(t *testing.T) {
	tool := New(DefaultConfig())
	raw, _ := json.Marshal(map[string]any{"command": "echo"})
	_, err := tool.Call(context.Background(), raw)
	assert.Error(t, err)
}

func TestPermissionIsRequireAdmin(t *testing.T) {
	tool := New(DefaultConfig())
	assert.EqualValues(t, "require_admin", tool.Permission())
}

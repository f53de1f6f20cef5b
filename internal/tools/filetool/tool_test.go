package filetool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/internal/sandbox"
)

func withSandbox(t *testing.T) (context.Context, string) {
	t.Helper()
	base := t.TempDir()
	return sandbox.WithBaseDir(context.Background(), base), base
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	ctx, _ := withSandbox(t)
	writeTool := NewWriteTool()
	readTool := NewReadTool()

	raw, _ := json.Marshal(map[string]string{"path": "note.txt", "content": "hello world"})
	v, err := writeTool.Call(ctx, raw)
	require.NoError(t, err)
	wres := v.(map[string]any)
	assert.True(t, wres["ok"].(bool))
	assert.True(t, wres["created"].(bool))

	raw, _ = json.Marshal(map[string]string{"path": "note.txt"})
	v, err = readTool.Call(ctx, raw)
	require.NoError(t, err)
	rres := v.(map[string]any)
	assert.True(t, rres["ok"].(bool))
	assert.Equal(t, "hello world", rres["content"])
	assert.Equal(t, "utf-8", rres["encoding"])
}

func TestReadRejectsPathEscapingSandbox(t *testing.T) {
	ctx, _ := withSandbox(t)
	readTool := NewReadTool()
	raw, _ := json.Marshal(map[string]string{"path": "../../etc/passwd"})
	v, err := readTool.Call(ctx, raw)
	require.NoError(t, err)
	res := v.(map[string]any)
	assert.False(t, res["ok"].(bool))
}

func TestWriteRejectsContentOverLimit(t *testing.T) {
	ctx, _ := withSandbox(t)
	writeTool := NewWriteTool()
	big := make([]byte, defaultMaxWriteBytes+1)
	raw, _ := json.Marshal(map[string]string{"path": "big.txt", "content": string(big)})
	v, err := writeTool.Call(ctx, raw)
	require.NoError(t, err)
	res := v.(map[string]any)
	assert.False(t, res["ok"].(bool))
}

func TestWriteRefusesToOverwriteSymlink(t *testing.T) {
	ctx, base := withSandbox(t)
	target := filepath.Join(base, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(base, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	writeTool := NewWriteTool()
	raw, _ := json.Marshal(map[string]string{"path": "link.txt", "content": "y"})
	v, err := writeTool.Call(ctx, raw)
	require.NoError(t, err)
	res := v.(map[string]any)
	assert.False(t, res["ok"].(bool))
}

func TestReadWithoutSandboxContextFails(t *testing.T) {
	readTool := NewReadTool()
	raw, _ := json.Marshal(map[string]string{"path": "note.txt"})
	v, err := readTool.Call(context.Background(), raw)
	require.NoError(t, err)
	res := v.(map[string]any)
	assert.False(t, res["ok"].(bool))
}

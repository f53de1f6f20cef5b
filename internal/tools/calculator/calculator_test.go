package calculator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalBasicPrecedence(t *testing.T) {
	v, err := Eval("(3 + 4) * 2 / 7")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestEvalUnaryMinusAndPower(t *testing.T) {
	v, err := Eval("-2^2")
	require.NoError(t, err)
	assert.Equal(t, -4.0, v)
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := Eval("1/0")
	assert.Error(t, err)
}

func TestEvalMismatchedParens(t *testing.T) {
	_, err := Eval("(1 + 2")
	assert.Error(t, err)
}

func TestCallReturnsResult(t *testing.T) {
	tool := New()
	raw, _ := json.Marshal(map[string]string{"expression": "2 + 2"})
	v, err := tool.Call(context.Background(), raw)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.True(t, m["ok"].(bool))
	assert.Equal(t, 4.0, m["result"])
}

func TestCallInvalidExpressionReturnsOkFalse(t *testing.T) {
	tool := New()
	raw, _ := json.Marshal(map[string]string{"expression": "2 +"})
	v, err := tool.Call(context.Background(), raw)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.False(t, m["ok"].(bool))
}

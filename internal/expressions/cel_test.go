package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/rendis/stateflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELEngine_Evaluate_StateAccess(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	out, err := eng.Evaluate(context.Background(), `state["x"]`, map[string]any{"x": int64(50)})
	require.NoError(t, err)
	assert.Equal(t, int64(50), out)
}

func TestCELEngine_EvaluateBool_Condition(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	ok, err := eng.EvaluateBool(context.Background(), `int(state["x"]) > 100`, map[string]any{"x": 50})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eng.EvaluateBool(context.Background(), `int(state["x"]) > 100`, map[string]any{"x": 150})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCELEngine_EvaluateBool_NonBoolResult(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	_, err = eng.EvaluateBool(context.Background(), `state["x"]`, map[string]any{"x": "nope"})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeExecution, flowErr.Code)
}

func TestCELEngine_Evaluate_CompileError(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	_, err = eng.Evaluate(context.Background(), `state[`, nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestCELEngine_Evaluate_EmptyExpression(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	_, err = eng.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestCELEngine_Evaluate_NilStateDefaultsToEmpty(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	out, err := eng.Evaluate(context.Background(), `"done" in state`, nil)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCELEngine_Cache_Reuse(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	const expression = `int(state["n"]) >= 3`
	for i := 0; i < 5; i++ {
		ok, err := eng.EvaluateBool(context.Background(), expression, map[string]any{"n": i})
		require.NoError(t, err)
		assert.Equal(t, i >= 3, ok)
	}
	assert.Len(t, eng.cache, 1)
}

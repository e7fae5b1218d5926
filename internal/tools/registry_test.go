package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return NewTool(name, "echoes its args", func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})
}

func TestRegistry_Register_Success(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Has("echo"))
}

func TestRegistry_Register_OverwritesDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(NewTool("t", "first", func(_ context.Context, _ map[string]any) (any, error) {
		return "first", nil
	})))
	require.NoError(t, reg.Register(NewTool("t", "second", func(_ context.Context, _ map[string]any) (any, error) {
		return "second", nil
	})))

	assert.Equal(t, 1, reg.Count())
	out, err := reg.Call(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegistry_Register_Nil(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestRegistry_Register_EmptyName(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(echoTool(""))
	require.Error(t, err)
}

func TestRegistry_Call_NotFound(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Call(context.Background(), "missing", nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeToolNotFound, flowErr.Code)
}

func TestRegistry_Call_PropagatesToolError(t *testing.T) {
	reg := NewRegistry(nil)
	boom := errors.New("boom")
	require.NoError(t, reg.Register(NewTool("boom", "", func(_ context.Context, _ map[string]any) (any, error) {
		return nil, boom
	})))

	_, err := reg.Call(context.Background(), "boom", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_List_Sorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(echoTool(name)))
	}

	infos := reg.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "mid", infos[1].Name)
	assert.Equal(t, "zeta", infos[2].Name)
}

func TestRegisterBuiltins_ExpressionTools(t *testing.T) {
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	reg := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(reg, cel, expressions.NewExprEngine(), expressions.NewGoJQEngine()))

	assert.Equal(t, 3, reg.Count())

	out, err := reg.Call(context.Background(), "expr.eval", map[string]any{
		"expression": "v + 1",
		"state":      map[string]any{"v": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, out)

	out, err = reg.Call(context.Background(), "jq", map[string]any{
		"query": ".v * 2",
		"state": map[string]any{"v": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(20), out)

	out, err = reg.Call(context.Background(), "cel", map[string]any{
		"expression": `int(state["v"]) > 5`,
		"state":      map[string]any{"v": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRegisterBuiltins_MissingExpressionArg(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(reg, nil, expressions.NewExprEngine(), nil))

	_, err := reg.Call(context.Background(), "expr.eval", map[string]any{})
	require.Error(t, err)
}

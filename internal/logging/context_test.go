package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithGraphID(ctx, "graph-1")
	ctx = WithNodeID(ctx, "double")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "graph-1", GraphID(ctx))
	assert.Equal(t, "double", NodeID(ctx))
}

func TestContext_EmptyByDefault(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, GraphID(ctx))
	assert.Empty(t, NodeID(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithNodeID(WithRunID(context.Background(), "run-42"), "profile")
	logger.InfoContext(ctx, "step executed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-42", rec["run_id"])
	assert.Equal(t, "profile", rec["node_id"])
	_, hasGraph := rec["graph_id"]
	assert.False(t, hasGraph)
}

func TestCorrelationHandler_WithAttrsPreservesWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("component", "executor"))

	ctx := WithRunID(context.Background(), "run-7")
	logger.InfoContext(ctx, "started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-7", rec["run_id"])
	assert.Equal(t, "executor", rec["component"])
}

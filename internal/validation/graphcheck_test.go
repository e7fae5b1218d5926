package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stateflow/pkg/schema"
)

func TestValidateTopology_UnreachableNode(t *testing.T) {
	def := &schema.GraphDefinition{
		Name:       "g",
		EntryPoint: "a",
		Nodes: []schema.NodeDefinition{
			{ID: "a", Tool: "cel"},
			{ID: "b", Tool: "cel"},
			{ID: "orphan", Tool: "cel"},
		},
		Edges: []schema.EdgeDefinition{
			{From: "a", To: "b"},
		},
	}

	result := validateTopology(def)
	assert.True(t, result.Valid(), "unreachable nodes are warnings, not errors")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "orphan")
}

func TestValidateTopology_ConditionalCycleIsClean(t *testing.T) {
	def := &schema.GraphDefinition{
		Name:       "retry-loop",
		EntryPoint: "work",
		Nodes: []schema.NodeDefinition{
			{ID: "work", Tool: "cel"},
			{ID: "check", Tool: "cel"},
		},
		Edges: []schema.EdgeDefinition{
			{From: "work", To: "check"},
			{From: "check", To: "work", Condition: `state.retries < 3`},
		},
	}

	result := validateTopology(def)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidateTopology_UnconditionalCycleWarns(t *testing.T) {
	def := &schema.GraphDefinition{
		Name:       "spin",
		EntryPoint: "a",
		Nodes: []schema.NodeDefinition{
			{ID: "a", Tool: "cel"},
			{ID: "b", Tool: "cel"},
		},
		Edges: []schema.EdgeDefinition{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	result := validateTopology(def)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "iteration ceiling")
}

func TestValidateTopology_DefaultEntryIsFirstNode(t *testing.T) {
	def := &schema.GraphDefinition{
		Name: "implicit",
		Nodes: []schema.NodeDefinition{
			{ID: "first", Tool: "cel"},
			{ID: "second", Tool: "cel"},
		},
		Edges: []schema.EdgeDefinition{
			{From: "first", To: "second"},
		},
	}

	result := validateTopology(def)
	assert.Empty(t, result.Warnings)
}

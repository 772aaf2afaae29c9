package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/workflow"
)

func TestIterate_SingleContext_WritesPerElementGlobals(t *testing.T) {
	backend := newStoreWithGlobal(t, "wf1", "emails", []any{"a@x.com", "b@x.com"})
	ex := newTestExecutor(backend)

	body := node(2, "record_email", workflow.NodeContext, map[string]any{
		"variables": map[string]any{"last_seen": "{{email}}"},
	})
	loop := node(1, "loop", workflow.NodeIterate, map[string]any{
		"over":     "{{emails}}",
		"variable": "email",
	})
	loop.BodyPositions = []int{2}

	nodes := []*workflow.Node{loop, body}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)

	value, found, err := backend.GetGlobal(context.Background(), "wf1", "last_seen")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b@x.com", value)
}

func TestIterate_OnErrorContinue_RunsEveryElement(t *testing.T) {
	backend := newStoreWithGlobal(t, "wf1", "items", []any{"x", "y"})
	ex := newTestExecutor(backend)

	failing := node(2, "fail_always", workflow.NodeValidation, map[string]any{
		"rules": []any{map[string]any{"type": "unknown_rule"}},
	})
	loop := node(1, "loop", workflow.NodeIterate, map[string]any{
		"over":     "{{items}}",
		"variable": "item",
		"on_error": "continue",
	})
	loop.BodyPositions = []int{2}

	nodes := []*workflow.Node{loop, failing}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)

	reports, ok := report.Results[0].Result.([]iterationReport)
	require.True(t, ok)
	require.Len(t, reports, 2)
	for _, r := range reports {
		require.Equal(t, workflow.StatusError, r.Status)
	}
}

func TestIterate_StopsWithoutOnErrorContinue(t *testing.T) {
	backend := newStoreWithGlobal(t, "wf1", "items", []any{"x", "y"})
	ex := newTestExecutor(backend)

	failing := node(2, "fail_always", workflow.NodeValidation, map[string]any{
		"rules": []any{map[string]any{"type": "unknown_rule"}},
	})
	loop := node(1, "loop", workflow.NodeIterate, map[string]any{
		"over":     "{{items}}",
		"variable": "item",
	})
	loop.BodyPositions = []int{2}

	nodes := []*workflow.Node{loop, failing}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.True(t, report.Halted)
	require.Equal(t, workflow.StatusError, report.Results[0].Status)
}

func TestIterate_RecordMode_BindsCurrentRecord(t *testing.T) {
	backend := newStoreWithRecord(t, "wf1", "user_001", "lead", map[string]any{"name": "Ada"})
	ex := newTestExecutor(backend)

	body := node(2, "greet", workflow.NodeContext, map[string]any{
		"variables": map[string]any{"greeting": "{{current.lead.name}}"},
	})
	loop := node(1, "loop", workflow.NodeIterate, map[string]any{
		"over_records": "user_*",
		"as":           "rec",
	})
	loop.BodyPositions = []int{2}

	nodes := []*workflow.Node{loop, body}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)

	value, found, err := backend.GetGlobal(context.Background(), "wf1", "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Ada", value)
}

func TestRoute_Single_SelectsFirstMatchingCondition(t *testing.T) {
	backend := newStoreWithGlobal(t, "wf1", "status", "active")
	ex := newTestExecutor(backend)

	activeBranch := node(2, "handle_active", workflow.NodeContext, map[string]any{
		"variables": map[string]any{"branch_taken": "active"},
	})
	defaultBranch := node(3, "handle_default", workflow.NodeContext, map[string]any{
		"variables": map[string]any{"branch_taken": "default"},
	})
	route := node(1, "dispatch", workflow.NodeRoute, map[string]any{
		"routes": []any{
			map[string]any{"name": "active", "condition": "status === \"active\"", "branch": "handle_active"},
			map[string]any{"name": "default", "condition": "true", "branch": "handle_default"},
		},
	})
	route.BranchPositions = map[string][]int{"active": {2}, "default": {3}}

	nodes := []*workflow.Node{route, activeBranch, defaultBranch}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)

	value, found, err := backend.GetGlobal(context.Background(), "wf1", "branch_taken")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "active", value)
}

func TestRoute_Collection_PartitionsRecordsByFirstMatch(t *testing.T) {
	backend := newStoreWithRecord(t, "wf1", "user_001", "lead", map[string]any{"status": "qualified"})
	ex := newTestExecutor(backend)

	qualifiedBranch := node(2, "nurture", workflow.NodeContext, map[string]any{
		"variables": map[string]any{"nurtured": "{{route.qualified}}"},
	})
	route := node(1, "dispatch", workflow.NodeRoute, map[string]any{
		"mode": "collection",
		"over": "user_*",
		"routes": []any{
			map[string]any{"name": "qualified", "condition": "current.lead.status === \"qualified\""},
		},
	})
	route.BranchPositions = map[string][]int{"qualified": {2}}

	nodes := []*workflow.Node{route, qualifiedBranch}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)

	value, found, err := backend.GetGlobal(context.Background(), "wf1", "nurtured")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []any{"user_001"}, value)
}

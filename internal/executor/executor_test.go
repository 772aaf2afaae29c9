package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/condition"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/schema"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

func newTestExecutor(backend store.Backend) *Executor {
	return New(backend, resolver.New(backend), schema.New(), condition.New(), nil, nil, nil, nil)
}

func node(pos int, alias string, typ workflow.NodeType, config map[string]any) *workflow.Node {
	return &workflow.Node{Position: pos, Alias: alias, Type: typ, Config: config}
}

func TestExecuteNodes_ContextWritesGlobal(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	nodes := []*workflow.Node{
		node(1, "setup", workflow.NodeContext, map[string]any{
			"variables": map[string]any{"target_url": "https://example.com"},
		}),
	}

	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)
	require.Len(t, report.Results, 1)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)

	value, found, err := backend.GetGlobal(context.Background(), "wf1", "target_url")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "https://example.com", value)
}

func TestExecuteNodes_StopOnErrorSkipsRemaining(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	nodes := []*workflow.Node{
		node(1, "bad", workflow.NodeValidation, map[string]any{
			"rules": []any{map[string]any{"type": "unknown_rule"}},
		}),
		node(2, "after", workflow.NodeContext, map[string]any{
			"variables": map[string]any{"should_not_run": true},
		}),
	}

	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1, 2})
	require.NoError(t, err)
	require.True(t, report.Halted)
	require.Len(t, report.Results, 2)
	require.Equal(t, workflow.StatusError, report.Results[0].Status)
	require.Equal(t, workflow.StatusSkipped, report.Results[1].Status)

	_, found, err := backend.GetGlobal(context.Background(), "wf1", "should_not_run")
	require.NoError(t, err)
	require.False(t, found)
}

func TestExecuteNodes_ConfigStoreWritesNamespacedGlobal(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	// cognition node with no generator will fail, so exercise config.store
	// through a context node whose result we store explicitly isn't
	// possible (context has no result) — use validation's rule results
	// instead, stored under the validation node's own alias namespace.
	nodes := []*workflow.Node{
		node(1, "check", workflow.NodeValidation, map[string]any{
			"rules": []any{},
			"store": true,
		}),
	}

	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)

	ns, found, err := backend.GetGlobal(context.Background(), "wf1", "check")
	require.NoError(t, err)
	require.True(t, found)
	asMap, ok := ns.(map[string]any)
	require.True(t, ok)
	require.Contains(t, asMap, "result")
}

func TestExecuteNodes_UnresolvedTemplateIsFatal(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	nodes := []*workflow.Node{
		node(1, "setup", workflow.NodeContext, map[string]any{
			"variables": map[string]any{"x": "{{missing_global}}"},
		}),
	}

	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1})
	require.NoError(t, err)
	require.True(t, report.Halted)
	require.Equal(t, workflow.StatusError, report.Results[0].Status)
}

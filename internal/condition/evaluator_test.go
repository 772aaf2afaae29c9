package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/store"
)

func newScope(t *testing.T, backend store.Backend, workflowID string) resolver.Scope {
	t.Helper()
	return resolver.Scope{WorkflowID: workflowID}
}

func TestEvaluate_TrueFalseLiterals(t *testing.T) {
	e := New()
	backend := store.NewMemory()
	res := resolver.New(backend)
	scope := newScope(t, backend, "wf1")

	ok, err := e.Evaluate(context.Background(), res, scope, "true")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(context.Background(), res, scope, "false")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_StrictEquality(t *testing.T) {
	e := New()
	backend := store.NewMemory()
	require.NoError(t, backend.SetGlobal(context.Background(), "wf1", "priority", "high"))
	res := resolver.New(backend)
	scope := newScope(t, backend, "wf1")

	ok, err := e.Evaluate(context.Background(), res, scope, "{{priority}} === 'high'")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(context.Background(), res, scope, "priority === 'low'")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_NumericComparison(t *testing.T) {
	e := New()
	backend := store.NewMemory()
	require.NoError(t, backend.SetGlobal(context.Background(), "wf1", "count", 5.0))
	res := resolver.New(backend)
	scope := newScope(t, backend, "wf1")

	ok, err := e.Evaluate(context.Background(), res, scope, "count > 3")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(context.Background(), res, scope, "count <= 3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_Includes(t *testing.T) {
	e := New()
	backend := store.NewMemory()
	require.NoError(t, backend.SetGlobal(context.Background(), "wf1", "tags", []any{"a", "b", "c"}))
	res := resolver.New(backend)
	scope := newScope(t, backend, "wf1")

	ok, err := e.Evaluate(context.Background(), res, scope, "tags includes 'b'")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(context.Background(), res, scope, "tags includes 'z'")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_MalformedGrammarErrors(t *testing.T) {
	e := New()
	backend := store.NewMemory()
	res := resolver.New(backend)
	scope := newScope(t, backend, "wf1")

	_, err := e.Evaluate(context.Background(), res, scope, "just a bare string")
	require.Error(t, err)
}

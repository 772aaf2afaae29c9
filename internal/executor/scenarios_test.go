package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/browser"
	"github.com/weavegraph/core/internal/condition"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/schema"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

// scenarioDriver and scenarioPage are the minimal browser.Driver/Page fakes
// needed to exercise browser_ai_extract without a real browser: every page
// returns the same fixed snapshot and URL and an empty title.
type scenarioDriver struct{}

func (scenarioDriver) NewPage(ctx context.Context) (browser.Page, error) {
	return &scenarioPage{}, nil
}
func (scenarioDriver) Close(ctx context.Context) error { return nil }

type scenarioPage struct{ browser.Page }

func (scenarioPage) Snapshot(ctx context.Context) (string, error) { return "<html></html>", nil }
func (scenarioPage) URL() string                                  { return "https://example.com" }
func (scenarioPage) Title(ctx context.Context) (string, error)    { return "", nil }

// scenarioGenerator returns one canned value per call, in order, so each
// AI-backed node in a scenario gets the response the scenario specifies.
type scenarioGenerator struct {
	responses []any
	calls     int
}

func (g *scenarioGenerator) Generate(ctx context.Context, instruction string, inputs, schemaDoc map[string]any) (any, error) {
	r := g.responses[g.calls]
	g.calls++
	return r, nil
}

func newScenarioExecutor(t *testing.T, backend store.Backend, generator *scenarioGenerator) *Executor {
	t.Helper()
	var session *browser.Session
	if generator != nil {
		var err error
		session, err = browser.New(context.Background(), "wf1", scenarioDriver{}, backend, nil, generator)
		require.NoError(t, err)
	}
	return New(backend, resolver.New(backend), schema.New(), condition.New(), session, generator, nil, nil)
}

// Scenario 1: context + template, spec.md §8.1.
func TestScenario_ContextAndTemplate(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	nodes := []*workflow.Node{
		node(1, "N1", workflow.NodeContext, map[string]any{
			"variables": map[string]any{"apiKey": "sk-123", "max": 3},
		}),
		node(2, "N2", workflow.NodeContext, map[string]any{
			"variables": map[string]any{"label": "key={{apiKey}}"},
		}),
	}

	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1, 2})
	require.NoError(t, err)
	require.False(t, report.Halted)

	apiKey, _, _ := backend.GetGlobal(context.Background(), "wf1", "apiKey")
	max, _, _ := backend.GetGlobal(context.Background(), "wf1", "max")
	label, _, _ := backend.GetGlobal(context.Background(), "wf1", "label")
	require.Equal(t, "sk-123", apiKey)
	require.Equal(t, 3, max)
	require.Equal(t, "key=sk-123", label)
}

// Scenario 2: extraction + records + iteration, spec.md §8.2.
func TestScenario_ExtractionRecordsAndIteration(t *testing.T) {
	backend := store.NewMemory()
	extracted := []any{
		map[string]any{"subject": "A", "sender": "x@y"},
		map[string]any{"subject": "B", "sender": "z@w"},
	}
	generator := &scenarioGenerator{responses: []any{
		extracted,
		"investor",
		"other",
	}}
	ex := newScenarioExecutor(t, backend, generator)

	n1 := node(1, "N1", workflow.NodeBrowserAIExt, map[string]any{
		"instruction":    "extract emails",
		"schema":         map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		"create_records": "email",
	})
	loop := node(2, "N2", workflow.NodeIterate, map[string]any{
		"over_records": "email_*",
		"as":           "email",
	})
	n3 := node(3, "N3", workflow.NodeCognition, map[string]any{
		"instruction":     "classify email",
		"schema":          map[string]any{"type": "string", "enum": []any{"investor", "other"}},
		"store_to_record": true,
		"store":           map[string]any{"type": "result"},
	})
	loop.BodyPositions = []int{3}

	nodes := []*workflow.Node{n1, loop, n3}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1, 2})
	require.NoError(t, err)
	require.False(t, report.Halted)

	for _, id := range []string{"email_001", "email_002"} {
		rec, found, err := backend.GetRecord(context.Background(), "wf1", id)
		require.NoError(t, err)
		require.True(t, found)
		n3Data := rec.Data["N3"]
		require.Contains(t, []any{"investor", "other"}, n3Data["type"])
	}

	_, found, err := backend.GetGlobal(context.Background(), "wf1", "N3")
	require.NoError(t, err)
	require.False(t, found, "store_to_record must not leak into globals")
}

// Scenario 3: route with default, spec.md §8.3.
func TestScenario_RouteWithDefault(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	branchA := node(10, "A", workflow.NodeContext, map[string]any{"variables": map[string]any{"ran": "A"}})
	branchB := node(11, "B", workflow.NodeContext, map[string]any{"variables": map[string]any{"ran": "B"}})
	branchC := node(12, "C", workflow.NodeContext, map[string]any{"variables": map[string]any{"ran": "C"}})

	n1 := node(1, "N1", workflow.NodeContext, map[string]any{"variables": map[string]any{"priority": "low"}})
	n2 := node(2, "N2", workflow.NodeRoute, map[string]any{
		"routes": []any{
			map[string]any{"name": "h", "condition": "priority === 'high'", "branch": "A"},
			map[string]any{"name": "l", "condition": "priority === 'low'", "branch": "B"},
			map[string]any{"name": "d", "condition": "true", "branch": "C"},
		},
	})
	n2.BranchPositions = map[string][]int{"h": {10}, "l": {11}, "d": {12}}

	nodes := []*workflow.Node{n1, n2, branchA, branchB, branchC}
	report, err := ex.ExecuteNodes(context.Background(), "wf1", nodes, []int{1, 2})
	require.NoError(t, err)
	require.False(t, report.Halted)

	ran, found, err := backend.GetGlobal(context.Background(), "wf1", "ran")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "B", ran)
}

// Scenario 4: coercion, object -> array, spec.md §8.4.
func TestScenario_ObjectToArrayCoercion(t *testing.T) {
	backend := store.NewMemory()
	generator := &scenarioGenerator{responses: []any{
		map[string]any{"0": "x", "1": "y"},
	}}
	ex := newScenarioExecutor(t, backend, generator)

	n1 := node(1, "N1", workflow.NodeCognition, map[string]any{
		"instruction": "list items",
		"schema":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"store":       true,
	})

	report, err := ex.ExecuteNodes(context.Background(), "wf1", []*workflow.Node{n1}, []int{1})
	require.NoError(t, err)
	require.False(t, report.Halted)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)

	stored, found, err := backend.GetGlobal(context.Background(), "wf1", "N1")
	require.NoError(t, err)
	require.True(t, found)
	ns, ok := stored.(map[string]any)
	require.True(t, ok)
	require.Equal(t, []any{"x", "y"}, ns["result"])
}

// Scenario 6: stop-on-error, spec.md §8.6.
func TestScenario_StopOnErrorPreservesEarlierMutations(t *testing.T) {
	backend := store.NewMemory()
	ex := newTestExecutor(backend)

	n1 := node(1, "N1", workflow.NodeContext, map[string]any{"variables": map[string]any{"seen": true}})
	n2 := node(2, "N2", workflow.NodeBrowserAction, map[string]any{"action": "click", "selector": "#missing"})
	n3 := node(3, "N3", workflow.NodeContext, map[string]any{"variables": map[string]any{"unreachable": true}})

	report, err := ex.ExecuteNodes(context.Background(), "wf1", []*workflow.Node{n1, n2, n3}, []int{1, 2, 3})
	require.NoError(t, err)
	require.True(t, report.Halted)
	require.Equal(t, workflow.StatusSuccess, report.Results[0].Status)
	require.Equal(t, workflow.StatusError, report.Results[1].Status)
	require.Equal(t, workflow.StatusSkipped, report.Results[2].Status)

	seen, found, _ := backend.GetGlobal(context.Background(), "wf1", "seen")
	require.True(t, found)
	require.Equal(t, true, seen)

	_, found, _ = backend.GetGlobal(context.Background(), "wf1", "unreachable")
	require.False(t, found)
}

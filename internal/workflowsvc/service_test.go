package workflowsvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/bootstrap"
	"github.com/weavegraph/core/internal/workflow"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	components, err := bootstrap.Setup(context.Background(), "workflowsvc-test",
		bootstrap.WithMemoryStore(), bootstrap.WithoutRedis(), bootstrap.WithCustomAI(ai.TextGenerator(stubGenerator{})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })
	return New(components)
}

func TestAddOrReplaceNodes_AppendsAndAssignsAlias(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	nodes, err := svc.AddOrReplaceNodes(ctx, "wf-1", AddOrReplaceNodesRequest{
		Target: "end",
		Nodes: []*workflow.Node{
			{Type: workflow.NodeContext, Config: map[string]any{"set": map[string]any{"greeting": "hi"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.NotEmpty(t, nodes[0].Alias)
}

func TestDeleteNodes_RemovesByPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	nodes, err := svc.AddOrReplaceNodes(ctx, "wf-2", AddOrReplaceNodesRequest{
		Target: "end",
		Nodes: []*workflow.Node{
			{Type: workflow.NodeContext, Config: map[string]any{"set": map[string]any{"a": 1}}},
			{Type: workflow.NodeContext, Config: map[string]any{"set": map[string]any{"b": 2}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	remaining, err := svc.DeleteNodes(ctx, "wf-2", []any{float64(nodes[0].Position)})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestSetVariable_RoundTripsThroughGetWorkflowData(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetVariable(ctx, "wf-3", "city", "Boston"))

	resp, err := svc.GetWorkflowData(ctx, "wf-3", GetWorkflowDataRequest{Bucket: "global"})
	require.NoError(t, err)
	globals, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Boston", globals["city"])
	require.NotEmpty(t, resp.Rendered)
}

func TestClearVariable_RemovesIt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetVariable(ctx, "wf-4", "temp", 42))
	require.NoError(t, svc.ClearVariable(ctx, "wf-4", "temp"))

	resp, err := svc.GetWorkflowData(ctx, "wf-4", GetWorkflowDataRequest{Bucket: "global"})
	require.NoError(t, err)
	globals := resp.Data.(map[string]any)
	_, found := globals["temp"]
	require.False(t, found)
}

func TestUpdatePlan_ReturnsSavedPlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	plan, err := svc.UpdatePlan(ctx, "wf-5", UpdatePlanRequest{
		Phases: []workflow.PlanPhase{{Name: "collect leads"}},
		Reason: "initial plan",
	})
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Phases, 1)
}

func TestUpdateWorkflowDescription_ReturnsVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	version, err := svc.UpdateWorkflowDescription(ctx, "wf-6", "scrapes leads from a directory", "clarify scope")
	require.NoError(t, err)
	require.Equal(t, "scrapes leads from a directory", version.Text)
}

func TestGetWorkflowData_UnknownRecordReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetWorkflowData(ctx, "wf-7", GetWorkflowDataRequest{Bucket: "missing-record"})
	require.Error(t, err)
}

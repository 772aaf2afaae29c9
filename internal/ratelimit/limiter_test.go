package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weavegraph/core/internal/workflow"
)

func node(t workflow.NodeType) *workflow.Node {
	return &workflow.Node{Type: t}
}

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		name  string
		nodes []*workflow.Node
		want  Tier
	}{
		{
			name:  "no nodes is simple",
			nodes: nil,
			want:  TierSimple,
		},
		{
			name: "only non-AI nodes is simple",
			nodes: []*workflow.Node{
				node(workflow.NodeBrowserAction),
				node(workflow.NodeBrowserQuery),
				node(workflow.NodeRoute),
			},
			want: TierSimple,
		},
		{
			name: "one AI-calling node is standard",
			nodes: []*workflow.Node{
				node(workflow.NodeBrowserAction),
				node(workflow.NodeCognition),
			},
			want: TierStandard,
		},
		{
			name: "two AI-calling nodes is still standard",
			nodes: []*workflow.Node{
				node(workflow.NodeCognition),
				node(workflow.NodeBrowserAIExt),
			},
			want: TierStandard,
		},
		{
			name: "three AI-calling nodes is heavy",
			nodes: []*workflow.Node{
				node(workflow.NodeCognition),
				node(workflow.NodeBrowserAIExt),
				node(workflow.NodeBrowserAIAct),
			},
			want: TierHeavy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTier(tt.nodes))
		})
	}
}

func TestCheckExecute_NilClientAlwaysAllows(t *testing.T) {
	l := New(nil)

	result, err := l.CheckExecute(context.Background(), "wf-1", TierHeavy)

	assert.NoError(t, err)
	assert.True(t, result.Allowed)
}

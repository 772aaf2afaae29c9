package alias

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/workflow"
)

func node(pos int, alias string, typ workflow.NodeType) *workflow.Node {
	return &workflow.Node{Position: pos, Alias: alias, Type: typ, Config: map[string]any{}}
}

func TestNew_DuplicateAliasFails(t *testing.T) {
	_, err := New([]*workflow.Node{
		node(1, "a", workflow.NodeContext),
		node(2, "a", workflow.NodeContext),
	})
	require.Error(t, err)
}

func TestResolveTarget_End(t *testing.T) {
	idx, err := New([]*workflow.Node{node(1, "a", workflow.NodeContext)})
	require.NoError(t, err)
	target, err := idx.ResolveTarget("end")
	require.NoError(t, err)
	require.True(t, target.Append)
}

func TestResolveTarget_Alias(t *testing.T) {
	idx, err := New([]*workflow.Node{
		node(1, "a", workflow.NodeContext),
		node(2, "b", workflow.NodeContext),
	})
	require.NoError(t, err)
	target, err := idx.ResolveTarget("b")
	require.NoError(t, err)
	require.Equal(t, 1, target.InsertBefore)
}

func TestApplyInsert_AppendsAndRenumbers(t *testing.T) {
	idx, err := New([]*workflow.Node{node(1, "a", workflow.NodeContext)})
	require.NoError(t, err)
	target, err := idx.ResolveTarget("end")
	require.NoError(t, err)
	err = idx.ApplyInsert(target, []*workflow.Node{node(0, "b", workflow.NodeContext)})
	require.NoError(t, err)
	require.Len(t, idx.Nodes(), 2)
	pos, err := idx.PositionOf("b")
	require.NoError(t, err)
	require.Equal(t, 2, pos)
}

func TestApplyInsert_DuplicateAliasRejected(t *testing.T) {
	idx, err := New([]*workflow.Node{node(1, "a", workflow.NodeContext)})
	require.NoError(t, err)
	target, _ := idx.ResolveTarget("end")
	err = idx.ApplyInsert(target, []*workflow.Node{node(0, "a", workflow.NodeContext)})
	require.Error(t, err)
}

func TestParseSelection_All(t *testing.T) {
	idx, err := New([]*workflow.Node{
		node(1, "a", workflow.NodeContext),
		node(2, "b", workflow.NodeContext),
	})
	require.NoError(t, err)
	positions, err := idx.ParseSelection("all")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, positions)
}

func TestParseSelection_AliasRangeAndDedup(t *testing.T) {
	idx, err := New([]*workflow.Node{
		node(1, "a", workflow.NodeContext),
		node(2, "b", workflow.NodeContext),
		node(3, "c", workflow.NodeContext),
	})
	require.NoError(t, err)
	positions, err := idx.ParseSelection("a..b, b, 3")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, positions)
}

func TestParseSelection_InvertedRangeFails(t *testing.T) {
	idx, err := New([]*workflow.Node{
		node(1, "a", workflow.NodeContext),
		node(2, "b", workflow.NodeContext),
	})
	require.NoError(t, err)
	_, err = idx.ParseSelection("b..a")
	require.Error(t, err)
}

func TestReresolve_IterateBody(t *testing.T) {
	iter := node(1, "loop", workflow.NodeIterate)
	iter.Config["body"] = []any{"step1", "step2"}
	idx, err := New([]*workflow.Node{
		iter,
		node(2, "step1", workflow.NodeContext),
		node(3, "step2", workflow.NodeContext),
	})
	require.NoError(t, err)
	target, _ := idx.ResolveTarget("end")
	err = idx.ApplyInsert(target, []*workflow.Node{node(0, "tail", workflow.NodeContext)})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, iter.BodyPositions)
}

// TestReresolve_MidInsertShiftsOnlyAffectedBodyPosition reproduces spec.md
// §8 scenario 5 exactly: an iterate body ["a","b"] starts with a at
// position 5 and b at position 6; inserting "c" at position 6 shifts b to
// 7 and leaves a untouched. body_positions must become [5,7] while the
// symbolic body ["a","b"] is unchanged, and execution order still
// resolves to a then b.
func TestReresolve_MidInsertShiftsOnlyAffectedBodyPosition(t *testing.T) {
	iter := node(1, "loop", workflow.NodeIterate)
	iter.Config["body"] = []any{"a", "b"}
	idx, err := New([]*workflow.Node{
		iter,
		node(2, "filler1", workflow.NodeContext),
		node(3, "filler2", workflow.NodeContext),
		node(4, "filler3", workflow.NodeContext),
		node(5, "a", workflow.NodeContext),
		node(6, "b", workflow.NodeContext),
	})
	require.NoError(t, err)

	target, err := idx.ResolveTarget(6)
	require.NoError(t, err)
	err = idx.ApplyInsert(target, []*workflow.Node{node(0, "c", workflow.NodeContext)})
	require.NoError(t, err)

	require.Equal(t, []any{"a", "b"}, iter.Config["body"])
	require.Equal(t, []int{5, 7}, iter.BodyPositions)

	bPos, err := idx.PositionOf("b")
	require.NoError(t, err)
	require.Equal(t, 7, bPos)
}

package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

func newStoreWithGlobal(t *testing.T, workflowID, key string, value any) *store.Memory {
	t.Helper()
	backend := store.NewMemory()
	require.NoError(t, backend.SetGlobal(context.Background(), workflowID, key, value))
	return backend
}

func newStoreWithRecord(t *testing.T, workflowID, recordID, alias string, fields map[string]any) *store.Memory {
	t.Helper()
	backend := store.NewMemory()
	rec := &workflow.Record{
		RecordID:   recordID,
		RecordType: "lead",
		Data:       map[string]map[string]any{alias: fields},
		Status:     workflow.RecordDiscovered,
	}
	require.NoError(t, backend.CreateRecord(context.Background(), workflowID, rec))
	return backend
}

// Package store implements the Store component: a workflow-scoped
// key/value map (global) plus a persistent records map, with description
// and plan versioning on top. Any failure from Backend is fatal to the
// calling node, per the engine's error-handling contract.
package store

import (
	"context"

	"github.com/weavegraph/core/internal/workflow"
)

// Backend is the persistence contract the executor depends on. It is
// implemented by Postgres in production (see postgres.go) and by an
// in-memory fake in tests (see memory.go), so the executor never binds
// to a concrete database.
type Backend interface {
	// Global bucket.
	GetGlobal(ctx context.Context, workflowID, key string) (any, bool, error)
	SetGlobal(ctx context.Context, workflowID, key string, value any) error
	DeleteGlobal(ctx context.Context, workflowID, key string) error
	ClearAllGlobals(ctx context.Context, workflowID string) error
	ScanGlobals(ctx context.Context, workflowID, prefix string) (map[string]any, error)

	// Records bucket.
	CreateRecord(ctx context.Context, workflowID string, record *workflow.Record) error
	GetRecord(ctx context.Context, workflowID, recordID string) (*workflow.Record, bool, error)
	// UpdateRecord merges fields into data[nodeAlias] and optionally
	// updates status/error_message.
	UpdateRecord(ctx context.Context, workflowID, recordID, nodeAlias string, fields map[string]any, status *workflow.RecordStatus, errMsg *string) error
	ListRecords(ctx context.Context, workflowID, pattern string) ([]*workflow.Record, error)

	// Workflow nodes.
	GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error)
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// Description & plan versioning.
	GetDescription(ctx context.Context, workflowID string) (*workflow.DescriptionVersion, error)
	SetDescription(ctx context.Context, workflowID, text, reason string) (*workflow.DescriptionVersion, error)
	GetPlan(ctx context.Context, workflowID string) (*workflow.Plan, error)
	AppendPlanVersion(ctx context.Context, workflowID string, plan *workflow.Plan) (*workflow.Plan, error)

	// Browser state.
	GetBrowserState(ctx context.Context, workflowID string) (*workflow.BrowserState, error)
	SaveBrowserState(ctx context.Context, workflowID string, state *workflow.BrowserState) error
}

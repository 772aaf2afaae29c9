package observability

import (
	"context"
	"fmt"

	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

// PlanTracker wraps Store's plan/description versioning and publishes
// the plan_updated event spec.md §6 requires after every append.
type PlanTracker struct {
	backend store.Backend
	bus     *Bus
}

// NewPlanTracker creates a PlanTracker.
func NewPlanTracker(backend store.Backend, bus *Bus) *PlanTracker {
	return &PlanTracker{backend: backend, bus: bus}
}

// UpdatePlan appends a new plan version and emits plan_updated.
func (t *PlanTracker) UpdatePlan(ctx context.Context, workflowID string, phases []workflow.PlanPhase, reason string) (*workflow.Plan, error) {
	plan := &workflow.Plan{Phases: phases, Reason: reason}
	saved, err := t.backend.AppendPlanVersion(ctx, workflowID, plan)
	if err != nil {
		return nil, fmt.Errorf("append plan version: %w", err)
	}
	if t.bus != nil {
		_ = t.bus.Publish(ctx, workflowID, "plan_updated", saved)
	}
	return saved, nil
}

// UpdateDescription appends a new description version. Unlike plan
// updates, description changes have no dedicated streamed event in
// spec.md §6; they're surfaced through get_workflow_data instead.
func (t *PlanTracker) UpdateDescription(ctx context.Context, workflowID, text, reason string) (*workflow.DescriptionVersion, error) {
	return t.backend.SetDescription(ctx, workflowID, text, reason)
}

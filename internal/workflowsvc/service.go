// Package workflowsvc implements the command layer behind every external
// interface command in spec.md §6: structural edits (add_or_replace_nodes,
// delete_nodes), execution (execute_nodes), store introspection/mutation
// (get_workflow_data, set/clear_variable), plan/description updates, and
// the browser debug/inspection commands. Grounded on the teacher's
// service layer (cmd/orchestrator/service/*.go): one struct per bounded
// concern, constructed with its collaborators, called from a thin echo
// handler.
package workflowsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/weavegraph/core/internal/alias"
	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/bootstrap"
	"github.com/weavegraph/core/internal/locking"
	"github.com/weavegraph/core/internal/ratelimit"
	"github.com/weavegraph/core/internal/render"
	"github.com/weavegraph/core/internal/workflow"
)

// Service is the single entry point cmd/engine's handlers call into.
type Service struct {
	components *bootstrap.Components
}

// New creates a Service bound to an already-bootstrapped Components.
func New(components *bootstrap.Components) *Service {
	return &Service{components: components}
}

func (s *Service) loadIndex(ctx context.Context, workflowID string) (*alias.Index, error) {
	wf, err := s.components.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "load workflow", err)
	}
	if wf == nil {
		wf = &workflow.Workflow{ID: workflowID}
	}
	return alias.New(wf.Nodes)
}

func (s *Service) saveIndex(ctx context.Context, workflowID string, idx *alias.Index) error {
	wf := &workflow.Workflow{ID: workflowID, Nodes: idx.Nodes()}
	if err := s.components.Store.SaveWorkflow(ctx, wf); err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "save workflow", err)
	}
	return nil
}

// AddOrReplaceNodesRequest is the add_or_replace_nodes command body.
type AddOrReplaceNodesRequest struct {
	Target any              `json:"target" validate:"required"`
	Nodes  []*workflow.Node `json:"nodes" validate:"required,min=1"`
}

// AddOrReplaceNodes resolves target against the current alias index and
// splices nodes in, per spec.md §4.4. Structural errors (duplicate
// alias, invalid target) are rejected before any store write.
func (s *Service) AddOrReplaceNodes(ctx context.Context, workflowID string, req AddOrReplaceNodesRequest) ([]*workflow.Node, error) {
	idx, err := s.loadIndex(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	target, err := idx.ResolveTarget(req.Target)
	if err != nil {
		return nil, err
	}
	if err := idx.ApplyInsert(target, req.Nodes); err != nil {
		return nil, err
	}
	if err := s.saveIndex(ctx, workflowID, idx); err != nil {
		return nil, err
	}
	return idx.Nodes(), nil
}

// DeleteNodes removes the nodes named by nodeIDs (alias or position).
func (s *Service) DeleteNodes(ctx context.Context, workflowID string, nodeIDs []any) ([]*workflow.Node, error) {
	idx, err := s.loadIndex(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	positions := make([]int, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		switch v := id.(type) {
		case string:
			pos, err := idx.PositionOf(v)
			if err != nil {
				return nil, err
			}
			positions = append(positions, pos)
		case float64:
			positions = append(positions, int(v))
		case int:
			positions = append(positions, v)
		default:
			return nil, apierr.New(apierr.CodeInvalidAlias, fmt.Sprintf("invalid node id: %v", id))
		}
	}
	if err := idx.ApplyDelete(positions); err != nil {
		return nil, err
	}
	if err := s.saveIndex(ctx, workflowID, idx); err != nil {
		return nil, err
	}
	return idx.Nodes(), nil
}

// ExecuteNodesRequest is the execute_nodes command body.
type ExecuteNodesRequest struct {
	Selection         string `json:"selection" validate:"required"`
	ResetBrowserFirst bool   `json:"reset_browser_first"`
}

// ExecuteNodes enforces the single-flight-per-workflow lock (spec.md §5),
// optionally resets the browser, and runs the selected nodes through the
// Executor.
func (s *Service) ExecuteNodes(ctx context.Context, workflowID string, req ExecuteNodesRequest) (*workflow.ExecutionReport, error) {
	lock, err := s.components.Locking.Acquire(ctx, workflowID)
	if err != nil {
		if errors.Is(err, locking.ErrBusy) {
			return nil, apierr.New(apierr.CodeBusy, "workflow already executing")
		}
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "acquire execution lock", err)
	}
	defer lock.Release(ctx)

	idx, err := s.loadIndex(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	positions, err := idx.ParseSelection(req.Selection)
	if err != nil {
		return nil, err
	}

	tier := ratelimit.ClassifyTier(idx.Nodes())
	limit, err := s.components.RateLimit.CheckExecute(ctx, workflowID, tier)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "check rate limit", err)
	}
	if !limit.Allowed {
		return nil, apierr.New(apierr.CodeRateLimited, fmt.Sprintf("execute_nodes rate limit exceeded for %s workflows, retry in %ds", tier, limit.RetryAfterSeconds))
	}

	exec, err := s.components.ExecutorFor(ctx, workflowID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "acquire browser session", err)
	}

	if req.ResetBrowserFirst {
		if err := exec.ResetBrowser(ctx); err != nil {
			return nil, apierr.Wrap(apierr.CodeNavigationFailed, "reset browser", err)
		}
	}

	report, err := exec.ExecuteNodes(ctx, workflowID, idx.Nodes(), positions)
	if err != nil {
		return nil, err
	}
	for _, result := range report.Results {
		_ = s.components.Bus.Publish(ctx, workflowID, "node_executed", result)
	}
	return report, nil
}

// GetWorkflowDataRequest is the get_workflow_data command body.
type GetWorkflowDataRequest struct {
	Bucket  string `json:"bucket"`
	Pattern string `json:"pattern"`
}

// GetWorkflowDataResponse carries both the raw structured slice and the
// LLM-context-sized rendering of it.
type GetWorkflowDataResponse struct {
	Data     any    `json:"data"`
	Rendered string `json:"rendered"`
}

// GetWorkflowData reads global/record data per bucket and renders a
// truncated, LLM-context-sized JSON view alongside the raw slice.
func (s *Service) GetWorkflowData(ctx context.Context, workflowID string, req GetWorkflowDataRequest) (*GetWorkflowDataResponse, error) {
	var data any
	switch req.Bucket {
	case "", "global":
		globals, err := s.components.Store.ScanGlobals(ctx, workflowID, req.Pattern)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStoreFailure, "scan globals", err)
		}
		data = globals
	case "all":
		globals, err := s.components.Store.ScanGlobals(ctx, workflowID, "")
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStoreFailure, "scan globals", err)
		}
		records, err := s.components.Store.ListRecords(ctx, workflowID, req.Pattern)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStoreFailure, "list records", err)
		}
		data = map[string]any{"global": globals, "records": records}
	default:
		record, found, err := s.components.Store.GetRecord(ctx, workflowID, req.Bucket)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeStoreFailure, "get record", err)
		}
		if !found {
			return nil, apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("record not found: %s", req.Bucket))
		}
		data = record
	}

	rendered, err := render.ForContext(data, render.DefaultMaxBytes)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "render workflow data", err)
	}
	return &GetWorkflowDataResponse{Data: data, Rendered: rendered}, nil
}

// SetVariable writes one global directly, bypassing node execution.
func (s *Service) SetVariable(ctx context.Context, workflowID, name string, value any) error {
	if err := s.components.Store.SetGlobal(ctx, workflowID, name, value); err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "set variable", err)
	}
	return nil
}

// ClearVariable deletes one global.
func (s *Service) ClearVariable(ctx context.Context, workflowID, name string) error {
	if err := s.components.Store.DeleteGlobal(ctx, workflowID, name); err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "clear variable", err)
	}
	return nil
}

// ClearAllVariables wipes the entire global bucket for a workflow.
func (s *Service) ClearAllVariables(ctx context.Context, workflowID string) error {
	if err := s.components.Store.ClearAllGlobals(ctx, workflowID); err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "clear all variables", err)
	}
	return nil
}

// UpdatePlanRequest is the update_plan command body.
type UpdatePlanRequest struct {
	Phases []workflow.PlanPhase `json:"phases"`
	Reason string               `json:"reason"`
}

// UpdatePlan appends a new plan version and publishes plan_updated.
func (s *Service) UpdatePlan(ctx context.Context, workflowID string, req UpdatePlanRequest) (*workflow.Plan, error) {
	saved, err := s.components.Plans.UpdatePlan(ctx, workflowID, req.Phases, req.Reason)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "update plan", err)
	}
	return saved, nil
}

// UpdateWorkflowDescription appends a new description version.
func (s *Service) UpdateWorkflowDescription(ctx context.Context, workflowID, text, reason string) (*workflow.DescriptionVersion, error) {
	version, err := s.components.Plans.UpdateDescription(ctx, workflowID, text, reason)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "update workflow description", err)
	}
	return version, nil
}

// DebugActionRequest is the debug_action command body: the same
// {action, config} shape a browser_action node's config carries, but
// dispatched once with no node created.
type DebugActionRequest struct {
	Action string         `json:"action" validate:"required"`
	Config map[string]any `json:"config"`
}

// DebugAction runs a one-off browser operation outside of node
// execution, for Director-driven exploration.
func (s *Service) DebugAction(ctx context.Context, workflowID string, req DebugActionRequest) (any, error) {
	exec, err := s.components.ExecutorFor(ctx, workflowID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "acquire browser session", err)
	}
	return exec.DebugAction(ctx, req.Action, req.Config)
}

// InspectTab returns the Page.Snapshot of tab (the active tab if tab is
// empty), which for the Playwright driver is the page's full HTML; no
// accessibility tree is built and the content is not compacted.
func (s *Service) InspectTab(ctx context.Context, workflowID, tab string) (string, error) {
	sess, err := s.components.Browsers.Get(ctx, workflowID)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeStoreFailure, "acquire browser session", err)
	}
	snapshot, err := sess.InspectTab(ctx, tab)
	if err != nil {
		return "", err
	}
	return snapshot, nil
}

// ExpandDomSelector returns the full attribute set and ranked candidate
// selectors for one element surfaced by a prior InspectTab call.
func (s *Service) ExpandDomSelector(ctx context.Context, workflowID, elementID string) (map[string]any, error) {
	sess, err := s.components.Browsers.Get(ctx, workflowID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "acquire browser session", err)
	}
	return sess.ExpandDomSelector(ctx, elementID)
}
